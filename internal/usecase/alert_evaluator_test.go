package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/infrastructure/cache"
)

type alertFixture struct {
	alerts        *fakeAlerts
	notifications *fakeNotifications
	prices        *fakePrices
	publisher     *fakePublisher
	cache         *cache.Cache
	evaluator     *AlertEvaluator
}

func newAlertFixture() *alertFixture {
	f := &alertFixture{
		alerts:        &fakeAlerts{},
		notifications: &fakeNotifications{},
		prices:        &fakePrices{results: map[string]*domain.BestPrices{}, errs: map[string]error{}},
		publisher:     &fakePublisher{},
		cache:         newTestCache(),
	}
	f.evaluator = NewAlertEvaluator(f.alerts, f.notifications, f.prices, f.cache, f.publisher)
	ids := 0
	f.evaluator.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return f
}

func (f *alertFixture) setPrice(name, p string, inStock bool) {
	f.prices.results[name] = &domain.BestPrices{
		Item:   name,
		Stores: []domain.PricedOffer{{Listing: domain.Listing{Price: price(p), InStock: inStock}}},
	}
}

func (f *alertFixture) lastPrice(t *testing.T, productID string) decimal.Decimal {
	t.Helper()
	var p decimal.Decimal
	require.True(t, f.cache.GetJSON(context.Background(), cache.LastPriceKey(productID), &p), "last price not cached")
	return p
}

func subject(id string, alertType domain.AlertType, productID, target string) domain.AlertSubject {
	a := domain.WishlistAlert{ID: id, FavoriteID: "fav-" + id, Type: alertType, Active: true}
	if target != "" {
		tp := price(target)
		a.TargetPrice = &tp
	}
	return domain.AlertSubject{Alert: a, UserID: "u1", ProductID: productID, ProductName: "Dress " + productID}
}

func TestSweep_PriceDrop(t *testing.T) {
	tests := []struct {
		name    string
		current string
		fires   bool
	}{
		{"below target", "95", true},
		{"at target", "100", true},
		{"above target", "105", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAlertFixture()
			f.alerts.subjects = []domain.AlertSubject{subject("a1", domain.AlertPriceDrop, "p1", "100")}
			f.setPrice("Dress p1", tt.current, true)

			report, err := f.evaluator.Sweep(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, report.Evaluated)
			assert.True(t, f.lastPrice(t, "p1").Equal(price(tt.current)))
			if !tt.fires {
				assert.Zero(t, report.Fired)
				assert.Empty(t, f.notifications.saved)
				assert.Nil(t, report.Outcomes[0].Fired)
				return
			}
			assert.Equal(t, 1, report.Fired)
			require.Len(t, f.notifications.saved, 1)
			n := f.notifications.saved[0]
			assert.Equal(t, domain.NotificationPriceDecrease, n.Type)
			assert.Equal(t, "u1", n.UserID)
			assert.Equal(t, "a1", n.AlertID)
			assert.Contains(t, n.Message, "Dress p1")
			assert.Equal(t, f.notifications.saved, f.publisher.published)
		})
	}
}

func TestSweep_AnyChange(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		current  string
		want     domain.NotificationType
	}{
		{"no previous price", "", "90", ""},
		{"unchanged", "90", "90.00", ""},
		{"decrease", "100", "90", domain.NotificationPriceDecrease},
		{"increase", "80", "90", domain.NotificationPriceIncrease},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAlertFixture()
			ctx := context.Background()
			if tt.previous != "" {
				f.cache.SetJSON(ctx, cache.LastPriceKey("p1"), price(tt.previous), cache.LastPriceTTL)
			}
			f.alerts.subjects = []domain.AlertSubject{subject("a1", domain.AlertAnyChange, "p1", "")}
			f.setPrice("Dress p1", tt.current, true)

			report, err := f.evaluator.Sweep(ctx)
			require.NoError(t, err)

			if tt.want == "" {
				assert.Empty(t, f.notifications.saved)
				assert.Zero(t, report.Fired)
			} else {
				require.Len(t, f.notifications.saved, 1)
				assert.Equal(t, tt.want, f.notifications.saved[0].Type)
			}
			assert.True(t, f.lastPrice(t, "p1").Equal(price(tt.current)))
		})
	}
}

func TestSweep_BackInStock(t *testing.T) {
	f := newAlertFixture()
	f.alerts.subjects = []domain.AlertSubject{
		subject("a1", domain.AlertBackInStock, "p1", ""),
		subject("a2", domain.AlertBackInStock, "p2", ""),
	}
	f.setPrice("Dress p1", "40", true)
	f.setPrice("Dress p2", "40", false)

	report, err := f.evaluator.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Evaluated)
	assert.Equal(t, 1, report.Fired)
	require.Len(t, f.notifications.saved, 1)
	assert.Equal(t, domain.NotificationBackInStock, f.notifications.saved[0].Type)
	assert.Equal(t, "a1", f.notifications.saved[0].AlertID)
}

func TestSweep_FailureIsolation(t *testing.T) {
	f := newAlertFixture()
	f.alerts.subjects = []domain.AlertSubject{
		subject("a1", domain.AlertPriceDrop, "broken", "100"),
		subject("a2", domain.AlertPriceDrop, "gone", "100"),
		subject("a3", domain.AlertPriceDrop, "p1", "100"),
	}
	f.prices.errs["Dress broken"] = errors.New("store timeout")
	f.setPrice("Dress p1", "50", true)

	report, err := f.evaluator.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 1, report.Fired)
	assert.Equal(t, 2, report.Failed)
	assert.Error(t, report.Outcomes[0].Err)
	assert.ErrorIs(t, report.Outcomes[1].Err, errNoListings)
	assert.Nil(t, report.Outcomes[1].CurrentPrice)
	assert.NoError(t, report.Outcomes[2].Err)

	var p decimal.Decimal
	assert.False(t, f.cache.GetJSON(context.Background(), cache.LastPriceKey("gone"), &p))
}

func TestSweep_SharedProductReadsPreviousPriceOnce(t *testing.T) {
	f := newAlertFixture()
	ctx := context.Background()
	f.cache.SetJSON(ctx, cache.LastPriceKey("p1"), price("100"), cache.LastPriceTTL)
	f.alerts.subjects = []domain.AlertSubject{
		subject("a1", domain.AlertAnyChange, "p1", ""),
		subject("a2", domain.AlertAnyChange, "p1", ""),
	}
	f.setPrice("Dress p1", "90", true)

	report, err := f.evaluator.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fired)
}

func TestSweep_NotificationDelivery(t *testing.T) {
	t.Run("publish failure is reported on the outcome", func(t *testing.T) {
		f := newAlertFixture()
		f.publisher.err = errors.New("broker down")
		f.alerts.subjects = []domain.AlertSubject{subject("a1", domain.AlertBackInStock, "p1", "")}
		f.setPrice("Dress p1", "40", true)

		report, err := f.evaluator.Sweep(context.Background())
		require.NoError(t, err)
		assert.Len(t, f.notifications.saved, 1)
		require.NotNil(t, report.Outcomes[0].Fired)
		assert.ErrorContains(t, report.Outcomes[0].Err, "broker down")
	})

	t.Run("no publisher", func(t *testing.T) {
		f := newAlertFixture()
		f.evaluator.publisher = nil
		f.alerts.subjects = []domain.AlertSubject{subject("a1", domain.AlertBackInStock, "p1", "")}
		f.setPrice("Dress p1", "40", true)

		report, err := f.evaluator.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Fired)
		assert.NoError(t, report.Outcomes[0].Err)
	})

	t.Run("listing alerts fails", func(t *testing.T) {
		f := newAlertFixture()
		f.alerts.listErr = errors.New("db closed")
		_, err := f.evaluator.Sweep(context.Background())
		assert.Error(t, err)
	})
}

func TestCreateAlert(t *testing.T) {
	ctx := context.Background()
	target := price("80")
	zero := price("0")

	tests := []struct {
		name     string
		favorite string
		typ      domain.AlertType
		target   *decimal.Decimal
		wantErr  bool
	}{
		{"price drop", "fav1", domain.AlertPriceDrop, &target, false},
		{"back in stock", "fav1", domain.AlertBackInStock, nil, false},
		{"missing favourite", "", domain.AlertAnyChange, nil, true},
		{"unknown type", "fav1", domain.AlertType("SOMETIMES"), nil, true},
		{"price drop without target", "fav1", domain.AlertPriceDrop, nil, true},
		{"zero target", "fav1", domain.AlertPriceDrop, &zero, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAlertFixture()
			alert, err := f.evaluator.CreateAlert(ctx, tt.favorite, tt.typ, tt.target)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
				assert.Empty(t, f.alerts.created)
				return
			}
			require.NoError(t, err)
			assert.True(t, alert.Active)
			assert.Equal(t, "id-1", alert.ID)
			assert.Equal(t, tt.typ, alert.Type)
		})
	}
}

func TestUpdateAlert(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture()
	off := false

	alert, err := f.evaluator.UpdateAlert(ctx, "a1", domain.AlertUpdate{Active: &off})
	require.NoError(t, err)
	assert.False(t, alert.Active)

	negative := price("-5")
	_, err = f.evaluator.UpdateAlert(ctx, "a1", domain.AlertUpdate{TargetPrice: &negative})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.evaluator.UpdateAlert(ctx, "", domain.AlertUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture()
	f.notifications.saved = []domain.Notification{
		{ID: "n1", UserID: "u1"},
		{ID: "n2", UserID: "u1", Read: true},
		{ID: "n3", UserID: "u2"},
	}

	all, err := f.evaluator.ListNotifications(ctx, "u1", false, 0, -3)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, defaultNotificationLimit, f.notifications.lastLimit)
	assert.Zero(t, f.notifications.lastOffset)

	unread, err := f.evaluator.ListNotifications(ctx, "u1", true, 5, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n1", unread[0].ID)

	require.NoError(t, f.evaluator.MarkNotificationRead(ctx, "n1"))
	assert.ErrorIs(t, f.evaluator.MarkNotificationRead(ctx, "missing"), domain.ErrNotFound)
	assert.ErrorIs(t, f.evaluator.MarkNotificationRead(ctx, ""), domain.ErrInvalidRequest)

	_, err = f.evaluator.ListNotifications(ctx, "", false, 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
