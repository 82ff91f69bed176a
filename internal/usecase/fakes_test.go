package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/infrastructure/cache"
	"github.com/snapp/backend/internal/logging"
)

func newTestCache() *cache.Cache {
	return cache.New(cache.NewMemoryCache(), logging.Discard(), 0)
}

// downCache is a cache backend that fails every call.
type downCache struct{}

func (downCache) Get(context.Context, string) ([]byte, error) { return nil, domain.ErrCacheUnavailable }
func (downCache) Set(context.Context, string, []byte, time.Duration) error {
	return domain.ErrCacheUnavailable
}
func (downCache) Delete(context.Context, string) error { return domain.ErrCacheUnavailable }
func (downCache) Close() error                         { return nil }

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeAdapter struct {
	name       string
	listing    *domain.Listing
	fetchErr   error
	results    []domain.Listing
	searchErr  error
	delay      time.Duration
	fetchCalls atomic.Int32
	searches   atomic.Int32
	lastQuery  atomic.Value
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchProduct(ctx context.Context, url string) (*domain.Listing, error) {
	f.fetchCalls.Add(1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	l := *f.listing
	return &l, nil
}

func (f *fakeAdapter) SearchProduct(ctx context.Context, query string) ([]domain.Listing, error) {
	f.searches.Add(1)
	f.lastQuery.Store(query)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]domain.Listing, len(f.results))
	copy(out, f.results)
	return out, nil
}

type fakeRouter struct {
	routes   map[string]domain.SourceAdapter
	adapters []domain.SourceAdapter
}

func (r *fakeRouter) Resolve(rawURL string) (domain.SourceAdapter, bool) {
	for fragment, a := range r.routes {
		if strings.Contains(rawURL, fragment) {
			return a, true
		}
	}
	return nil, false
}

func (r *fakeRouter) Adapters() []domain.SourceAdapter { return r.adapters }

type fakeScraper struct {
	mu      sync.Mutex
	listing *domain.Listing
	err     error
	calls   int
	closed  bool
}

func (f *fakeScraper) ScrapeProduct(ctx context.Context, url string) (*domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	l := *f.listing
	l.URL = url
	return &l, nil
}

func (f *fakeScraper) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeIndex struct {
	neighbors  []domain.Neighbor
	err        error
	lastFilter domain.VectorFilter
	lastTopK   int
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, filter domain.VectorFilter, topK int) ([]domain.Neighbor, error) {
	f.lastFilter = filter
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Neighbor, len(f.neighbors))
	copy(out, f.neighbors)
	return out, nil
}

// fakeProducts serves records by id; ids listed in failIDs make the whole
// lookup containing them fail.
type fakeProducts struct {
	records map[string]domain.ProductRecord
	failIDs map[string]bool
	calls   atomic.Int32
}

func newFakeProducts(records ...domain.ProductRecord) *fakeProducts {
	f := &fakeProducts{records: map[string]domain.ProductRecord{}, failIDs: map[string]bool{}}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeProducts) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.ProductRecord, error) {
	f.calls.Add(1)
	var out []domain.ProductRecord
	for _, id := range ids {
		if f.failIDs[id] {
			return nil, errors.New("catalog unavailable")
		}
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func set(values ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

type fakeBehavior struct {
	behaviors map[string]*domain.UserBehavior
	failUsers map[string]bool
	favorites []domain.UserFavorite
	favErr    error
	onLoad    func(userID string)
	listCalls atomic.Int32
}

func newFakeBehavior(behaviors ...*domain.UserBehavior) *fakeBehavior {
	f := &fakeBehavior{behaviors: map[string]*domain.UserBehavior{}, failUsers: map[string]bool{}}
	for _, b := range behaviors {
		f.behaviors[b.UserID] = b
	}
	return f
}

func (f *fakeBehavior) ListUserIDs(ctx context.Context) ([]string, error) {
	f.listCalls.Add(1)
	var ids []string
	for id := range f.behaviors {
		ids = append(ids, id)
	}
	for id := range f.failUsers {
		if _, ok := f.behaviors[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeBehavior) FindUserBehavior(ctx context.Context, userID string) (*domain.UserBehavior, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.onLoad != nil {
		f.onLoad(userID)
	}
	if f.failUsers[userID] {
		return nil, errors.New("behaviour unavailable")
	}
	if b, ok := f.behaviors[userID]; ok {
		return b, nil
	}
	return &domain.UserBehavior{UserID: userID, Favorites: set(), Views: set(), Categories: set()}, nil
}

func (f *fakeBehavior) FindFavoritesByUsers(ctx context.Context, userIDs []string, category string) ([]domain.UserFavorite, error) {
	if f.favErr != nil {
		return nil, f.favErr
	}
	var out []domain.UserFavorite
	for _, fav := range f.favorites {
		for _, id := range userIDs {
			if fav.UserID == id && fav.Product.Category == category {
				out = append(out, fav)
			}
		}
	}
	return out, nil
}

type fakePreferences struct {
	mu      sync.Mutex
	prefs   map[string]domain.UserPreference
	findErr error
	upserts int
}

func newFakePreferences(prefs ...domain.UserPreference) *fakePreferences {
	f := &fakePreferences{prefs: map[string]domain.UserPreference{}}
	for _, p := range prefs {
		f.prefs[p.UserID] = p
	}
	return f
}

func (f *fakePreferences) FindUserPreference(ctx context.Context, userID string) (*domain.UserPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	p, ok := f.prefs[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (f *fakePreferences) UpsertUserPreference(ctx context.Context, pref domain.UserPreference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.prefs[pref.UserID] = pref
	return nil
}

type fakeDetections struct {
	products    map[string][]domain.ProductRecord
	facets      map[string]*domain.FilterFacets
	facetsCalls atomic.Int32
}

func (f *fakeDetections) FindDetectionProducts(ctx context.Context, detectionID string) ([]domain.ProductRecord, error) {
	products, ok := f.products[detectionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return products, nil
}

func (f *fakeDetections) DetectionFacets(ctx context.Context, detectionID string) (*domain.FilterFacets, error) {
	f.facetsCalls.Add(1)
	facets, ok := f.facets[detectionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return facets, nil
}

type fakeAlerts struct {
	subjects []domain.AlertSubject
	listErr  error
	created  []domain.WishlistAlert
	updated  map[string]domain.AlertUpdate
}

func (f *fakeAlerts) ListActiveAlerts(ctx context.Context) ([]domain.AlertSubject, error) {
	return f.subjects, f.listErr
}

func (f *fakeAlerts) CreateAlert(ctx context.Context, alert domain.WishlistAlert) (*domain.WishlistAlert, error) {
	f.created = append(f.created, alert)
	return &alert, nil
}

func (f *fakeAlerts) UpdateAlert(ctx context.Context, id string, update domain.AlertUpdate) (*domain.WishlistAlert, error) {
	if f.updated == nil {
		f.updated = map[string]domain.AlertUpdate{}
	}
	f.updated[id] = update
	a := domain.WishlistAlert{ID: id, Active: true}
	if update.Active != nil {
		a.Active = *update.Active
	}
	a.TargetPrice = update.TargetPrice
	return &a, nil
}

type fakeNotifications struct {
	saved      []domain.Notification
	saveErr    error
	lastLimit  int
	lastOffset int
	read       []string
}

func (f *fakeNotifications) CreateNotification(ctx context.Context, n domain.Notification) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, n)
	return nil
}

func (f *fakeNotifications) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	f.lastLimit, f.lastOffset = limit, offset
	var out []domain.Notification
	for _, n := range f.saved {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifications) MarkNotificationRead(ctx context.Context, id string) error {
	for i := range f.saved {
		if f.saved[i].ID == id {
			f.saved[i].Read = true
			f.read = append(f.read, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakePublisher struct {
	published []domain.Notification
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, n domain.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, n)
	return nil
}

// fakePrices answers FindBestPrices from a table keyed by product name.
type fakePrices struct {
	results map[string]*domain.BestPrices
	errs    map[string]error
}

func (f *fakePrices) FindBestPrices(ctx context.Context, name string) (*domain.BestPrices, error) {
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return &domain.BestPrices{Item: name, Stores: []domain.PricedOffer{}}, nil
}

type fakeRecorder struct {
	events []string
}

func (f *fakeRecorder) AddFavorite(ctx context.Context, userID, productID string) (string, error) {
	f.events = append(f.events, "fav "+userID+" "+productID)
	return "fav-" + userID + "-" + productID, nil
}

func (f *fakeRecorder) RecordView(ctx context.Context, userID, productID string) error {
	f.events = append(f.events, "view "+userID+" "+productID)
	return nil
}

func (f *fakeRecorder) LogSearch(ctx context.Context, userID, query, category string) error {
	f.events = append(f.events, "search "+userID+" "+query+" "+category)
	return nil
}
