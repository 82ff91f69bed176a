package stores

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapp/backend/internal/domain"
)

func newTestRetail(t *testing.T, baseURL string) *RetailAdapter {
	t.Helper()
	adapter, err := NewRetailAdapter(RetailConfig{
		Name:    "Zara",
		BaseURL: baseURL,
		APIKey:  "key-123",
		HTTP:    HTTPOptions{Timeout: time.Second, RequestsPerSecond: 100, Burst: 100},
	})
	require.NoError(t, err)
	return adapter
}

func TestNewRetailAdapter_Validation(t *testing.T) {
	_, err := NewRetailAdapter(RetailConfig{BaseURL: "https://api.example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = NewRetailAdapter(RetailConfig{Name: "Zara", BaseURL: "not a url"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRetailFetchProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("X-API-Key"))
		if r.URL.Query().Get("url") == "https://www.zara.com/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id": "z-1", "title": "Linen Shirt", "price": "1,299.00", "availability": "out_of_stock"}`))
	}))
	defer server.Close()

	adapter := newTestRetail(t, server.URL)

	t.Run("malformed price is parse error", func(t *testing.T) {
		_, err := adapter.FetchProduct(context.Background(), "https://www.zara.com/shirt")
		var se *domain.SourceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, domain.CodeParseError, se.Code)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := adapter.FetchProduct(context.Background(), "https://www.zara.com/missing")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		assert.ErrorIs(t, err, domain.ErrSourceFailure)
	})
}

func TestRetailFetchProduct_DefaultsURLAndCurrency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "z-1", "title": "Linen Shirt", "price": 39.9, "availability": "in_stock"}`))
	}))
	defer server.Close()

	listing, err := newTestRetail(t, server.URL).FetchProduct(context.Background(), "https://www.zara.com/shirt")

	require.NoError(t, err)
	assert.Equal(t, "z-1", listing.ID)
	assert.Equal(t, "https://www.zara.com/shirt", listing.URL)
	assert.Equal(t, "USD", listing.Currency)
	assert.Equal(t, "Zara", listing.SourceName)
	assert.Equal(t, "39.9", listing.Price.String())
	assert.True(t, listing.InStock)
}

func TestRetailSearchProduct(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantLen int
		wantErr string
	}{
		{
			name:    "results",
			status:  http.StatusOK,
			body:    `{"products": [{"title": "A", "url": "https://zara.com/a", "price": 10}, {"title": "", "url": "https://zara.com/b", "price": 5}]}`,
			wantLen: 1,
		},
		{name: "not found is empty", status: http.StatusNotFound, wantLen: 0},
		{name: "empty list", status: http.StatusOK, body: `{"products": []}`, wantLen: 0},
		{name: "upstream failure", status: http.StatusBadGateway, wantErr: domain.CodeSearchError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/search", r.URL.Path)
				assert.Equal(t, "linen shirt", r.URL.Query().Get("q"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			listings, err := newTestRetail(t, server.URL).SearchProduct(context.Background(), "linen shirt")

			if tt.wantErr != "" {
				var se *domain.SourceError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.wantErr, se.Code)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, listings)
			assert.Len(t, listings, tt.wantLen)
		})
	}
}
