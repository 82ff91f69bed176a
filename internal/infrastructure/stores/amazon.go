package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/shopspring/decimal"

	"github.com/snapp/backend/internal/domain"
)

// AmazonSourceName is the source name reported on Amazon listings.
const AmazonSourceName = "Amazon"

const (
	paapiService   = "ProductAdvertisingAPI"
	paapiTargetFmt = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.%s"
)

var asinPattern = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)

// AmazonConfig holds Product Advertising API credentials and endpoint settings.
type AmazonConfig struct {
	AccessKey   string
	SecretKey   string
	PartnerTag  string
	Region      string
	BaseURL     string // defaults to https://webservices.amazon.com
	Marketplace string
	SearchIndex string
	HTTP        HTTPOptions
}

// AmazonAdapter is a SourceAdapter for the Amazon Product Advertising API 5.0.
type AmazonAdapter struct {
	cfg    AmazonConfig
	client *sourceClient
	signer *v4.Signer
	now    func() time.Time
}

var _ domain.SourceAdapter = (*AmazonAdapter)(nil)

// NewAmazonAdapter creates an adapter. Requests are SigV4 signed when both keys are set.
func NewAmazonAdapter(cfg AmazonConfig) *AmazonAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://webservices.amazon.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Marketplace == "" {
		cfg.Marketplace = "www.amazon.com"
	}
	if cfg.SearchIndex == "" {
		cfg.SearchIndex = "Fashion"
	}
	return &AmazonAdapter{
		cfg:    cfg,
		client: newSourceClient(AmazonSourceName, cfg.HTTP),
		signer: v4.NewSigner(),
		now:    time.Now,
	}
}

// Name returns the source name.
func (a *AmazonAdapter) Name() string { return AmazonSourceName }

// IsAmazonURL reports whether rawURL points at an Amazon product page.
func IsAmazonURL(rawURL string) bool {
	return hostContains(rawURL, "amazon.")
}

// ExtractASIN pulls the 10-character ASIN out of a product URL.
func ExtractASIN(rawURL string) (string, bool) {
	m := asinPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type paapiPrice struct {
	Amount   decimal.Decimal `json:"Amount"`
	Currency string          `json:"Currency"`
}

type paapiItem struct {
	ASIN          string `json:"ASIN"`
	DetailPageURL string `json:"DetailPageURL"`
	ItemInfo      struct {
		Title struct {
			DisplayValue string `json:"DisplayValue"`
		} `json:"Title"`
	} `json:"ItemInfo"`
	Offers *struct {
		Listings []struct {
			Price        *paapiPrice `json:"Price"`
			Availability *struct {
				Type string `json:"Type"`
			} `json:"Availability"`
		} `json:"Listings"`
	} `json:"Offers"`
}

type paapiError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type getItemsResponse struct {
	ItemsResult *struct {
		Items []paapiItem `json:"Items"`
	} `json:"ItemsResult"`
	Errors []paapiError `json:"Errors"`
}

type searchItemsResponse struct {
	SearchResult *struct {
		Items []paapiItem `json:"Items"`
	} `json:"SearchResult"`
	Errors []paapiError `json:"Errors"`
}

var paapiResources = []string{
	"ItemInfo.Title",
	"Offers.Listings.Price",
	"Offers.Listings.Availability.Type",
}

// FetchProduct looks up a single item by the ASIN embedded in url.
func (a *AmazonAdapter) FetchProduct(ctx context.Context, url string) (*domain.Listing, error) {
	asin, ok := ExtractASIN(url)
	if !ok {
		return nil, domain.NewSourceError(AmazonSourceName, domain.CodeInvalidURL, fmt.Errorf("no ASIN in %q", url))
	}

	payload := map[string]any{
		"ItemIds":     []string{asin},
		"PartnerTag":  a.cfg.PartnerTag,
		"PartnerType": "Associates",
		"Marketplace": a.cfg.Marketplace,
		"Resources":   paapiResources,
	}

	var resp getItemsResponse
	found, err := a.call(ctx, "GetItems", "/paapi5/getitems", payload, domain.CodeAPIError, &resp)
	if err != nil {
		return nil, err
	}
	if !found || resp.ItemsResult == nil || len(resp.ItemsResult.Items) == 0 {
		if len(resp.Errors) > 0 {
			return nil, domain.NewSourceError(AmazonSourceName, domain.CodeAPIError, fmt.Errorf("%s: %s", resp.Errors[0].Code, resp.Errors[0].Message))
		}
		return nil, domain.NewSourceError(AmazonSourceName, domain.CodeAPIError, fmt.Errorf("%w: %s", domain.ErrProductNotFound, asin))
	}

	listing, err := a.toListing(resp.ItemsResult.Items[0])
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// SearchProduct runs a keyword search. "NoResults" yields an empty slice.
func (a *AmazonAdapter) SearchProduct(ctx context.Context, query string) ([]domain.Listing, error) {
	payload := map[string]any{
		"Keywords":    query,
		"SearchIndex": a.cfg.SearchIndex,
		"PartnerTag":  a.cfg.PartnerTag,
		"PartnerType": "Associates",
		"Marketplace": a.cfg.Marketplace,
		"Resources":   paapiResources,
	}

	var resp searchItemsResponse
	found, err := a.call(ctx, "SearchItems", "/paapi5/searchitems", payload, domain.CodeSearchError, &resp)
	if err != nil {
		return nil, err
	}
	if !found || resp.SearchResult == nil {
		for _, e := range resp.Errors {
			if e.Code != "NoResults" {
				return nil, domain.NewSourceError(AmazonSourceName, domain.CodeSearchError, fmt.Errorf("%s: %s", e.Code, e.Message))
			}
		}
		return []domain.Listing{}, nil
	}

	listings := make([]domain.Listing, 0, len(resp.SearchResult.Items))
	for _, item := range resp.SearchResult.Items {
		l, err := a.toListing(item)
		if err != nil {
			// Items without an offer are skipped rather than failing the search.
			continue
		}
		listings = append(listings, *l)
	}
	return listings, nil
}

func (a *AmazonAdapter) call(ctx context.Context, operation, path string, payload any, failCode string, out any) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, domain.NewSourceError(AmazonSourceName, failCode, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, domain.NewSourceError(AmazonSourceName, failCode, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "amz-1.0")
	req.Header.Set("X-Amz-Target", fmt.Sprintf(paapiTargetFmt, operation))

	if a.cfg.AccessKey != "" && a.cfg.SecretKey != "" {
		sum := sha256.Sum256(body)
		creds := aws.Credentials{AccessKeyID: a.cfg.AccessKey, SecretAccessKey: a.cfg.SecretKey}
		if err := a.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), paapiService, a.cfg.Region, a.now()); err != nil {
			return false, domain.NewSourceError(AmazonSourceName, domain.CodeAuthError, err)
		}
	}

	return a.client.do(ctx, req, strings.ToLower(operation), failCode, out)
}

func (a *AmazonAdapter) toListing(item paapiItem) (*domain.Listing, error) {
	if item.Offers == nil || len(item.Offers.Listings) == 0 || item.Offers.Listings[0].Price == nil {
		return nil, domain.NewSourceError(AmazonSourceName, domain.CodeParseError, fmt.Errorf("item %s has no offer", item.ASIN))
	}
	offer := item.Offers.Listings[0]
	if offer.Price.Amount.IsNegative() {
		return nil, domain.NewSourceError(AmazonSourceName, domain.CodeParseError, fmt.Errorf("item %s has negative price", item.ASIN))
	}

	currency := offer.Price.Currency
	if currency == "" {
		currency = "USD"
	}

	return &domain.Listing{
		ID:         item.ASIN,
		Name:       item.ItemInfo.Title.DisplayValue,
		Price:      offer.Price.Amount,
		Currency:   currency,
		URL:        item.DetailPageURL,
		SourceName: AmazonSourceName,
		InStock:    offer.Availability != nil && offer.Availability.Type == "Now",
	}, nil
}
