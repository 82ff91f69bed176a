package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound is returned when no source can produce a listing for a product
	ErrProductNotFound = errors.New("product not found")

	// ErrNotFound is returned when a catalog record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrSourceFailure is the sentinel every SourceError unwraps to
	ErrSourceFailure = errors.New("retail source request failed")

	// ErrScrape is the sentinel every ScrapeError unwraps to
	ErrScrape = errors.New("scrape failed")

	// ErrScraperClosed is returned when the fallback scraper has been shut down
	ErrScraperClosed = errors.New("scraper closed")
)

// Source error codes.
const (
	CodeAPIError    = "API_ERROR"
	CodeSearchError = "SEARCH_ERROR"
	CodeAuthError   = "AUTH_ERROR"
	CodeRateLimited = "RATE_LIMITED"
	CodeTimeout     = "TIMEOUT"
	CodeParseError  = "PARSE_ERROR"
	CodeInvalidURL  = "INVALID_URL"
)

// SourceError reports a failed call to a structured retail source.
// Callers recover from it locally: the detail path falls back to the
// scraper and the search path omits the source.
type SourceError struct {
	Source string
	Code   string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Code, e.Err)
}

// Unwrap allows errors.Is(err, ErrSourceFailure) as well as matching the cause.
func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSourceFailure}
	}
	return []error{ErrSourceFailure, e.Err}
}

// NewSourceError builds a SourceError for the given source and code.
func NewSourceError(source, code string, err error) *SourceError {
	return &SourceError{Source: source, Code: code, Err: err}
}

// ScrapeError reports that the generic scraper could not load or parse a page.
// Callers should treat it as temporarily unavailable.
type ScrapeError struct {
	URL string
	Err error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %s: %v", e.URL, e.Err)
}

func (e *ScrapeError) Unwrap() []error {
	return []error{ErrScrape, e.Err}
}

// ValidationError reports malformed input. It is surfaced to the caller
// immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// IsSourceError reports whether err is (or wraps) a SourceError.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}
