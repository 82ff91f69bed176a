package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultUserAgent is sent by both renderers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Renderer loads a page and returns its rendered HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// ChromeRenderer renders pages in a shared headless Chrome instance.
// The browser is started on first use and reused until Close.
type ChromeRenderer struct {
	userAgent string
	timeout   time.Duration
	launch    func(userAgent string) (context.Context, context.CancelFunc, error)

	mu           sync.Mutex
	browserCtx   context.Context
	closeBrowser context.CancelFunc
}

// NewChromeRenderer creates a renderer. No browser is launched until Render is called.
func NewChromeRenderer(userAgent string, timeout time.Duration) *ChromeRenderer {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChromeRenderer{userAgent: userAgent, timeout: timeout, launch: launchChrome}
}

// launchChrome starts a headless Chrome process and returns its browser context.
func launchChrome(userAgent string) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	shutdown := func() {
		cancelBrowser()
		cancelAlloc()
	}

	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("launching browser: %w", err)
	}
	return browserCtx, shutdown, nil
}

// browser returns the shared browser context, launching it if needed.
func (r *ChromeRenderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil {
		return r.browserCtx, nil
	}

	browserCtx, closeBrowser, err := r.launch(r.userAgent)
	if err != nil {
		return nil, err
	}
	r.browserCtx = browserCtx
	r.closeBrowser = closeBrowser
	return browserCtx, nil
}

// Render opens a new tab, navigates to url and returns the document HTML.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return "", err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", err
	}
	return html, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx == nil {
		return nil
	}
	r.closeBrowser()
	r.browserCtx = nil
	r.closeBrowser = nil
	return nil
}

// HTTPRenderer fetches raw HTML without executing scripts. It suits static
// storefronts and hosts without a Chrome binary.
type HTTPRenderer struct {
	client    *http.Client
	userAgent string
}

// NewHTTPRenderer creates a plain HTTP renderer.
func NewHTTPRenderer(userAgent string, timeout time.Duration) *HTTPRenderer {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRenderer{client: &http.Client{Timeout: timeout}, userAgent: userAgent}
}

// Render GETs url and returns the body.
func (r *HTTPRenderer) Render(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	if len(body) == 0 {
		return "", errors.New("empty document")
	}
	return string(body), nil
}

// Close is a no-op.
func (r *HTTPRenderer) Close() error { return nil }
