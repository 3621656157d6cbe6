package xe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer fetches a page and returns its HTML. The converter page
// builds part of its content client-side, so a scriptable browser
// yields a more complete document than a raw GET; both produce input
// for the same parser.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// browserBinaries are probed to decide whether a rendered fetch is
// available on this host
var browserBinaries = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

// NewRenderer picks the rendered fetch when a browser binary is
// installed, the raw HTTP fetch otherwise. The raw fetch is the
// universal fallback and always works.
func NewRenderer(timeout time.Duration) Renderer {
	for _, bin := range browserBinaries {
		if _, err := exec.LookPath(bin); err == nil {
			return NewChromeRenderer(timeout)
		}
	}

	return NewHTTPRenderer(timeout)
}

// HTTPRenderer is the raw, non-browser fetch implementation
type HTTPRenderer struct {
	client *http.Client
}

// NewHTTPRenderer creates the raw HTTP renderer
func NewHTTPRenderer(timeout time.Duration) *HTTPRenderer {
	return &HTTPRenderer{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("unable to create GET request: %w", err)
	}

	req.Header.Set(
		"User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36",
	)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("unable to execute GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("unable to read response body: %w", err)
	}

	return string(body), nil
}

// ChromeRenderer executes the fetch through a headless browser so
// client-side rendering completes before parsing
type ChromeRenderer struct {
	timeout time.Duration
}

// NewChromeRenderer creates the headless browser renderer
func NewChromeRenderer(timeout time.Duration) *ChromeRenderer {
	return &ChromeRenderer{
		timeout: timeout,
	}
}

func (r *ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	ctx, cancelFn := context.WithTimeout(ctx, r.timeout)
	defer cancelFn()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(
		ctx,
		chromedp.DefaultExecAllocatorOptions[:]...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string

	err := chromedp.Run(
		browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("unable to render page: %w", err)
	}

	return html, nil
}
