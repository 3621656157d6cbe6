// Package gfinance extracts reference exchange rates from the
// finance-quote website. The quote page carries the price both as a
// machine-readable attribute on the quote element and as rendered text,
// which gives the extractor a chain of fallbacks; implausible direct
// readings are replaced with a cross-rate triangulated through USD.
package gfinance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/bergamot1144/P2P-Monitor/numeric"
	"github.com/bergamot1144/P2P-Monitor/provider"
)

var (
	ErrNoQuote     = errors.New("no quote found on page")
	ErrMissingLeg  = errors.New("triangulation leg unavailable")
	errInvalidRate = errors.New("invalid rate")
)

const defaultBaseURL = "https://www.google.com/finance/quote"

// pivot is the common reference currency for triangulated cross-rates
var pivot provider.Currency = "USD"

// stableAssets are treated as pivot-equivalent by definition, without a
// network call for the asset->pivot leg
var stableAssets = map[provider.Currency]struct{}{
	"USDT": {},
	"USDC": {},
}

// bracket is a coarse plausibility range for a currency pair
type bracket struct {
	low, high decimal.Decimal
}

// plausibility holds hand-picked brackets per (asset, fiat) pair.
// A direct reading outside its bracket is discarded in favor of the
// cross-rate when one is available. Pairs without a bracket are
// accepted as-is.
var plausibility = map[[2]provider.Currency]bracket{
	{"USDT", "UAH"}: {decimal.NewFromInt(10), decimal.NewFromInt(200)},
	{"USDC", "UAH"}: {decimal.NewFromInt(10), decimal.NewFromInt(200)},
	{"USD", "UAH"}:  {decimal.NewFromInt(10), decimal.NewFromInt(200)},
	{"USDT", "USD"}: {decimal.RequireFromString("0.5"), decimal.NewFromInt(2)},
	{"USDC", "USD"}: {decimal.RequireFromString("0.5"), decimal.NewFromInt(2)},
	{"USDT", "EUR"}: {decimal.RequireFromString("0.5"), decimal.NewFromInt(2)},
}

// lastPriceRegex is the raw-pattern fallback over the response body
var lastPriceRegex = regexp.MustCompile(`data-last-price="([^"]+)"`)

// Client is the finance-quote website scraping client
type Client struct {
	client  *http.Client
	baseURL string
}

// New creates a new finance-quote client
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// FetchRate resolves the asset/fiat rate. A failed or implausible
// direct lookup falls back to a cross-rate triangulated through the
// pivot currency; an implausible direct reading with no usable
// cross-rate is kept as-is.
func (c *Client) FetchRate(
	ctx context.Context,
	asset, fiat provider.Currency,
) (*provider.Quote, error) {
	direct, directErr := c.fetchDirect(ctx, asset, fiat)

	if directErr == nil && c.plausible(asset, fiat, direct.Value) {
		return direct, nil
	}

	cross, crossErr := c.triangulate(ctx, asset, fiat)
	if crossErr == nil {
		return cross, nil
	}

	if directErr == nil {
		// Implausible but no cross-rate to replace it with
		return direct, nil
	}

	return nil, directErr
}

// fetchDirect scrapes the quote page for one pair
func (c *Client) fetchDirect(
	ctx context.Context,
	asset, fiat provider.Currency,
) (*provider.Quote, error) {
	pageURL := fmt.Sprintf("%s/%s-%s", c.baseURL, asset, fiat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("unable to create GET request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	// The raw body is kept around for the pattern-search fallback
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}

	value, strategy, err := extractPrice(body, asset, fiat)
	if err != nil {
		return nil, err
	}

	if !value.IsPositive() {
		return nil, errInvalidRate
	}

	return &provider.Quote{
		Value:    value,
		Strategy: strategy,
		URL:      pageURL,
		At:       time.Now().UTC(),
	}, nil
}

// extractPrice walks the extraction chain over the fetched page:
// machine-readable attribute, then visible text, then a raw pattern
// search over the whole body
func extractPrice(
	body []byte,
	asset, fiat provider.Currency,
) (decimal.Decimal, provider.Strategy, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("unable to construct query doc: %w", err)
	}

	// Primary: the element carrying the machine-readable price, with
	// the pair encoded in its identifying attributes
	sel := doc.Find(fmt.Sprintf(
		`[data-last-price][data-source=%q][data-target=%q]`,
		asset.String(), fiat.String(),
	)).First()

	if sel.Length() > 0 {
		if raw, ok := sel.Attr("data-last-price"); ok {
			if v, ok := numeric.ParseDecimal(raw); ok {
				return v, provider.StrategyDirectAttribute, nil
			}
		}
	}

	// Fallback: the visible rendered quote text
	txt := strings.TrimSpace(doc.Find("[data-last-price]").First().Text())
	if txt == "" {
		txt = strings.TrimSpace(doc.Find(".YMlKec").First().Text())
	}

	if txt != "" {
		if v, ok := numeric.ExtractDecimal(txt); ok {
			return v, provider.StrategyVisibleText, nil
		}
	}

	// Last resort: raw pattern search over the response body
	if m := lastPriceRegex.FindSubmatch(body); m != nil {
		if v, ok := numeric.ParseDecimal(string(m[1])); ok {
			return v, provider.StrategyDirectAttribute, nil
		}
	}

	return decimal.Decimal{}, "", ErrNoQuote
}

// triangulate composes asset->pivot and pivot->fiat into a cross-rate.
// Either leg missing fails the whole operation.
func (c *Client) triangulate(
	ctx context.Context,
	asset, fiat provider.Currency,
) (*provider.Quote, error) {
	left, err := c.legRate(ctx, asset, pivot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s-%s: %w", ErrMissingLeg, asset, pivot, err)
	}

	right, err := c.legRate(ctx, pivot, fiat)
	if err != nil {
		return nil, fmt.Errorf("%w: %s-%s: %w", ErrMissingLeg, pivot, fiat, err)
	}

	return &provider.Quote{
		Value:    left.Mul(right),
		Strategy: provider.StrategyCrossPivot,
		URL:      fmt.Sprintf("%s/%s-%s", c.baseURL, pivot, fiat),
		At:       time.Now().UTC(),
	}, nil
}

// legRate resolves one triangulation leg. Stable-valued assets are
// pivot-equivalent by definition and skip the network entirely.
func (c *Client) legRate(
	ctx context.Context,
	from, to provider.Currency,
) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	_, fromStable := stableAssets[from]
	_, toStable := stableAssets[to]

	if (fromStable && to == pivot) || (from == pivot && toStable) {
		return decimal.NewFromInt(1), nil
	}

	q, err := c.fetchDirect(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return q.Value, nil
}

// plausible reports whether the value falls within the hand-picked
// bracket for the pair, when one exists
func (c *Client) plausible(asset, fiat provider.Currency, value decimal.Decimal) bool {
	b, ok := plausibility[[2]provider.Currency{asset, fiat}]
	if !ok {
		return true
	}

	return value.GreaterThanOrEqual(b.low) && value.LessThanOrEqual(b.high)
}
