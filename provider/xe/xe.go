// Package xe extracts reference exchange rates from the
// currency-converter website. One rendered page yields two independent
// candidate values, the conversion-result block and the statistics
// block, which are reconciled into a single provenance-tagged quote;
// page metadata and a USD cross-rate serve as fallbacks.
package xe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/bergamot1144/P2P-Monitor/numeric"
	"github.com/bergamot1144/P2P-Monitor/provider"
)

var (
	ErrNoRate     = errors.New("no rate found on page")
	ErrMissingLeg = errors.New("triangulation leg unavailable")
)

const defaultBaseURL = "https://www.xe.com/currencyconverter/convert/"

// pivot is the common reference currency for triangulated cross-rates
var pivot provider.Currency = "USD"

// stableAssets are treated as pivot-equivalent without a network call
var stableAssets = map[provider.Currency]struct{}{
	"USDT": {},
	"USDC": {},
}

// divergenceThreshold is the relative difference above which the two
// page candidates are considered to disagree
var divergenceThreshold = decimal.RequireFromString("0.03")

var two = decimal.NewFromInt(2)

// plausibility holds the coarse per-pair brackets for direct readings;
// out-of-bracket values trigger the cross-rate fallback
var plausibility = map[[2]provider.Currency]struct {
	low, high decimal.Decimal
}{
	{"USD", "UAH"}:  {decimal.NewFromInt(10), decimal.NewFromInt(200)},
	{"USDT", "UAH"}: {decimal.NewFromInt(10), decimal.NewFromInt(200)},
	{"USDC", "UAH"}: {decimal.NewFromInt(10), decimal.NewFromInt(200)},
}

// Client is the currency-converter website scraping client
type Client struct {
	renderer Renderer
	baseURL  string
}

// New creates a new converter-page client using the given renderer
func New(baseURL string, renderer Renderer) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		renderer: renderer,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// FetchRate resolves the from/to rate. A direct lookup that fails or
// falls outside the pair's plausibility range is replaced with a
// cross-rate triangulated through the pivot currency.
func (c *Client) FetchRate(
	ctx context.Context,
	from, to provider.Currency,
) (*provider.Quote, error) {
	direct, directErr := c.fetchDirect(ctx, from, to)

	if directErr == nil && c.plausible(from, to, direct.Value) {
		return direct, nil
	}

	cross, crossErr := c.triangulate(ctx, from, to)
	if crossErr == nil {
		return cross, nil
	}

	if directErr == nil {
		return direct, nil
	}

	return nil, directErr
}

// fetchDirect renders the converter page for one pair and reconciles
// its candidate values
func (c *Client) fetchDirect(
	ctx context.Context,
	from, to provider.Currency,
) (*provider.Quote, error) {
	pageURL := fmt.Sprintf(
		"%s/?Amount=1&From=%s&To=%s",
		c.baseURL,
		url.QueryEscape(from.String()),
		url.QueryEscape(to.String()),
	)

	html, err := c.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("unable to render converter page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("unable to construct query doc: %w", err)
	}

	value, strategy, ok := reconcile(
		extractConversion(doc),
		extractChart(doc),
	)

	if !ok {
		// Neither primary candidate is usable, fall back to the
		// machine-readable page metadata
		value, ok = extractMetadata(doc)
		if !ok {
			return nil, ErrNoRate
		}

		strategy = provider.StrategyPageMetadata
	}

	return &provider.Quote{
		Value:    value,
		Strategy: strategy,
		URL:      pageURL,
		At:       time.Now().UTC(),
	}, nil
}

// extractConversion pulls the candidate from the primary
// conversion-result block
func extractConversion(doc *goquery.Document) decimal.Decimal {
	sel := doc.Find(`[class*="result__BigRate"]`).First()
	if sel.Length() == 0 {
		sel = doc.Find(`[data-testid="conversion"] p`).First()
	}

	txt := strings.TrimSpace(sel.Text())
	if txt == "" {
		return decimal.Decimal{}
	}

	v, ok := numeric.ExtractDecimal(txt)
	if !ok {
		return decimal.Decimal{}
	}

	return v
}

// extractChart pulls the candidate from the independent statistics
// table block
func extractChart(doc *goquery.Document) decimal.Decimal {
	sel := doc.Find(`[class*="unit-rates"]`).First()
	if sel.Length() == 0 {
		sel = doc.Find(`[data-testid="currencyStats"]`).First()
	}

	txt := strings.TrimSpace(sel.Text())
	if txt == "" {
		return decimal.Decimal{}
	}

	v, ok := numeric.ExtractDecimal(txt)
	if !ok {
		return decimal.Decimal{}
	}

	return v
}

// extractMetadata pulls the rate embedded in the page description
func extractMetadata(doc *goquery.Document) (decimal.Decimal, bool) {
	content, ok := doc.Find(`meta[name="description"]`).First().Attr("content")
	if !ok || strings.TrimSpace(content) == "" {
		return decimal.Decimal{}, false
	}

	v, ok := numeric.ExtractDecimal(content)
	if !ok || !v.IsPositive() {
		return decimal.Decimal{}, false
	}

	return v, true
}

// reconcile picks one value from the two independent page candidates:
// a single positive candidate wins with its own tag; two positive
// candidates within the divergence threshold are averaged; past the
// threshold the conversion block is trusted over the statistics block
func reconcile(conv, chart decimal.Decimal) (decimal.Decimal, provider.Strategy, bool) {
	var (
		convOK  = conv.IsPositive()
		chartOK = chart.IsPositive()
	)

	switch {
	case convOK && chartOK:
		var (
			mean = conv.Add(chart).Div(two)
			diff = chart.Sub(conv).Abs().Div(mean)
		)

		if diff.LessThanOrEqual(divergenceThreshold) {
			return mean, provider.StrategyAveraged, true
		}

		return conv, provider.StrategyConversion, true
	case convOK:
		return conv, provider.StrategyConversion, true
	case chartOK:
		return chart, provider.StrategyChart, true
	default:
		return decimal.Decimal{}, "", false
	}
}

// triangulate composes from->pivot and pivot->to into a cross-rate.
// Either leg missing fails the whole operation.
func (c *Client) triangulate(
	ctx context.Context,
	from, to provider.Currency,
) (*provider.Quote, error) {
	left, err := c.legRate(ctx, from, pivot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s-%s: %w", ErrMissingLeg, from, pivot, err)
	}

	right, err := c.legRate(ctx, pivot, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %s-%s: %w", ErrMissingLeg, pivot, to, err)
	}

	return &provider.Quote{
		Value:    left.Mul(right),
		Strategy: provider.StrategyCrossPivot,
		URL:      c.baseURL,
		At:       time.Now().UTC(),
	}, nil
}

// legRate resolves one triangulation leg, with the stable-asset
// shortcut for the pivot legs
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

	if !q.Value.IsPositive() {
		return decimal.Decimal{}, ErrNoRate
	}

	return q.Value, nil
}

// plausible reports whether the value falls within the hand-picked
// bracket for the pair, when one exists
func (c *Client) plausible(from, to provider.Currency, value decimal.Decimal) bool {
	b, ok := plausibility[[2]provider.Currency{from, to}]
	if !ok {
		return value.IsPositive()
	}

	return value.GreaterThanOrEqual(b.low) && value.LessThanOrEqual(b.high)
}
