// Package provider holds the types shared by every upstream rate source:
// order-book entries and their rank-3-to-5 average for the P2P exchanges,
// and provenance-tagged quotes for the reference providers.
package provider

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Currency string

func (c Currency) String() string {
	return string(c)
}

// Side is the trade direction, from the point of view of the dashboard
// user: SELL means the user sells the asset for fiat
type Side string

const (
	SideSELL Side = "SELL"
	SideBUY  Side = "BUY"
)

func (s Side) String() string {
	return string(s)
}

// ParseSide normalizes a raw side parameter, defaulting to SELL
func ParseSide(raw string) Side {
	if strings.EqualFold(strings.TrimSpace(raw), SideBUY.String()) {
		return SideBUY
	}

	return SideSELL
}

// BybitFlag returns the binary side encoding the Bybit API expects:
// "0" for sell-side ads, "1" for buy-side ads
func (s Side) BybitFlag() string {
	if s == SideBUY {
		return "1"
	}

	return "0"
}

// OrderBookEntry is one P2P advertisement as returned by an exchange
type OrderBookEntry struct {
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Min    string          `json:"min,omitempty"`
	Max    string          `json:"max,omitempty"`
	Volume string          `json:"volume,omitempty"`
}

// Book is the top of one P2P order book for a single fetch: the first
// TopEntries advertisements in upstream ranking order, their prices, and
// the representative rank-3-to-5 average (nil when undefined)
type Book struct {
	Items  []OrderBookEntry  `json:"items"`
	Prices []decimal.Decimal `json:"prices"`
	Avg    *decimal.Decimal  `json:"avg"`
}

// TopEntries caps how many ranked advertisements a Book retains
const TopEntries = 5

// Strategy tags the extraction path that produced a reference quote
type Strategy string

const (
	StrategyDirectAttribute Strategy = "direct-attribute"
	StrategyVisibleText     Strategy = "visible-text"
	StrategyPageMetadata    Strategy = "page-metadata"
	StrategyCrossPivot      Strategy = "cross-pivot"
	StrategyConversion      Strategy = "conversion"
	StrategyChart           Strategy = "chart"
	StrategyAveraged        Strategy = "averaged"
)

func (s Strategy) String() string {
	return string(s)
}

// Quote is one resolved reference-provider price with its provenance
type Quote struct {
	Value    decimal.Decimal `json:"price"`
	Strategy Strategy        `json:"source"`
	URL      string          `json:"url"`
	At       time.Time       `json:"ts"`
}

var three = decimal.NewFromInt(3)

// Average35 computes the representative market rate from an ordered list
// of prices, best-ranked first. The two best-ranked quotes are skipped
// as unrepresentative (stale, aggressive, or capped too low) and ranks
// 3 through 5 are averaged. With fewer than 5 prices the rate is
// undefined and nil is returned.
func Average35(prices []decimal.Decimal) *decimal.Decimal {
	if len(prices) < 5 {
		return nil
	}

	avg := prices[2].Add(prices[3]).Add(prices[4]).Div(three)

	return &avg
}
