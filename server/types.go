package server

import (
	"github.com/shopspring/decimal"

	"github.com/bergamot1144/P2P-Monitor/provider"
	"github.com/bergamot1144/P2P-Monitor/provider/binance"
	"github.com/bergamot1144/P2P-Monitor/refdata"
)

// SearchFilter echoes the effective order-book query back to the caller
type SearchFilter struct {
	Asset    provider.Currency `json:"asset"`
	Fiat     provider.Currency `json:"fiat"`
	Side     provider.Side     `json:"side"`
	Amount   string            `json:"amount,omitempty"`
	Merchant bool              `json:"merchant"`
	Verified bool              `json:"verified"`
	Payments []string          `json:"payment,omitempty"`
}

type RatesResponse struct {
	OK        bool              `json:"ok"`
	Params    SearchFilter      `json:"params"`
	Binance   *provider.Book    `json:"binance,omitempty"`
	Bybit     *provider.Book    `json:"bybit,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	CycleID   string            `json:"cycle_id"`
	Timestamp int64             `json:"timestamp"`
}

type PayTypesResponse struct {
	OK       bool                `json:"ok"`
	PayTypes []binance.PayMethod `json:"paytypes"`
}

type PaymentsResponse struct {
	OK       bool                `json:"ok"`
	Payments []refdata.PayMethod `json:"payments"`
}

// QuoteData is the nested payload of a reference-rate response
type QuoteData struct {
	Price  decimal.Decimal   `json:"price"`
	Source provider.Strategy `json:"source"`
	URL    string            `json:"url"`
	TS     int64             `json:"ts"`
}

type QuoteResponse struct {
	OK    bool       `json:"ok"`
	Data  *QuoteData `json:"data,omitempty"`
	Error string     `json:"error,omitempty"`
}

// GFResponse is flat, unlike QuoteResponse, to match what the
// dashboard expects from each endpoint
type GFResponse struct {
	OK     bool              `json:"ok"`
	Price  *decimal.Decimal  `json:"price,omitempty"`
	Source provider.Strategy `json:"source,omitempty"`
	TS     int64             `json:"ts,omitempty"`
	URL    string            `json:"url,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type CodesResponse struct {
	Codes []string `json:"codes"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
