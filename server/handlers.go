package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"

	"github.com/bergamot1144/P2P-Monitor/provider"
	"github.com/bergamot1144/P2P-Monitor/provider/binance"
	"github.com/bergamot1144/P2P-Monitor/provider/bybit"
)

// defaultAmount is the transaction volume the order books are
// filtered by when the caller does not narrow it
const defaultAmount = "20000"

var (
	errUnableToFetchPayTypes = errors.New("unable to fetch pay types")

	errInvalidCurrency = errors.New("invalid currency code")
	errInvalidAmount   = errors.New("invalid amount")
)

func (s *Server) Rates(w http.ResponseWriter, r *http.Request) {
	var (
		assetParam  = r.URL.Query().Get("asset")
		fiatParam   = r.URL.Query().Get("fiat")
		sideParam   = r.URL.Query().Get("side")
		amountParam = r.URL.Query().Get("amount")

		merchantParam = r.URL.Query().Get("merchant")
		verifiedParam = r.URL.Query().Get("verified")
		paymentParams = r.URL.Query()["payment"]
	)

	// Parse the asset (defaults to USDT)
	asset, err := parseCurrencyCode(assetParam, "USDT")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	// Parse the fiat (defaults to UAH)
	fiat, err := parseCurrencyCode(fiatParam, "UAH")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	// Parse the trade side (defaults to sell)
	side := provider.ParseSide(sideParam)

	// Parse the transaction amount
	amount, err := parseAmount(amountParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	if amount == "" {
		amount = defaultAmount
	}

	// Merchant-only filtering is on unless explicitly disabled
	merchant := true
	if merchantParam != "" {
		merchant = parseBool(merchantParam)
	}

	params := SearchFilter{
		Asset:    asset,
		Fiat:     fiat,
		Side:     side,
		Amount:   amount,
		Merchant: merchant,
		Verified: parseBool(verifiedParam),
		Payments: parsePayments(paymentParams),
	}

	resp := &RatesResponse{
		OK:        true,
		Params:    params,
		Errors:    make(map[string]string),
		CycleID:   xid.New().String(),
		Timestamp: time.Now().Unix(),
	}

	// The sources are queried one after the other. A source that
	// errors out lands in the error map and never takes down the
	// response for the sources that did answer
	binanceBook, err := s.sources.Binance.FetchBook(r.Context(), binance.SearchParams{
		Asset:    asset,
		Fiat:     fiat,
		Side:     side,
		Amount:   amount,
		PayTypes: params.Payments,
		Merchant: params.Merchant,
	})
	if err != nil {
		s.logger.Debug(
			"unable to fetch binance book",
			"err", err,
		)

		resp.Errors["binance"] = err.Error()
	} else {
		resp.Binance = binanceBook
	}

	bybitBook, err := s.sources.Bybit.FetchBook(r.Context(), bybit.SearchParams{
		Asset:    asset,
		Fiat:     fiat,
		Side:     side,
		Amount:   amount,
		Payments: params.Payments,
		Verified: params.Verified,
	})
	if err != nil {
		s.logger.Debug(
			"unable to fetch bybit book",
			"err", err,
		)

		resp.Errors["bybit"] = err.Error()
	} else {
		resp.Bybit = bybitBook
	}

	if len(resp.Errors) == 0 {
		resp.Errors = nil
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) BinancePayTypes(w http.ResponseWriter, r *http.Request) {
	var (
		assetParam = r.URL.Query().Get("asset")
		fiatParam  = r.URL.Query().Get("fiat")
		sideParam  = r.URL.Query().Get("side")
	)

	asset, err := parseCurrencyCode(assetParam, "USDT")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	fiat, err := parseCurrencyCode(fiatParam, "UAH")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	methods, err := s.sources.Binance.PayTypes(r.Context(), binance.SearchParams{
		Asset: asset,
		Fiat:  fiat,
		Side:  provider.ParseSide(sideParam),
	})
	if err != nil {
		s.logger.Debug(
			"unable to fetch pay types",
			"err", err,
		)

		writeError(
			w,
			http.StatusBadGateway,
			errUnableToFetchPayTypes,
		)

		return
	}

	resp := &PayTypesResponse{
		OK:       true,
		PayTypes: methods,
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) BybitPayments(w http.ResponseWriter, r *http.Request) {
	fiat, err := parseCurrencyCode(r.URL.Query().Get("fiat"), "UAH")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	resp := &PaymentsResponse{
		OK:       true,
		Payments: s.sources.Tables.PayMethodsFor(string(fiat)),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) XERate(w http.ResponseWriter, r *http.Request) {
	from, err := parseCurrencyCode(r.URL.Query().Get("from"), "USD")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	to, err := parseCurrencyCode(r.URL.Query().Get("to"), "UAH")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	quote, err := s.sources.XE.FetchRate(r.Context(), from, to)
	if err != nil {
		s.logger.Debug(
			"unable to fetch xe rate",
			"from", from,
			"to", to,
			"err", err,
		)

		// The dashboard treats a failed reference rate as a soft
		// error, so the status is always 200
		writeJSON(w, http.StatusOK, &QuoteResponse{
			OK:    false,
			Error: err.Error(),
		})

		return
	}

	writeJSON(w, http.StatusOK, &QuoteResponse{
		OK: true,
		Data: &QuoteData{
			Price:  quote.Value,
			Source: quote.Strategy,
			URL:    quote.URL,
			TS:     quote.At.Unix(),
		},
	})
}

func (s *Server) GFRate(w http.ResponseWriter, r *http.Request) {
	// Unlike the converter endpoint, this one keys the pair as
	// asset/fiat, matching what the dashboard sends
	from, err := parseCurrencyCode(r.URL.Query().Get("asset"), "USD")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	to, err := parseCurrencyCode(r.URL.Query().Get("fiat"), "UAH")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	quote, err := s.sources.GFinance.FetchRate(r.Context(), from, to)
	if err != nil {
		s.logger.Debug(
			"unable to fetch google finance rate",
			"from", from,
			"to", to,
			"err", err,
		)

		writeJSON(w, http.StatusOK, &GFResponse{
			OK:    false,
			Error: err.Error(),
		})

		return
	}

	writeJSON(w, http.StatusOK, &GFResponse{
		OK:     true,
		Price:  &quote.Value,
		Source: quote.Strategy,
		TS:     quote.At.Unix(),
		URL:    quote.URL,
	})
}

func (s *Server) XECodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, &CodesResponse{
		Codes: s.sources.Tables.CurrencyCodes(),
	})
}

func parseCurrencyCode(v, fallback string) (provider.Currency, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		s = fallback
	}

	// Fiat codes are 3 letters, but crypto tickers run longer (USDT, MATIC)
	if len(s) < 2 || len(s) > 6 {
		return "", errInvalidCurrency
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", errInvalidCurrency
		}
	}

	return provider.Currency(s), nil
}

func parseAmount(v string) (string, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return "", nil
	}

	if _, err := decimal.NewFromString(s); err != nil {
		return "", errInvalidAmount
	}

	return s, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parsePayments(vs []string) []string {
	out := make([]string, 0, len(vs))

	for _, v := range vs {
		// The dashboard sends the filter both repeated and comma joined
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}

	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Fine to ignore
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &ErrorResponse{
		Error: err.Error(),
	}

	writeJSON(w, status, resp)
}
