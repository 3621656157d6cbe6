package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bergamot1144/P2P-Monitor/provider"
	"github.com/bergamot1144/P2P-Monitor/provider/binance"
	"github.com/bergamot1144/P2P-Monitor/provider/bybit"
	"github.com/bergamot1144/P2P-Monitor/refdata"
)

type mockBinance struct {
	fetchBookFn func(context.Context, binance.SearchParams) (*provider.Book, error)
	payTypesFn  func(context.Context, binance.SearchParams) ([]binance.PayMethod, error)
}

func (m *mockBinance) FetchBook(
	ctx context.Context,
	params binance.SearchParams,
) (*provider.Book, error) {
	if m.fetchBookFn != nil {
		return m.fetchBookFn(ctx, params)
	}

	return nil, nil
}

func (m *mockBinance) PayTypes(
	ctx context.Context,
	params binance.SearchParams,
) ([]binance.PayMethod, error) {
	if m.payTypesFn != nil {
		return m.payTypesFn(ctx, params)
	}

	return nil, nil
}

type mockBybit struct {
	fetchBookFn func(context.Context, bybit.SearchParams) (*provider.Book, error)
}

func (m *mockBybit) FetchBook(
	ctx context.Context,
	params bybit.SearchParams,
) (*provider.Book, error) {
	if m.fetchBookFn != nil {
		return m.fetchBookFn(ctx, params)
	}

	return nil, nil
}

type mockQuote struct {
	fetchRateFn func(context.Context, provider.Currency, provider.Currency) (*provider.Quote, error)
}

func (m *mockQuote) FetchRate(
	ctx context.Context,
	from, to provider.Currency,
) (*provider.Quote, error) {
	if m.fetchRateFn != nil {
		return m.fetchRateFn(ctx, from, to)
	}

	return nil, nil
}

func testBook(prices ...string) *provider.Book {
	book := &provider.Book{
		Items:  make([]provider.OrderBookEntry, 0, len(prices)),
		Prices: make([]decimal.Decimal, 0, len(prices)),
	}

	for _, p := range prices {
		d := decimal.RequireFromString(p)

		book.Items = append(book.Items, provider.OrderBookEntry{
			Name:  "trader",
			Price: d,
		})
		book.Prices = append(book.Prices, d)
	}

	book.Avg = provider.Average35(book.Prices)

	return book
}

func TestHandlers_Rates(t *testing.T) {
	t.Parallel()

	t.Run("invalid currency", func(t *testing.T) {
		t.Parallel()

		var called bool

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				Binance: &mockBinance{
					fetchBookFn: func(
						_ context.Context,
						_ binance.SearchParams,
					) (*provider.Book, error) {
						called = true

						return nil, nil
					},
				},
				Bybit: &mockBybit{},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/rates?asset=US$", http.NoBody)
		w := httptest.NewRecorder()

		s.Rates(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, called)
	})

	t.Run("both sources answer", func(t *testing.T) {
		t.Parallel()

		var (
			capturedBinance binance.SearchParams
			capturedBybit   bybit.SearchParams
		)

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				Binance: &mockBinance{
					fetchBookFn: func(
						_ context.Context,
						params binance.SearchParams,
					) (*provider.Book, error) {
						capturedBinance = params

						return testBook("41.10", "41.20", "41.30", "41.40", "41.50"), nil
					},
				},
				Bybit: &mockBybit{
					fetchBookFn: func(
						_ context.Context,
						params bybit.SearchParams,
					) (*provider.Book, error) {
						capturedBybit = params

						return testBook("41.00", "41.05", "41.10", "41.15", "41.20"), nil
					},
				},
			},
		}

		url := "/api/rates?asset=usdt&fiat=uah&side=buy&amount=5000" +
			"&merchant=true&verified=1&payment=43,1&payment=150"
		req := httptest.NewRequest(http.MethodGet, url, http.NoBody)
		w := httptest.NewRecorder()

		s.Rates(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp RatesResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.True(t, resp.OK)
		assert.Empty(t, resp.Errors)
		assert.NotEmpty(t, resp.CycleID)
		assert.NotZero(t, resp.Timestamp)

		require.NotNil(t, resp.Binance)
		require.NotNil(t, resp.Binance.Avg)
		assert.Equal(t, "41.4", resp.Binance.Avg.String())

		require.NotNil(t, resp.Bybit)
		require.NotNil(t, resp.Bybit.Avg)
		assert.Equal(t, "41.15", resp.Bybit.Avg.String())

		assert.Equal(t, provider.Currency("USDT"), capturedBinance.Asset)
		assert.Equal(t, provider.Currency("UAH"), capturedBinance.Fiat)
		assert.Equal(t, provider.SideBUY, capturedBinance.Side)
		assert.Equal(t, "5000", capturedBinance.Amount)
		assert.True(t, capturedBinance.Merchant)
		assert.Equal(t, []string{"43", "1", "150"}, capturedBinance.PayTypes)

		assert.True(t, capturedBybit.Verified)
		assert.Equal(t, []string{"43", "1", "150"}, capturedBybit.Payments)
	})

	t.Run("one source fails", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				Binance: &mockBinance{
					fetchBookFn: func(
						_ context.Context,
						_ binance.SearchParams,
					) (*provider.Book, error) {
						return nil, errors.New("request timed out")
					},
				},
				Bybit: &mockBybit{
					fetchBookFn: func(
						_ context.Context,
						_ bybit.SearchParams,
					) (*provider.Book, error) {
						return testBook("41.00", "41.05", "41.10", "41.15", "41.20"), nil
					},
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/rates", http.NoBody)
		w := httptest.NewRecorder()

		s.Rates(w, req)

		// An upstream failure never takes down the whole response
		require.Equal(t, http.StatusOK, w.Code)

		var resp RatesResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.True(t, resp.OK)
		assert.Nil(t, resp.Binance)

		require.NotNil(t, resp.Bybit)
		require.NotNil(t, resp.Bybit.Avg)
		assert.Equal(t, "41.15", resp.Bybit.Avg.String())

		require.Contains(t, resp.Errors, "binance")
		assert.Equal(t, "request timed out", resp.Errors["binance"])
		assert.NotContains(t, resp.Errors, "bybit")
	})

	t.Run("both sources fail", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				Binance: &mockBinance{
					fetchBookFn: func(
						_ context.Context,
						_ binance.SearchParams,
					) (*provider.Book, error) {
						return nil, errors.New("binance down")
					},
				},
				Bybit: &mockBybit{
					fetchBookFn: func(
						_ context.Context,
						_ bybit.SearchParams,
					) (*provider.Book, error) {
						return nil, errors.New("bybit down")
					},
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/rates", http.NoBody)
		w := httptest.NewRecorder()

		s.Rates(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp RatesResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.True(t, resp.OK)
		assert.Len(t, resp.Errors, 2)
	})
}

func TestHandlers_BinancePayTypes(t *testing.T) {
	t.Parallel()

	t.Run("upstream error", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				Binance: &mockBinance{
					payTypesFn: func(
						_ context.Context,
						_ binance.SearchParams,
					) ([]binance.PayMethod, error) {
						return nil, errors.New("boom")
					},
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/binance/paytypes", http.NoBody)
		w := httptest.NewRecorder()

		s.BinancePayTypes(w, req)

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				Binance: &mockBinance{
					payTypesFn: func(
						_ context.Context,
						_ binance.SearchParams,
					) ([]binance.PayMethod, error) {
						return []binance.PayMethod{
							{ID: "Monobank", Name: "Monobank"},
							{ID: "PrivatBank", Name: "PrivatBank"},
						}, nil
					},
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/binance/paytypes?fiat=UAH", http.NoBody)
		w := httptest.NewRecorder()

		s.BinancePayTypes(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp PayTypesResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.True(t, resp.OK)
		require.Len(t, resp.PayTypes, 2)
		assert.Equal(t, "Monobank", resp.PayTypes[0].Name)
	})
}

func TestHandlers_BybitPayments(t *testing.T) {
	t.Parallel()

	tables := refdata.Load("", "")

	s := &Server{
		logger:  noopLogger,
		sources: Sources{Tables: tables},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bybit/payments?fiat=xyzzy!", http.NoBody)
	w := httptest.NewRecorder()

	s.BybitPayments(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/bybit/payments?fiat=UAH", http.NoBody)
	w = httptest.NewRecorder()

	s.BybitPayments(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp PaymentsResponse

	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.OK)
}

func TestHandlers_XERate(t *testing.T) {
	t.Parallel()

	t.Run("upstream error is soft", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				XE: &mockQuote{
					fetchRateFn: func(
						_ context.Context,
						_, _ provider.Currency,
					) (*provider.Quote, error) {
						return nil, errors.New("renderer failed")
					},
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/xe?from=USD&to=UAH", http.NoBody)
		w := httptest.NewRecorder()

		s.XERate(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp QuoteResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.False(t, resp.OK)
		assert.Nil(t, resp.Data)
		assert.Equal(t, "renderer failed", resp.Error)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

		var capturedFrom, capturedTo provider.Currency

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				XE: &mockQuote{
					fetchRateFn: func(
						_ context.Context,
						from, to provider.Currency,
					) (*provider.Quote, error) {
						capturedFrom, capturedTo = from, to

						return &provider.Quote{
							Value:    decimal.RequireFromString("41.26"),
							Strategy: provider.StrategyAveraged,
							URL:      "https://www.xe.com/currencyconverter/",
							At:       at,
						}, nil
					},
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/xe?from=usd&to=uah", http.NoBody)
		w := httptest.NewRecorder()

		s.XERate(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp QuoteResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.True(t, resp.OK)
		require.NotNil(t, resp.Data)
		assert.Equal(t, "41.26", resp.Data.Price.String())
		assert.Equal(t, provider.StrategyAveraged, resp.Data.Source)
		assert.Equal(t, at.Unix(), resp.Data.TS)

		assert.Equal(t, provider.Currency("USD"), capturedFrom)
		assert.Equal(t, provider.Currency("UAH"), capturedTo)
	})
}

func TestHandlers_GFRate(t *testing.T) {
	t.Parallel()

	t.Run("upstream error is soft", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				GFinance: &mockQuote{
					fetchRateFn: func(
						_ context.Context,
						_, _ provider.Currency,
					) (*provider.Quote, error) {
						return nil, errors.New("no quote found")
					},
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/gf", http.NoBody)
		w := httptest.NewRecorder()

		s.GFRate(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp GFResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.False(t, resp.OK)
		assert.Nil(t, resp.Price)
		assert.Equal(t, "no quote found", resp.Error)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			sources: Sources{
				GFinance: &mockQuote{
					fetchRateFn: func(
						_ context.Context,
						_, _ provider.Currency,
					) (*provider.Quote, error) {
						return &provider.Quote{
							Value:    decimal.RequireFromString("41.31"),
							Strategy: provider.StrategyDirectAttribute,
							URL:      "https://www.google.com/finance/quote/USD-UAH",
							At:       time.Now(),
						}, nil
					},
				},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/gf?asset=USD&fiat=UAH", http.NoBody)
		w := httptest.NewRecorder()

		s.GFRate(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp GFResponse

		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.True(t, resp.OK)
		require.NotNil(t, resp.Price)
		assert.Equal(t, "41.31", resp.Price.String())
		assert.NotZero(t, resp.TS)
	})
}

func TestHandlers_XECodes(t *testing.T) {
	t.Parallel()

	s := &Server{
		logger:  noopLogger,
		sources: Sources{Tables: refdata.Load("", "")},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/xe/codes", http.NoBody)
	w := httptest.NewRecorder()

	s.XECodes(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp CodesResponse

	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.NotEmpty(t, resp.Codes)
	assert.Contains(t, resp.Codes, "UAH")
	assert.Contains(t, resp.Codes, "USD")
}

func TestUtils_ParseCurrencyCode(t *testing.T) {
	t.Parallel()

	t.Run("valid fiat", func(t *testing.T) {
		t.Parallel()

		value, err := parseCurrencyCode("uah", "USD")

		require.NoError(t, err)
		assert.Equal(t, provider.Currency("UAH"), value)
	})

	t.Run("valid crypto ticker", func(t *testing.T) {
		t.Parallel()

		value, err := parseCurrencyCode("usdt", "USD")

		require.NoError(t, err)
		assert.Equal(t, provider.Currency("USDT"), value)
	})

	t.Run("empty falls back", func(t *testing.T) {
		t.Parallel()

		value, err := parseCurrencyCode("", "UAH")

		require.NoError(t, err)
		assert.Equal(t, provider.Currency("UAH"), value)
	})

	t.Run("too long", func(t *testing.T) {
		t.Parallel()

		_, err := parseCurrencyCode("toolongticker", "USD")

		assert.ErrorIs(t, err, errInvalidCurrency)
	})

	t.Run("invalid chars", func(t *testing.T) {
		t.Parallel()

		_, err := parseCurrencyCode("US$", "USD")

		assert.ErrorIs(t, err, errInvalidCurrency)
	})
}

func TestUtils_ParseAmount(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		value, err := parseAmount("")

		require.NoError(t, err)
		assert.Empty(t, value)
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		value, err := parseAmount(" 5000.50 ")

		require.NoError(t, err)
		assert.Equal(t, "5000.50", value)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := parseAmount("lots")

		assert.ErrorIs(t, err, errInvalidAmount)
	})
}

func TestUtils_ParsePayments(t *testing.T) {
	t.Parallel()

	assert.Empty(t, parsePayments(nil))
	assert.Equal(
		t,
		[]string{"43", "1", "150"},
		parsePayments([]string{"43, 1", "", "150"}),
	)
}
