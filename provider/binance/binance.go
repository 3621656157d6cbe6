//nolint:tagliatelle // Binance API uses camel case
package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/bergamot1144/P2P-Monitor/numeric"
	"github.com/bergamot1144/P2P-Monitor/provider"
)

const (
	searchURL = "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search"

	// successCode is the in-band status the API reports on success;
	// anything else is a schema error even on HTTP 200
	successCode = "000000"

	payTypePages = 3
)

// searchRequest is the request body for the Binance P2P search API
type searchRequest struct {
	Asset         provider.Currency `json:"asset"`
	Fiat          provider.Currency `json:"fiat"`
	MerchantCheck bool              `json:"merchantCheck"`
	Page          int               `json:"page"`
	PayTypes      []string          `json:"payTypes"`
	PublisherType *string           `json:"publisherType"`
	Rows          int               `json:"rows"`
	TradeType     provider.Side     `json:"tradeType"`
	TransAmount   string            `json:"transAmount"`
}

// searchResponse is the response from the Binance P2P search API
type searchResponse struct {
	Code string   `json:"code"`
	Data []advRow `json:"data"`
}

type advRow struct {
	Adv        adv        `json:"adv"`
	Advertiser advertiser `json:"advertiser"`
}

type adv struct {
	Price                string        `json:"price"`
	MinSingleTransAmount string        `json:"minSingleTransAmount"`
	MaxSingleTransAmount string        `json:"maxSingleTransAmount"`
	SurplusAmount        string        `json:"surplusAmount"`
	TradeMethods         []tradeMethod `json:"tradeMethods"`
}

type advertiser struct {
	NickName string `json:"nickName"`
}

type tradeMethod struct {
	Identifier      string `json:"identifier"`
	TradeMethodName string `json:"tradeMethodName"`
}

// PayMethod is one distinct payment method seen in the search results
type PayMethod struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchParams narrows the advertisement search
type SearchParams struct {
	Asset    provider.Currency
	Fiat     provider.Currency
	Side     provider.Side
	Amount   string
	PayTypes []string
	Rows     int
	Merchant bool
}

// Client fetches P2P order books from the Binance search API
type Client struct {
	client *http.Client
	url    string
	cookie string
}

// New creates a new Binance P2P client. The cookie is passed through to
// the upstream verbatim (the API gates some results behind a session)
func New(timeout time.Duration, cookie string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		url:    searchURL,
		cookie: cookie,
	}
}

// FetchBook fetches the advertisement search results and maps the top
// ranked ones into a Book, upstream order preserved
func (c *Client) FetchBook(ctx context.Context, params SearchParams) (*provider.Book, error) {
	rows, err := c.search(ctx, params, 1)
	if err != nil {
		return nil, err
	}

	if len(rows) > provider.TopEntries {
		rows = rows[:provider.TopEntries]
	}

	book := &provider.Book{
		Items: make([]provider.OrderBookEntry, 0, len(rows)),
	}

	for _, row := range rows {
		price, ok := numeric.ParseDecimal(row.Adv.Price)
		if !ok {
			// Unparseable price, skip the row
			continue
		}

		name := row.Advertiser.NickName
		if name == "" {
			name = "-"
		}

		book.Items = append(book.Items, provider.OrderBookEntry{
			Name:   name,
			Price:  price,
			Min:    row.Adv.MinSingleTransAmount,
			Max:    row.Adv.MaxSingleTransAmount,
			Volume: row.Adv.SurplusAmount,
		})

		book.Prices = append(book.Prices, price)
	}

	book.Avg = provider.Average35(book.Prices)

	return book, nil
}

// PayTypes enumerates the distinct payment methods seen across multiple
// result pages, deduplicated by identifier and sorted by display name
// then identifier. Used for filter population only.
func (c *Client) PayTypes(ctx context.Context, params SearchParams) ([]PayMethod, error) {
	seen := make(map[string]PayMethod)

	for page := 1; page <= payTypePages; page++ {
		rows, err := c.search(ctx, params, page)
		if err != nil {
			return nil, err
		}

		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			for _, method := range row.Adv.TradeMethods {
				if method.Identifier == "" {
					continue
				}

				if _, ok := seen[method.Identifier]; ok {
					continue
				}

				name := method.TradeMethodName
				if name == "" {
					name = method.Identifier
				}

				seen[method.Identifier] = PayMethod{
					ID:   method.Identifier,
					Name: name,
				}
			}
		}
	}

	out := make([]PayMethod, 0, len(seen))
	for _, method := range seen {
		out = append(out, method)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}

		return out[i].ID < out[j].ID
	})

	return out, nil
}

// search executes one page of the advertisement search
func (c *Client) search(ctx context.Context, params SearchParams, page int) ([]advRow, error) {
	rows := params.Rows
	if rows <= 0 {
		rows = 10
	}

	payTypes := params.PayTypes
	if payTypes == nil {
		payTypes = []string{}
	}

	reqBody := searchRequest{
		Asset:         params.Asset,
		Fiat:          params.Fiat,
		MerchantCheck: params.Merchant,
		Page:          page,
		PayTypes:      payTypes,
		PublisherType: nil,
		Rows:          rows,
		TradeType:     params.Side,
		TransAmount:   params.Amount,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create POST request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Origin", "https://p2p.binance.com")
	req.Header.Set("Referer", "https://p2p.binance.com/ru-RU")

	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute POST request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	var apiResp searchResponse
	if err = json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("unable to decode response: %w", err)
	}

	if apiResp.Code != successCode {
		return nil, fmt.Errorf("api error code received: %s", apiResp.Code)
	}

	return apiResp.Data, nil
}
