//nolint:tagliatelle // Bybit API uses camel case
package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bergamot1144/P2P-Monitor/numeric"
	"github.com/bergamot1144/P2P-Monitor/provider"
)

const onlineURL = "https://www.bybit.com/x-api/fiat/otc/item/online"

// onlineRequest is the request body for the Bybit OTC online-items API.
// The side is a binary flag encoded as a string: "0" sell, "1" buy.
type onlineRequest struct {
	TokenID        provider.Currency `json:"tokenId"`
	CurrencyID     provider.Currency `json:"currencyId"`
	Payment        []string          `json:"payment"`
	Side           string            `json:"side"`
	Size           string            `json:"size"`
	Page           string            `json:"page"`
	Amount         string            `json:"amount"`
	AuthMaker      bool              `json:"authMaker"`
	CanTrade       bool              `json:"canTrade"`
	ShieldMerchant bool              `json:"shieldMerchant"`
	Reputation     bool              `json:"reputation"`
	Country        string            `json:"country"`
}

// onlineResponse is the response from the Bybit OTC online-items API.
// Result and its item collection may be absent entirely; that is an
// empty book, not an error.
type onlineResponse struct {
	Result *onlineResult `json:"result"`
}

type onlineResult struct {
	Items []onlineItem `json:"items"`
}

type onlineItem struct {
	NickName     string `json:"nickName"`
	Price        string `json:"price"`
	MinAmount    string `json:"minAmount"`
	MaxAmount    string `json:"maxAmount"`
	LastQuantity string `json:"lastQuantity"`
}

// SearchParams narrows the advertisement search
type SearchParams struct {
	Asset    provider.Currency
	Fiat     provider.Currency
	Side     provider.Side
	Amount   string
	Payments []string
	Rows     int
	Verified bool
}

// Client fetches P2P order books from the Bybit OTC API
type Client struct {
	client *http.Client
	url    string
	cookie string
}

// New creates a new Bybit P2P client
func New(timeout time.Duration, cookie string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		url:    onlineURL,
		cookie: cookie,
	}
}

// FetchBook fetches the online advertisements and maps the top ranked
// ones into a Book, upstream order preserved
func (c *Client) FetchBook(ctx context.Context, params SearchParams) (*provider.Book, error) {
	rows := params.Rows
	if rows <= 0 {
		rows = 10
	}

	payments := params.Payments
	if payments == nil {
		payments = []string{}
	}

	reqBody := onlineRequest{
		TokenID:    params.Asset,
		CurrencyID: params.Fiat,
		Payment:    payments,
		Side:       params.Side.BybitFlag(),
		Size:       fmt.Sprintf("%d", rows),
		Page:       "1",
		Amount:     params.Amount,
		AuthMaker:  params.Verified,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create POST request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", "https://www.bybit.com")
	req.Header.Set("Referer", "https://www.bybit.com/ru-RU/p2p")

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

	var apiResp onlineResponse
	if err = json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("unable to decode response: %w", err)
	}

	var items []onlineItem
	if apiResp.Result != nil {
		items = apiResp.Result.Items
	}

	if len(items) > provider.TopEntries {
		items = items[:provider.TopEntries]
	}

	book := &provider.Book{
		Items: make([]provider.OrderBookEntry, 0, len(items)),
	}

	for _, item := range items {
		price, ok := numeric.ParseDecimal(item.Price)
		if !ok {
			continue
		}

		name := item.NickName
		if name == "" {
			name = "-"
		}

		book.Items = append(book.Items, provider.OrderBookEntry{
			Name:   name,
			Price:  price,
			Min:    item.MinAmount,
			Max:    item.MaxAmount,
			Volume: item.LastQuantity,
		})

		book.Prices = append(book.Prices, price)
	}

	book.Avg = provider.Average35(book.Prices)

	return book, nil
}
