// Package pricefeed provides the HTTP client for the external market data
// feed that supplies current instrument prices.
package pricefeed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client for the price feed service. Implements the universe module's
// PriceSource interface.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new price feed client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "pricefeed").Logger(),
	}
}

// priceResponse is the feed's payload: symbol to latest price
type priceResponse struct {
	Prices map[string]float64 `json:"prices"`
}

// GetPrices fetches the latest prices for the given symbols. Symbols the
// feed does not know are simply absent from the result.
func (c *Client) GetPrices(symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	endpoint := fmt.Sprintf("%s/prices?symbols=%s", c.baseURL, url.QueryEscape(strings.Join(symbols, ",")))
	c.log.Debug().Int("symbols", len(symbols)).Msg("Fetching prices")

	resp, err := c.client.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("price feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var payload priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode price feed response: %w", err)
	}

	return payload.Prices, nil
}
