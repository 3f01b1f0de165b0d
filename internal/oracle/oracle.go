// Package oracle fetches the BTC-in-fiat market price used by the Safety
// Envelope's premium-deviation check (spec §4.I, §6 "Price oracle").
package oracle

import (
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/mostro-trade/mostro-client/pkg/logging"
)

// FallbackSatsPerUSD is the conservative exchange rate used when the oracle
// is unreachable and a caller still needs a rough sats estimate for a
// fiat-denominated order (spec §4.H step 2).
const FallbackSatsPerUSD = 1000

// priceResponse mirrors the oracle's {BTC: {FIAT_CODE: price}} shape.
type priceResponse struct {
	BTC map[string]float64 `json:"BTC"`
}

// Client is a go-resty-based client for the configured price API.
type Client struct {
	http    *resty.Client
	baseURL string
	log     *logging.Logger
}

// New constructs a Client against baseURL (spec's configured price_api).
func New(baseURL string) *Client {
	return &Client{
		http:    resty.New(),
		baseURL: baseURL,
		log:     logging.Default().Component("oracle"),
	}
}

// Price fetches the current BTC price in fiatCode (e.g. "USD"). On any
// failure it returns zero and a non-nil error, so callers can distinguish
// "unavailable" (which must not block trading, spec §6) from "got a price";
// a nil error always comes with a positive price.
func (c *Client) Price(fiatCode string) (float64, error) {
	var body priceResponse
	resp, err := c.http.R().
		SetResult(&body).
		Get(fmt.Sprintf("%s/convert/1/BTC/%s", c.baseURL, fiatCode))
	if err != nil {
		c.log.Warn("price oracle unreachable", "error", err)
		return 0, fmt.Errorf("fetch price: %w", err)
	}
	if resp.IsError() {
		c.log.Warn("price oracle returned an error status", "status", resp.StatusCode())
		return 0, fmt.Errorf("price oracle status %d", resp.StatusCode())
	}
	price, ok := body.BTC[fiatCode]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("price oracle returned no price for %s", fiatCode)
	}
	return price, nil
}

// PriceOrFallback fetches the market price, logging a warning and falling
// back to a conservative sats/fiat estimate if the oracle is unreachable —
// the oracle must never block trading (spec §6, §4.H step 2).
func (c *Client) PriceOrFallback(fiatCode string) float64 {
	price, err := c.Price(fiatCode)
	if err != nil {
		c.log.Warn("using fallback sats/fiat rate", "fiat_code", fiatCode, "error", err)
		return 1e8 / FallbackSatsPerUSD
	}
	return price
}
