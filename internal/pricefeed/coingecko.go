package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"predictmarket/internal/metrics"
)

// symbolToID maps ticker symbols to CoinGecko asset identifiers.
var symbolToID = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"MATIC": "polygon",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
}

// CoinGeckoClient fetches spot prices from the CoinGecko simple price
// endpoint. The free tier allows 100 requests per minute; wrap with
// CachedFeed to stay under it.
type CoinGeckoClient struct {
	HTTP    *http.Client
	BaseURL string
}

func NewCoinGeckoClient(httpClient *http.Client, baseURL string) *CoinGeckoClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	return &CoinGeckoClient{HTTP: httpClient, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (c *CoinGeckoClient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, ok := symbolToID[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return decimal.Zero, fmt.Errorf("pricefeed: unknown symbol %q", symbol)
	}

	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", "usd")
	endpoint := c.BaseURL + "/simple/price?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.PriceFeedRequests.WithLabelValues("error").Inc()
		return decimal.Zero, fmt.Errorf("pricefeed: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.PriceFeedRequests.WithLabelValues("error").Inc()
		return decimal.Zero, fmt.Errorf("pricefeed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, err
	}

	// {"bitcoin":{"usd":43500.12}}
	var payload map[string]map[string]json.Number
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("pricefeed: decode: %w", err)
	}
	raw, ok := payload[id]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("pricefeed: no usd price for %q", symbol)
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricefeed: bad price %q: %w", raw, err)
	}
	metrics.PriceFeedRequests.WithLabelValues("ok").Inc()
	return price, nil
}
