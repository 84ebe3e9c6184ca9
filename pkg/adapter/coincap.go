package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const DefaultCoinCapBaseURL = "https://api.coincap.io/v2/assets"

// MarketData is the market data collaborator. One call is one attempt, retries
// are the caller's business.
type MarketData interface {
	GetAsset(ctx context.Context, id string) (map[string]any, error)
}

type CoinCapClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type CoinCapOption func(*CoinCapClient)

func WithCoinCapBaseURL(baseURL string) CoinCapOption {
	return func(c *CoinCapClient) {
		c.baseURL = baseURL
	}
}

// WithCoinCapAPIKey sets a bearer token, required by the v3 API
func WithCoinCapAPIKey(apiKey string) CoinCapOption {
	return func(c *CoinCapClient) {
		c.apiKey = apiKey
	}
}

func WithCoinCapHTTPClient(client *http.Client) CoinCapOption {
	return func(c *CoinCapClient) {
		c.httpClient = client
	}
}

func NewCoinCap(opts ...CoinCapOption) *CoinCapClient {
	c := &CoinCapClient{
		baseURL:    DefaultCoinCapBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type coinCapResponse struct {
	Data map[string]any `json:"data"`
}

// GetAsset fetches the `data` object of one asset. The id is lower-cased before use.
func (c *CoinCapClient) GetAsset(ctx context.Context, id string) (map[string]any, error) {
	endpoint := strings.TrimRight(c.baseURL, "/") + "/" + url.PathEscape(strings.ToLower(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("url", endpoint))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request", goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, goerr.New("CoinCap API returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("url", endpoint),
			goerr.V("body", string(body)))
	}

	var result coinCapResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, goerr.Wrap(err, "failed to decode response", goerr.V("url", endpoint))
	}

	return result.Data, nil
}
