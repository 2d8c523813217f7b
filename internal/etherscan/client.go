// Package etherscan is the fallback balance-data provider client. It
// returns balances in raw token units; the caller scales by decimals.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const DefaultBaseURL = "https://api.etherscan.io/v2/api"

// Client talks to the Etherscan V2 REST API.
type Client struct {
	baseURL    string
	apiKey     string
	chainID    string
	httpClient *http.Client
	log        *slog.Logger
}

type leveledSlog struct{ inner *slog.Logger }

func (l leveledSlog) Error(msg string, kv ...any) { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Info(msg string, kv ...any)  { l.inner.Debug(msg, kv...) }
func (l leveledSlog) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }

// NewClient creates a new Etherscan client. The V2 API addresses chains by
// numeric ID; this client pins mainnet.
func NewClient(baseURL, apiKey string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: log})

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		chainID:    "1",
		httpClient: rc.StandardClient(),
		log:        log,
	}
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// TokenBalanceRaw returns the wallet's balance of a token in raw units.
func (c *Client) TokenBalanceRaw(ctx context.Context, wallet, token string) (*big.Int, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("no etherscan API key configured")
	}

	query := url.Values{}
	query.Set("chainid", c.chainID)
	query.Set("module", "account")
	query.Set("action", "tokenbalance")
	query.Set("contractaddress", token)
	query.Set("address", wallet)
	query.Set("tag", "latest")
	query.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if parsed.Status != "1" {
		return nil, fmt.Errorf("API status %s: %s", parsed.Status, parsed.Message)
	}

	raw, ok := new(big.Int).SetString(parsed.Result, 10)
	if !ok {
		return nil, fmt.Errorf("malformed balance %q", parsed.Result)
	}
	return raw, nil
}
