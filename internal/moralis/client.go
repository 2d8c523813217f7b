// Package moralis is the primary balance-data provider client.
package moralis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const DefaultBaseURL = "https://deep-index.moralis.io/api/v2.2"

// ValidKey reports whether an API key is syntactically plausible. Moralis
// keys are long JWT-shaped strings; anything shorter is a misconfiguration
// and the caller should skip the primary provider entirely.
func ValidKey(key string) bool {
	return len(key) > 50
}

// Client is a Moralis REST client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

type leveledSlog struct{ inner *slog.Logger }

// Retried request failures surface as WARN; the caller decides what a
// final failure means.
func (l leveledSlog) Error(msg string, kv ...any) { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Info(msg string, kv ...any)  { l.inner.Debug(msg, kv...) }
func (l leveledSlog) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }

// NewClient creates a new Moralis client.
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
		httpClient: rc.StandardClient(),
		log:        log,
		minDelay:   250 * time.Millisecond,
	}
}

func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastCall)
	if elapsed < c.minDelay {
		time.Sleep(c.minDelay - elapsed)
	}
	c.lastCall = time.Now()
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	c.throttle()

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

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

	return data, nil
}

// TokenBalance returns the wallet's balance of one token, resolved to a
// decimal amount using the decimals Moralis reports alongside it.
func (c *Client) TokenBalance(ctx context.Context, wallet, token, chain string) (float64, error) {
	query := url.Values{}
	query.Set("chain", chain)
	query.Set("token_addresses[0]", token)

	data, err := c.doRequest(ctx, "/"+wallet+"/erc20", query)
	if err != nil {
		return 0, err
	}

	var balances []TokenBalance
	if err := json.Unmarshal(data, &balances); err != nil {
		return 0, fmt.Errorf("unmarshal: %w", err)
	}

	for _, b := range balances {
		if !strings.EqualFold(b.TokenAddress, token) {
			continue
		}
		raw, err := strconv.ParseFloat(b.Balance, 64)
		if err != nil {
			return 0, fmt.Errorf("parse balance %q: %w", b.Balance, err)
		}
		decimals := b.Decimals
		if decimals <= 0 {
			decimals = 18
		}
		return raw / pow10(decimals), nil
	}

	// Wallet holds none of this token.
	return 0, nil
}

// TokenDecimals fetches a token's decimal precision from its metadata.
func (c *Client) TokenDecimals(ctx context.Context, token, chain string) (int, error) {
	query := url.Values{}
	query.Set("chain", chain)
	query.Set("addresses[0]", token)

	data, err := c.doRequest(ctx, "/erc20/metadata", query)
	if err != nil {
		return 0, err
	}

	var metadata []TokenMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return 0, fmt.Errorf("unmarshal: %w", err)
	}
	if len(metadata) == 0 {
		return 0, fmt.Errorf("no metadata for token %s", token)
	}

	decimals, err := strconv.Atoi(metadata[0].Decimals)
	if err != nil {
		return 0, fmt.Errorf("parse decimals %q: %w", metadata[0].Decimals, err)
	}
	return decimals, nil
}

func pow10(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}
