package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/solcredit/service/metrics"
	"golang.org/x/time/rate"
)

// MaxPageSize is the largest page the enhanced transactions API returns.
const MaxPageSize = 100

// Options configures a Client.
type Options struct {
	APIURL       string  // enhanced transactions API base, e.g. https://api.helius.xyz
	RPCURL       string  // DAS endpoint, e.g. https://mainnet.helius-rpc.com
	APIKey       string  // sent as the api-key query parameter
	RPS          float64 // request pacing; <= 0 disables it
	MaxRetries   int     // extra attempts on 429, 5xx and timeouts
	RetryBackoff time.Duration
}

// StatusError is returned when Helius answers with a non-success status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("helius request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the Helius APIs.
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new Helius client. If httpClient is nil a client with a
// 30 second timeout is used. If metrics is nil, no metrics will be recorded.
func NewClient(opts Options, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}

	return &Client{
		opts:       opts,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
		metrics:    m,
	}
}

// GetTransactions returns one page of enhanced transactions for address,
// newest first. before is the signature to page backwards from ("" for the newest).
func (c *Client) GetTransactions(ctx context.Context, address, before string, limit int) ([]EnhancedTransaction, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	q := url.Values{}
	q.Set("api-key", c.opts.APIKey)
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}
	u := fmt.Sprintf("%s/v0/addresses/%s/transactions?%s", c.opts.APIURL, url.PathEscape(address), q.Encode())

	var txns []EnhancedTransaction
	err := c.do(ctx, "GetTransactions", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, &txns)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetched transaction page",
		"address", address,
		"before", before,
		"count", len(txns),
	)
	return txns, nil
}

// GetAssetsByOwner returns one page of fungible assets plus the native balance.
func (c *Client) GetAssetsByOwner(ctx context.Context, owner string, page, limit int) (*AssetsPage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "solcredit-assets",
		Method:  "getAssetsByOwner",
		Params: assetsParams{
			OwnerAddress: owner,
			Page:         page,
			Limit:        limit,
			Options: assetsOptions{
				ShowFungible:      true,
				ShowNativeBalance: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	q := url.Values{}
	q.Set("api-key", c.opts.APIKey)
	u := c.opts.RPCURL + "/?" + q.Encode()

	var resp assetsResponse
	err = c.do(ctx, "getAssetsByOwner", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("getAssetsByOwner rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("getAssetsByOwner returned no result")
	}

	c.logger.DebugContext(ctx, "fetched asset page",
		"owner", owner,
		"page", page,
		"items", len(resp.Result.Items),
	)
	return resp.Result, nil
}

// do paces, sends and decodes one request, retrying transient failures up to
// MaxRetries times with exponential backoff.
func (c *Client) do(ctx context.Context, method string, newReq func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
			c.logger.WarnContext(ctx, "retrying helius request",
				"method", method,
				"attempt", attempt+1,
				"error", lastErr,
				"backoff_seconds", backoff.Seconds(),
			)
			c.metrics.RecordRetry("helius", retryReason(lastErr))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		lastErr = c.doOnce(newReq, out)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doOnce(newReq func() (*http.Request, error), out any) error {
	req, err := newReq()
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from Helius.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error any `json:"error"`
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		switch v := errResp.Error.(type) {
		case string:
			msg = v
		case map[string]any:
			if m, ok := v["message"].(string); ok {
				msg = m
			}
		}
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

func isTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryReason(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return "rate_limit"
		}
		return "server_error"
	}
	return "timeout"
}
