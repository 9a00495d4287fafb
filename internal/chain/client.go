// Package chain is the HTTP client for the external blockchain gateway
// that settles redemptions and answers balance queries.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianpay/tokenvault/internal/errors"
	"github.com/meridianpay/tokenvault/internal/retry"
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the gateway's REST API. Transfer is never retried here:
// the gateway may have applied a transfer whose response was lost, so
// retry is the caller's responsibility via idempotent resubmission.
// GetBalance is a read and retries on gateway faults.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	retryCfg   retry.Config
	observe    func(operation string, seconds float64)
	logger     zerolog.Logger
}

// probeAddress is the zero address used for reachability pings; every
// gateway can answer a balance read for it.
const probeAddress = "0x0000000000000000000000000000000000000000"

// NewClient creates a gateway client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retry.DefaultConfig(),
		logger:     logger.With().Str("component", "chain_gateway").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetObserver registers a callback receiving the duration of each
// gateway round trip, labeled by operation. Retried attempts are
// observed individually.
func (c *Client) SetObserver(fn func(operation string, seconds float64)) {
	c.observe = fn
}

type transferRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

type transferResponse struct {
	TxHash string `json:"tx_hash"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// Transfer moves amount (minor units) to address and returns the
// resulting chain transaction hash.
func (c *Client) Transfer(ctx context.Context, address string, amount int64) (string, error) {
	if address == "" {
		return "", errors.Validationf("payout address is required")
	}

	body, err := json.Marshal(transferRequest{Address: address, Amount: amount})
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "failed to encode transfer", err)
	}

	resp, err := c.do(ctx, "transfer", http.MethodPost, "/api/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var out transferResponse
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", errors.Externalf("gateway returned no transaction hash")
	}

	c.logger.Info().
		Str("address", address).
		Int64("amount", amount).
		Str("tx_hash", out.TxHash).
		Msg("transfer settled")
	return out.TxHash, nil
}

// GetBalance returns the on-chain balance (minor units) for address.
func (c *Client) GetBalance(ctx context.Context, address string) (int64, error) {
	if address == "" {
		return 0, errors.Validationf("address is required")
	}

	var out balanceResponse
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		resp, err := c.do(ctx, "get_balance", http.MethodGet, "/api/v1/balances/"+address, nil)
		if err != nil {
			return err
		}
		return decodeResponse(resp, &out)
	})
	if err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// Ping probes gateway reachability with a single balance read against
// the zero address. No retries; readiness checks need a fast answer.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, "ping", http.MethodGet, "/api/v1/balances/"+probeAddress, nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// do executes a gateway request. Transport faults and non-2xx responses
// are external errors so callers can tell gateway trouble from their own.
func (c *Client) do(ctx context.Context, operation, method, path string, body io.Reader) (*http.Response, error) {
	if c.observe != nil {
		start := time.Now()
		defer func() {
			c.observe(operation, time.Since(start).Seconds())
		}()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindExternal, "gateway request failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, errors.Wrap(errors.KindExternal,
			fmt.Sprintf("gateway error (status %d)", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}
	return resp, nil
}

// decodeResponse reads and decodes a JSON response.
func decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(errors.KindExternal, "failed to decode gateway response", err)
	}
	return nil
}
