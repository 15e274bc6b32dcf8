package balance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"moneyflow/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MutatePath is the balance service endpoint that applies a signed delta.
const MutatePath = "/api/v1/balances/mutate"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 10

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// MutateRequest is the wire request of the balance service.
type MutateRequest struct {
	AccountKey   string          `json:"accountKey"`
	SignedAmount decimal.Decimal `json:"signedAmount"`
}

// Client implements ports.BalanceMutator over HTTP. It never returns a Go
// error: transport faults are reported as SERVICE_ERROR results.
type Client struct {
	baseURL string
	http    HTTPClient
	log     zerolog.Logger
}

// NewClient creates a balance client. The transport timeout is owned by httpClient.
func NewClient(baseURL string, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log,
	}
}

// MutateBalance applies signedDelta to accountKey on the balance service.
func (c *Client) MutateBalance(ctx context.Context, accountKey string, signedDelta decimal.Decimal) domain.MutationResult {
	body, err := json.Marshal(MutateRequest{AccountKey: accountKey, SignedAmount: signedDelta})
	if err != nil {
		return c.serviceError(accountKey, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MutatePath, bytes.NewReader(body))
	if err != nil {
		return c.serviceError(accountKey, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.serviceError(accountKey, fmt.Errorf("call balance service: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.serviceError(accountKey, fmt.Errorf("read response: %w", err))
	}

	var result domain.MutationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return c.serviceError(accountKey, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err))
	}

	if !result.Success && result.ErrorCode == "" {
		result.ErrorCode = domain.ErrCodeServiceError
	}
	if result.Success && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return c.serviceError(accountKey, fmt.Errorf("success body with status %d", resp.StatusCode))
	}

	c.log.Debug().
		Str("account_key", accountKey).
		Str("delta", signedDelta.String()).
		Bool("success", result.Success).
		Str("error_code", string(result.ErrorCode)).
		Msg("balance mutation")

	return result
}

func (c *Client) serviceError(accountKey string, err error) domain.MutationResult {
	c.log.Warn().Err(err).Str("account_key", accountKey).Msg("balance service call failed")
	return domain.MutationFailed(domain.ErrCodeServiceError, err.Error())
}
