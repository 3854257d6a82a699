package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/account-sync/internal/circuitbreaker"
	"github.com/account-sync/internal/config"
	"github.com/account-sync/internal/errors"
	"github.com/account-sync/internal/logging"
	"golang.org/x/time/rate"
)

// maxResponseBytes bounds how much of a response body is read; account
// histories are large but not unbounded.
const maxResponseBytes = 32 << 20

// AccountClient is the HTTP implementation of AccountDataSource. Outbound
// requests are rate limited, bounded by the configured timeout, and guarded
// by a circuit breaker whose open state is reported as a remote failure.
type AccountClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *logging.Logger
}

// NewAccountClient creates a client for the remote account data source
func NewAccountClient(cfg *config.SourceConfig, logger *logging.Logger) *AccountClient {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &AccountClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("account-source")),
		logger:  logger,
	}
}

// FetchAccountData calls POST /update-account-data/{accountId} and validates
// the response at the boundary. Transport errors, timeouts, non-2xx codes,
// non-success envelopes, and malformed payloads are all reported uniformly
// as RemoteFetchFailed; the caller treats them identically.
func (c *AccountClient) FetchAccountData(ctx context.Context, accountID string) (*AccountPayload, error) {
	var payload *AccountPayload

	err := c.breaker.Execute(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		fetched, err := c.doFetch(ctx, accountID)
		if err != nil {
			return err
		}
		payload = fetched
		return nil
	})
	if err != nil {
		return nil, errors.NewRemoteFetchError(accountID, err)
	}

	return payload, nil
}

func (c *AccountClient) doFetch(ctx context.Context, accountID string) (*AccountPayload, error) {
	url := fmt.Sprintf("%s/update-account-data/%s", c.baseURL, accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope updateResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed response body: %w", err)
	}

	if !envelope.Success {
		message := envelope.Message
		if message == "" {
			message = "remote backend reported failure"
		}
		return nil, fmt.Errorf("%s", message)
	}

	if err := validatePayload(accountID, envelope.Data); err != nil {
		return nil, fmt.Errorf("payload rejected: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"accountId": accountID,
		"trades":    len(envelope.Data.History),
		"elapsedMs": time.Since(start).Milliseconds(),
	}).Debug("account data fetched")

	return envelope.Data, nil
}
