// Package onesignal implements the push notification sender on top of the
// OneSignal REST API.
package onesignal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/notification"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/pkg/circuitbreaker"
	"github.com/afterhours/nightlife-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBaseURL is the public OneSignal API.
const DefaultBaseURL = "https://onesignal.com/api/v1"

// MaxPlayersPerRequest is the provider limit on include_player_ids.
const MaxPlayersPerRequest = 2000

// ClientConfig contains configuration for the OneSignal client.
type ClientConfig struct {
	// BaseURL is the API base URL
	BaseURL string

	// AppID identifies the OneSignal app
	AppID string

	// APIKey is the REST API key
	APIKey string

	// AndroidChannelID is optional
	AndroidChannelID string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// BatchSize caps the number of tokens per request
	BatchSize int

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables request logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(appID, apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL:   DefaultBaseURL,
		AppID:     appID,
		APIKey:    apiKey,
		Timeout:   10 * time.Second,
		BatchSize: MaxPlayersPerRequest,
	}
}

// Validate checks required fields.
func (c ClientConfig) Validate() error {
	if c.AppID == "" {
		return errors.New("onesignal: app id is required")
	}
	if c.APIKey == "" {
		return errors.New("onesignal: api key is required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client sends push notifications. It implements notification.Sender.
type Client struct {
	config         ClientConfig
	httpClient     *http.Client
	logger         *slog.Logger
	retrier        *retry.Retrier
	circuitBreaker *circuitbreaker.CircuitBreaker
}

var _ notification.Sender = (*Client)(nil)

// NewClient creates a new OneSignal client.
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BatchSize <= 0 || config.BatchSize > MaxPlayersPerRequest {
		config.BatchSize = MaxPlayersPerRequest
	}

	logger := config.Logger.With("component", "onesignal")
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		retrier:    retry.PushRetrier(),
		circuitBreaker: circuitbreaker.PushProviderBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SEND
// ══════════════════════════════════════════════════════════════════════════════

// Send delivers one message to every token. Tokens are split into batches of
// at most BatchSize. The result sums all batches; a failed batch aborts the
// remaining ones and the partial result is returned with the error.
func (c *Client) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) (notification.SendResult, error) {
	var result notification.SendResult
	if len(tokens) == 0 {
		return result, nil
	}

	for start := 0; start < len(tokens); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		resp, err := c.sendBatch(ctx, batch, title, body, data)
		if err != nil {
			return result, c.mapError(err)
		}

		invalid := resp.InvalidPlayerIDs()
		result.InvalidTokens = append(result.InvalidTokens, invalid...)
		if resp.Recipients > 0 {
			result.Sent += resp.Recipients
		} else if resp.ID != "" {
			result.Sent += len(batch) - len(invalid)
		}
	}

	c.logger.Debug("push sent",
		"tokens", len(tokens),
		"sent", result.Sent,
		"invalid", len(result.InvalidTokens),
	)
	return result, nil
}

func (c *Client) sendBatch(ctx context.Context, tokens []string, title, body string, data map[string]string) (NotificationResponseDTO, error) {
	req := NotificationRequestDTO{
		AppID:            c.config.AppID,
		IncludePlayerIDs: tokens,
		Headings:         map[string]string{"en": title},
		Contents:         map[string]string{"en": body},
		Data:             data,
		AndroidChannelID: c.config.AndroidChannelID,
	}

	var resp NotificationResponseDTO
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			resp = NotificationResponseDTO{}
			return c.doRequest(ctx, http.MethodPost, "/notifications", req, &resp)
		})
	})
	return resp, err
}

// doRequest performs a single HTTP request. Temporary failures are marked
// retryable; everything else fails the retrier immediately.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+c.config.APIKey)

	if c.config.Debug {
		c.logger.Debug("onesignal api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var dto NotificationResponseDTO
		if err := json.Unmarshal(respBody, &dto); err == nil {
			apiErr.Messages = dto.Messages()
			if resp.StatusCode == http.StatusBadRequest && dto.noSubscribers() {
				// None of the tokens is subscribed; nothing to deliver.
				return nil
			}
		}
		if apiErr.temporary() {
			return retry.Retryable(apiErr)
		}
		return apiErr
	}

	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// mapError converts transport errors into domain errors.
func (c *Client) mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("onesignal", "Send", shared.ErrTimeout, "push request cancelled", err)
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return shared.WrapError("onesignal", "Send", shared.ErrServiceUnavailable, "push provider circuit open", err)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn("push provider rate limited")
		return shared.WrapError("onesignal", "Send", shared.ErrRateLimited, shared.ErrPushRateLimited.Message, err)
	}

	c.logger.Error("push send failed", "error", err)
	return shared.WrapError("onesignal", "Send", shared.ErrExternalService, shared.ErrPushProviderFailed.Message, err)
}
