package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	agenterrors "github.com/Mikeyy1405/Writgoai.nl/internal/errors"
	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
)

// retryClient wraps a Client with retry logic and a circuit breaker.
type retryClient struct {
	underlying     Client
	retryConfig    agenterrors.RetryConfig
	circuitBreaker *agenterrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient wraps client with the given retry policy and breaker.
func NewRetryClient(client Client, retryConfig agenterrors.RetryConfig, circuitBreaker *agenterrors.CircuitBreaker) Client {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("llm-retry"),
	}
}

// WrapWithRetry wraps client with retry logic and a dedicated circuit
// breaker named after its model.
func WrapWithRetry(client Client, retryConfig agenterrors.RetryConfig, breakerConfig agenterrors.CircuitBreakerConfig) Client {
	breaker := agenterrors.NewCircuitBreaker(fmt.Sprintf("llm-%s", client.Model()), breakerConfig)
	return NewRetryClient(client, retryConfig, breaker)
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	resp, err := agenterrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
		return agenterrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*CompletionResponse, error) {
			response, err := c.underlying.Complete(ctx, req)
			if err != nil {
				return nil, classifyCompletionError(err)
			}
			return response, nil
		})
	}, c.logger)

	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", duration, err)
		if agenterrors.IsDegraded(err) {
			return nil, fmt.Errorf("%s", agenterrors.FormatForModel(err))
		}
		return nil, fmt.Errorf("%s Retried over %v.", agenterrors.FormatForModel(err), duration.Round(time.Second))
	}

	if duration > 5*time.Second {
		c.logger.Debug("LLM request succeeded after %v", duration)
	}

	return resp, nil
}

// classifyCompletionError maps untyped failures onto the transient or
// permanent kinds so the retry loop can decide. Errors already typed by the
// transport layer pass through unchanged.
func classifyCompletionError(err error) error {
	if err == nil {
		return nil
	}
	if agenterrors.IsTransient(err) || agenterrors.IsPermanent(err) || agenterrors.IsDegraded(err) {
		return err
	}

	lowerErr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lowerErr, "rate limit"):
		return agenterrors.NewTransientError(err, "API rate limit reached. Retrying with exponential backoff.")
	case strings.Contains(lowerErr, "bad gateway"), strings.Contains(lowerErr, "service unavailable"),
		strings.Contains(lowerErr, "gateway timeout"), strings.Contains(lowerErr, "internal server error"):
		return agenterrors.NewTransientError(err, "Upstream server error. Retrying request.")
	case strings.Contains(lowerErr, "unauthorized"):
		return agenterrors.NewPermanentError(err, "Authentication failed. Please check the AIML API key.")
	case strings.Contains(lowerErr, "forbidden"):
		return agenterrors.NewPermanentError(err, "Permission denied for this model or resource.")
	}

	return err
}
