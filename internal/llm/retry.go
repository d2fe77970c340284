package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy bounds how often a completion call is attempted. The zero value
// and DefaultRetryPolicy both mean a single attempt.
type RetryPolicy struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

// DefaultRetryPolicy performs exactly one attempt.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 1}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
	return p
}

// Generate calls client.Generate up to MaxAttempts times with exponential
// backoff. Response-format problems are never retried here; they are the
// caller's concern.
func (p RetryPolicy) Generate(ctx context.Context, client Client, req Request, logger zerolog.Logger) (string, error) {
	p = p.normalized()
	delay := p.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		text, err := client.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if attempt == p.MaxAttempts {
			break
		}

		logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", delay).
			Msg("LLM call failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	if p.MaxAttempts == 1 {
		return "", lastErr
	}
	return "", fmt.Errorf("LLM call failed after %d attempts: %w", p.MaxAttempts, lastErr)
}
