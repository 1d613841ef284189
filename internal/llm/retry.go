package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
	"unicode/utf8"
)

// Reliable bounds every attempt with a timeout and retries failed or
// malformed generations with exponential backoff and jitter.
type Reliable struct {
	inner      Oracle
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxLogLen  int
	wait       func(ctx context.Context, d time.Duration) error
}

// NewReliable wraps inner with cfg's timeout and retry policy.
func NewReliable(inner Oracle, cfg Config) *Reliable {
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = 200
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Reliable{
		inner:      inner,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxLogLen:  cfg.MaxLogLength,
		wait:       waitFor,
	}
}

// Generate runs at most 1+maxRetries attempts. When opts.JSONSchema is set
// the returned text is the cleaned, schema-valid document.
func (r *Reliable) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	slog.Debug("oracle request",
		"prompt_length", utf8.RuneCountInString(prompt),
		"prompt_preview", TruncateForLog(prompt, r.maxLogLen),
	)

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			slog.Warn("retrying oracle call", "attempt", attempt, "delay", delay, "error", lastErr)
			if err := r.wait(ctx, delay); err != nil {
				return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		out, err := r.attempt(ctx, prompt, opts)
		if err == nil {
			slog.Debug("oracle response",
				"response_length", utf8.RuneCountInString(out),
				"response_preview", TruncateForLog(out, r.maxLogLen),
			)
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	if errors.Is(lastErr, ErrInvalidPayload) || errors.Is(lastErr, ErrUnavailable) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (r *Reliable) attempt(ctx context.Context, prompt string, opts Options) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, err := r.inner.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	if opts.JSONSchema == "" {
		return raw, nil
	}
	return ValidateJSON(raw, opts.JSONSchema)
}

// backoff doubles the base delay per attempt and adds up to 50% jitter.
func (r *Reliable) backoff(attempt int) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}
	d := r.baseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return d + jitter
}

// Ping forwards to the wrapped provider when it supports health checks.
func (r *Reliable) Ping(ctx context.Context) error {
	if p, ok := r.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
