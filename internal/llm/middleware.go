package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"km24vejviser/internal/logger"
	"km24vejviser/internal/util/jsonutil"
)

// Middleware decorates an LLMClient with a cross-cutting concern.
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Retry with exponential backoff --------

// Retry retries GenerateJSON up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors and context cancellation stop it
// immediately.
func Retry(maxAttempts int, baseDelay time.Duration, log *logger.Logger) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return func(next LLMClient) LLMClient {
		return &retrying{next: next, max: maxAttempts, base: baseDelay, log: log}
	}
}

type retrying struct {
	next LLMClient
	max  int
	base time.Duration
	log  *logger.Logger
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.GenerateJSON(ctx, prompt, input)
		if err == nil {
			return resp, nil
		}
		if IsPermanent(err) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		delay := r.base * time.Duration(1<<i)
		r.log.Warn("generator attempt failed, retrying", "attempt", i+1, "delay", delay, "error", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("generator failed after %d attempts: %w", r.max, last)
}

// -------- JSON extraction --------

// ExtractJSON strips fences and prose around the model's object. Output
// that holds no JSON object becomes ErrInvalidJSON, which Retry retries.
func ExtractJSON() Middleware {
	return func(next LLMClient) LLMClient {
		return &extracting{next: next}
	}
}

type extracting struct{ next LLMClient }

func (e *extracting) Name() string { return e.next.Name() }
func (e *extracting) Close() error { return e.next.Close() }

func (e *extracting) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	raw, err := e.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		return nil, err
	}
	body, err := jsonutil.ExtractJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return body, nil
}

// -------- Rate limiting --------

// RateLimit spaces calls with a token bucket. rps <= 0 disables it.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{next: next, rl: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next LLMClient
	rl   *rate.Limiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

// -------- Logging --------

func WithLogging(log *logger.Logger) Middleware {
	return func(next LLMClient) LLMClient {
		return &logging{next: next, log: log}
	}
}

type logging struct {
	next LLMClient
	log  *logger.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := l.next.GenerateJSON(ctx, prompt, input)
	switch {
	case err == nil:
		l.log.Debug("generator call", "client", l.next.Name(), "bytes", len(raw), "elapsed", time.Since(start))
	case errors.Is(err, context.Canceled):
		l.log.Info("generator call canceled", "client", l.next.Name())
	default:
		l.log.Warn("generator call failed", "client", l.next.Name(), "error", err)
	}
	return raw, err
}
