package generation

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
	MaxBackoff            = 30 * time.Second
	BackoffFactor         = 2.0
)

type RetryConfig struct {
	// Timeout bounds a single attempt. Zero disables the per-attempt limit.
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// RetryGenerator runs every call under a per-attempt timeout and retries
// transient failures with exponential backoff. Failures it returns are
// wrapped with ErrGeneration.
type RetryGenerator struct {
	next Generator
	cfg  RetryConfig
}

func NewRetryGenerator(next Generator, cfg RetryConfig) *RetryGenerator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	return &RetryGenerator{next: next, cfg: cfg}
}

func (g *RetryGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := g.do(ctx, func(attemptCtx context.Context) (bool, error) {
		var err error
		resp, err = g.next.Generate(attemptCtx, req)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream retries only while nothing has been delivered to onDelta.
func (g *RetryGenerator) Stream(ctx context.Context, req *Request, onDelta func(string) error) (*Response, error) {
	var (
		resp    *Response
		started bool
	)
	err := g.do(ctx, func(attemptCtx context.Context) (bool, error) {
		var err error
		resp, err = g.next.Stream(attemptCtx, req, func(delta string) error {
			started = true
			return onDelta(delta)
		})
		return !started, err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// do runs attempt until it succeeds, fails permanently, or the attempts run
// out. attempt reports whether a failure may still be retried.
func (g *RetryGenerator) do(ctx context.Context, attempt func(context.Context) (bool, error)) error {
	backoff := g.cfg.InitialBackoff
	var lastErr error
	for n := 1; ; n++ {
		attemptCtx, cancel := g.attemptContext(ctx)
		retryable, err := attempt(attemptCtx)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return Wrap(ctx.Err())
		}
		if timedOut && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(context.DeadlineExceeded, err)
		}
		lastErr = err
		if !retryable || !isTransient(err) || n >= g.cfg.MaxAttempts {
			break
		}

		slog.WarnContext(ctx, "generation: attempt failed, retrying",
			"attempt", n, "max_attempts", g.cfg.MaxAttempts, "backoff", backoff, "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Wrap(ctx.Err())
		case <-timer.C:
		}
		backoff = time.Duration(float64(backoff) * BackoffFactor)
		if backoff > MaxBackoff {
			backoff = MaxBackoff
		}
	}
	return Wrap(lastErr)
}

func (g *RetryGenerator) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
