package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kazz187/novelguild/pkg/cerr"
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Stream calls onDelta for every text fragment in arrival order and
	// returns the accumulated response once the upstream finishes. An
	// error from onDelta aborts the stream.
	Stream(ctx context.Context, req *Request, onDelta func(delta string) error) (*Response, error)
}

type Config struct {
	Temperature     float64
	MaxOutputTokens int
}

type Request struct {
	Prompt string
	Config Config
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

type Response struct {
	Text      string
	Usage     Usage
	Timestamp time.Time
}

// APIError is a non-2xx answer from the upstream model API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ErrGeneration is wrapped by every failure surfaced from a Generator.
var ErrGeneration = cerr.NewError(cerr.Unavailable, "generation failed", nil)

// ErrEmptyResponse is returned when the upstream answered without any candidate text.
var ErrEmptyResponse = errors.New("empty response from model")

// Wrap converts an upstream failure into a GenerationError, keeping the
// upstream message verbatim. Cancellation and already wrapped errors pass
// through unchanged.
func Wrap(err error) error {
	if err == nil || errors.Is(err, ErrGeneration) || errors.Is(err, context.Canceled) {
		return err
	}
	code := cerr.Unavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = cerr.DeadlineExceeded
	}
	return cerr.NewError(code, err.Error(), errors.Join(ErrGeneration, err))
}
