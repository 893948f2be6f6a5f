package generation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/generation/generationtest"
	"github.com/kazz187/novelguild/pkg/cerr"
)

func newRetry(next generation.Generator) *generation.RetryGenerator {
	return generation.NewRetryGenerator(next, generation.RetryConfig{
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})
}

func TestRetryTransientThenSuccess(t *testing.T) {
	fake := generationtest.NewFake()
	fake.Enqueue(
		generationtest.Reply{Err: &generation.APIError{StatusCode: 503, Message: "overloaded"}},
		generationtest.Reply{Err: &generation.APIError{StatusCode: 429, Message: "slow down"}},
		generationtest.Reply{Text: "完成"},
	)

	resp, err := newRetry(fake).Generate(context.Background(), &generation.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "完成", resp.Text)
	assert.Equal(t, 3, fake.CallCount())
}

func TestRetryPermanentFailure(t *testing.T) {
	fake := generationtest.NewFailingFake(&generation.APIError{StatusCode: 400, Message: "bad request"})

	_, err := newRetry(fake).Generate(context.Background(), &generation.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, fake.CallCount())
	assert.ErrorIs(t, err, generation.ErrGeneration)
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
	assert.Contains(t, err.Error(), "API Error: 400 - bad request")

	var apiErr *generation.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	fake := generationtest.NewFailingFake(&generation.APIError{StatusCode: 500, Message: "boom"})

	_, err := newRetry(fake).Generate(context.Background(), &generation.Request{Prompt: "x"})
	assert.ErrorIs(t, err, generation.ErrGeneration)
	assert.Equal(t, 3, fake.CallCount())
}

func TestRetryStreamNotRetriedAfterFirstDelta(t *testing.T) {
	fake := generationtest.NewFake("abcdefghijklmnop")
	fake.ChunkRunes = 4
	upstream := &generation.APIError{StatusCode: 503, Message: "unavailable"}

	var deltas []string
	_, err := newRetry(fake).Stream(context.Background(), &generation.Request{Prompt: "x"}, func(d string) error {
		deltas = append(deltas, d)
		if len(deltas) == 2 {
			return upstream
		}
		return nil
	})
	assert.ErrorIs(t, err, generation.ErrGeneration)
	assert.Equal(t, 1, fake.CallCount())
	assert.Equal(t, []string{"abcd", "efgh"}, deltas)
}

func TestRetryStopsOnParentCancel(t *testing.T) {
	fake := generationtest.NewFailingFake(&generation.APIError{StatusCode: 503, Message: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRetry(fake).Generate(ctx, &generation.Request{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, generation.ErrGeneration)
	assert.Equal(t, 1, fake.CallCount())
}

type slowGenerator struct {
	generationtest.Fake
	calls int
}

func (s *slowGenerator) Generate(ctx context.Context, req *generation.Request) (*generation.Response, error) {
	s.calls++
	if s.calls == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &generation.Response{Text: "late but fine"}, nil
}

func TestRetryPerAttemptTimeout(t *testing.T) {
	slow := &slowGenerator{}
	g := generation.NewRetryGenerator(slow, generation.RetryConfig{
		Timeout:        20 * time.Millisecond,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	})

	resp, err := g.Generate(context.Background(), &generation.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "late but fine", resp.Text)
	assert.Equal(t, 2, slow.calls)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, generation.Wrap(nil))
	assert.Equal(t, context.Canceled, generation.Wrap(context.Canceled))

	timeout := generation.Wrap(context.DeadlineExceeded)
	assert.True(t, cerr.IsCode(timeout, cerr.DeadlineExceeded))
	assert.ErrorIs(t, timeout, generation.ErrGeneration)

	assert.Equal(t, timeout, generation.Wrap(timeout))
}
