// Package generationtest provides an in-process Generator for tests.
package generationtest

import (
	"context"
	"sync"
	"time"

	"github.com/kazz187/novelguild/internal/generation"
)

type Reply struct {
	Text string
	Err  error
}

type Call struct {
	Prompt string
	Config generation.Config
	Stream bool
}

// Fake replays queued replies in order; the last one repeats once the
// queue is exhausted.
type Fake struct {
	// ChunkRunes is the delta size used by Stream. Defaults to 8.
	ChunkRunes int
	// Hold, when set, blocks Stream after its first delta until it is
	// closed or the context ends.
	Hold chan struct{}

	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

func NewFake(texts ...string) *Fake {
	f := &Fake{}
	for _, t := range texts {
		f.replies = append(f.replies, Reply{Text: t})
	}
	return f
}

func NewFailingFake(err error) *Fake {
	return &Fake{replies: []Reply{{Err: err}}}
}

func (f *Fake) Enqueue(replies ...Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *Fake) next(req *generation.Request, stream bool) Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Prompt: req.Prompt, Config: req.Config, Stream: stream})
	if len(f.replies) == 0 {
		return Reply{Text: "ok"}
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r
}

func (f *Fake) response(req *generation.Request, text string) *generation.Response {
	in, out := len([]rune(req.Prompt)), len([]rune(text))
	return &generation.Response{
		Text:      text,
		Usage:     generation.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
		Timestamp: time.Now().UTC(),
	}
}

func (f *Fake) Generate(ctx context.Context, req *generation.Request) (*generation.Response, error) {
	r := f.next(req, false)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return f.response(req, r.Text), nil
}

func (f *Fake) Stream(ctx context.Context, req *generation.Request, onDelta func(string) error) (*generation.Response, error) {
	r := f.next(req, true)
	if r.Err != nil {
		return nil, r.Err
	}
	size := f.ChunkRunes
	if size <= 0 {
		size = 8
	}
	runes := []rune(r.Text)
	for i := 0; i < len(runes); i += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := onDelta(string(runes[i:min(i+size, len(runes))])); err != nil {
			return nil, err
		}
		if i == 0 && f.Hold != nil {
			select {
			case <-f.Hold:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return f.response(req, r.Text), nil
}
