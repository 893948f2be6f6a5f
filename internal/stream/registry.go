package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrDraining = errors.New("stream: server is draining")

// SessionInfo describes an open stream session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"startedAt"`
}

type entry struct {
	info   SessionInfo
	cancel context.CancelFunc
}

// Registry tracks open sessions so the server can drain them on shutdown.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	draining bool
	wg       sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Begin registers a session bound to ctx. The returned release func must be
// called when the session ends.
func (r *Registry) Begin(ctx context.Context, kind, target string) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return nil, nil, ErrDraining
	}
	ctx, cancel := context.WithCancel(ctx)
	id := ulid.Make().String()
	r.sessions[id] = &entry{
		info:   SessionInfo{ID: id, Kind: kind, Target: target, StartedAt: time.Now().UTC()},
		cancel: cancel,
	}
	r.wg.Add(1)

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			r.mu.Lock()
			delete(r.sessions, id)
			r.mu.Unlock()
			r.wg.Done()
		})
	}
	return ctx, release, nil
}

// SetDraining makes Begin refuse new sessions.
func (r *Registry) SetDraining() {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()
}

func (r *Registry) Draining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

func (r *Registry) Active() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.info)
	}
	return out
}

// Drain stops accepting sessions and waits for open ones to finish. When
// ctx ends first the remaining sessions are cancelled and ctx's error is
// returned.
func (r *Registry) Drain(ctx context.Context) error {
	r.SetDraining()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		for _, e := range r.sessions {
			e.cancel()
		}
		r.mu.Unlock()
		<-done
		return ctx.Err()
	}
}
