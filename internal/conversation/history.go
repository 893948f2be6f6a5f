package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/kazz187/novelguild/internal/persona"
)

const (
	// HistoryLimit is the number of exchanges kept per persona.
	HistoryLimit = 20
	// PreviewRunes bounds the stored user and assistant text of an exchange.
	PreviewRunes = 200
	// ContextEntries is how many recent exchanges are fed back into a prompt.
	ContextEntries = 3
)

// Entry is one stored exchange. Texts are truncated previews.
type Entry struct {
	Timestamp time.Time        `json:"timestamp"`
	User      string           `json:"user"`
	Assistant string           `json:"ai"`
	Scenario  persona.Scenario `json:"scenario"`
	Tokens    int              `json:"tokens"`
}

type Stats struct {
	Count       int        `json:"count"`
	TotalTokens int        `json:"totalTokens"`
	LastChat    *time.Time `json:"lastChat"`
}

func statsOf(entries []Entry) Stats {
	s := Stats{Count: len(entries)}
	for _, e := range entries {
		s.TotalTokens += e.Tokens
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1].Timestamp
		s.LastChat = &last
	}
	return s
}

type HistoryRepository interface {
	Append(ctx context.Context, id persona.ID, e Entry) error
	// Recent returns up to n of the newest entries, oldest first.
	Recent(ctx context.Context, id persona.ID, n int) ([]Entry, error)
	List(ctx context.Context, id persona.ID) ([]Entry, error)
	Clear(ctx context.Context, id persona.ID) error
	ClearAll(ctx context.Context) error
}

// MemoryHistory is a rolling per-persona history evicting the oldest entry first.
type MemoryHistory struct {
	mu      sync.RWMutex
	limit   int
	entries map[persona.ID][]Entry
}

func NewMemoryHistory(limit int) *MemoryHistory {
	if limit <= 0 {
		limit = HistoryLimit
	}
	return &MemoryHistory{limit: limit, entries: make(map[persona.ID][]Entry)}
}

func (h *MemoryHistory) Append(_ context.Context, id persona.ID, e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append(h.entries[id], e)
	if over := len(list) - h.limit; over > 0 {
		list = append([]Entry(nil), list[over:]...)
	}
	h.entries[id] = list
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, id persona.ID, n int) ([]Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.entries[id]
	if n < len(list) {
		list = list[len(list)-n:]
	}
	return append([]Entry(nil), list...), nil
}

func (h *MemoryHistory) List(ctx context.Context, id persona.ID) ([]Entry, error) {
	return h.Recent(ctx, id, h.limit)
}

func (h *MemoryHistory) Clear(_ context.Context, id persona.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, id)
	return nil
}

func (h *MemoryHistory) ClearAll(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.entries)
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
