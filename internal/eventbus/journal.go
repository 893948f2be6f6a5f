package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kazz187/novelguild/pkg/storage"
)

const journalPrefix = "events"

// Journal appends every published event to a daily NDJSON object in storage.
type Journal struct {
	bus   *Bus
	store storage.Storage
	mu    sync.Mutex
	now   func() time.Time
}

func NewJournal(bus *Bus, store storage.Storage) *Journal {
	return &Journal{
		bus:   bus,
		store: store,
		now:   time.Now,
	}
}

type journalEntry struct {
	*Event
	LoggedAt time.Time `json:"logged_at"`
}

// Start records events until ctx is cancelled.
func (j *Journal) Start(ctx context.Context) {
	subID, ch := j.bus.Subscribe(256)
	defer j.bus.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			// Write with a fresh context so the last events survive shutdown.
			if err := j.Append(context.WithoutCancel(ctx), ev); err != nil {
				slog.Error("failed to journal event", "event_id", ev.ID, "type", ev.Type, "error", err)
			}
		}
	}
}

func (j *Journal) Append(ctx context.Context, ev *Event) error {
	line, err := json.Marshal(journalEntry{Event: ev, LoggedAt: j.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	key := journalKey(ev.CreatedAt)
	data, err := j.store.Read(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	data = append(data, line...)
	data = append(data, '\n')
	if err := j.store.Write(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

// Read returns the events journaled on the UTC day of date. A type filter
// of "" matches every event.
func (j *Journal) Read(ctx context.Context, date time.Time, eventType Type) ([]*Event, error) {
	data, err := j.store.Read(ctx, journalKey(date))
	if errors.Is(err, storage.ErrNotFound) {
		return []*Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	events := []*Event{}
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			slog.Warn("skipping malformed journal line", "error", err)
			continue
		}
		if entry.Event == nil || (eventType != "" && entry.Type != eventType) {
			continue
		}
		events = append(events, entry.Event)
	}
	return events, nil
}

func journalKey(t time.Time) string {
	return fmt.Sprintf("%s/events_%s.ndjson", journalPrefix, t.UTC().Format("2006-01-02"))
}
