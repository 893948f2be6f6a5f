package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/novelguild/pkg/storage"
)

func TestJournalAppendRead(t *testing.T) {
	store := storage.NewMemoryStorage()
	j := NewJournal(New(), store)
	ctx := t.Context()

	day := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)
	require.NoError(t, j.Append(ctx, &Event{ID: "1", Type: WorkflowStepCompleted, ResourceID: "w", CreatedAt: day}))
	require.NoError(t, j.Append(ctx, &Event{ID: "2", Type: WorkflowCompleted, ResourceID: "w", Metadata: map[string]string{"user_id": "u"}, CreatedAt: day}))
	require.NoError(t, j.Append(ctx, &Event{ID: "3", Type: WorkflowFailed, ResourceID: "x", CreatedAt: day.Add(2 * time.Hour)}))

	ok, err := store.Exists(ctx, "events/events_2026-05-01.ndjson")
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := j.Read(ctx, day, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "u", all[1].Metadata["user_id"])

	completed, err := j.Read(ctx, day, WorkflowCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "2", completed[0].ID)

	next, err := j.Read(ctx, day.Add(2*time.Hour), "")
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, WorkflowFailed, next[0].Type)

	empty, err := j.Read(ctx, day.AddDate(0, 0, -1), "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJournalSkipsMalformedLines(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := t.Context()
	require.NoError(t, store.Write(ctx, "events/events_2026-05-01.ndjson", []byte("not json\n{\"id\":\"ok\",\"type\":\"workflow.completed\"}\n")))

	events, err := NewJournal(New(), store).Read(ctx, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].ID)
}

func TestJournalStart(t *testing.T) {
	bus := New()
	store := storage.NewMemoryStorage()
	j := NewJournal(bus, store)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	// Subscription happens inside Start; publish until the event lands.
	require.Eventually(t, func() bool {
		bus.PublishNew(WorkflowCompleted, "w", "", nil)
		events, err := j.Read(ctx, time.Now(), WorkflowCompleted)
		return err == nil && len(events) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
