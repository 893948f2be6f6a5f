package prompt

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/novelguild/internal/persona"
)

func TestAffectedPersona(t *testing.T) {
	tests := []struct {
		rel    string
		want   persona.ID
		wantOK bool
	}{
		{"roles/writer.prompt.md", persona.Writer, true},
		{"roles/novel-architect.oes.md", persona.NovelArchitect, true},
		{"roles/ghost.prompt.md", "", false},
		{"roles/writer.txt", "", false},
		{"role/system-director/execution/review.md", persona.Director, true},
		{"role/shared/common.md", "", false},
		{"README.md", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			id, ok := AffectedPersona(tt.rel)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []persona.ID
	all int
}

func (r *recordingInvalidator) Invalidate(id persona.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recordingInvalidator) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all++
}

func (r *recordingInvalidator) snapshot() ([]persona.ID, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]persona.ID(nil), r.ids...), r.all
}

func TestWatcherInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "roles"), 0o755))

	inv := &recordingInvalidator{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- NewWatcher(dir, inv).Run(ctx) }()

	// Writes before the watch is registered are missed, so keep writing
	// until one is observed.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "roles", "writer.prompt.md"), []byte("<persona>W</persona>"), 0o644)
		ids, _ := inv.snapshot()
		return len(ids) > 0
	}, 5*time.Second, 50*time.Millisecond)

	ids, all := inv.snapshot()
	assert.Equal(t, persona.Writer, ids[0])
	assert.Zero(t, all)

	cancel()
	require.NoError(t, <-done)
}
