package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/novelguild/internal/pushsubscription"
	"github.com/kazz187/novelguild/pkg/cerr"
	"github.com/kazz187/novelguild/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(local)

	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	a := &pushsubscription.Subscription{ID: "01A", UserID: "alice", Endpoint: "https://push.example/a", P256dhKey: "pa", AuthKey: "aa", CreatedAt: at, UpdatedAt: at}
	b := &pushsubscription.Subscription{ID: "01B", Endpoint: "https://push.example/b", P256dhKey: "pb", AuthKey: "ab", CreatedAt: at, UpdatedAt: at}
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	got, err := repo.Get(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "01A", list[0].ID)

	found, err := repo.FindByEndpoint(ctx, "https://push.example/b")
	require.NoError(t, err)
	assert.Equal(t, "01B", found.ID)

	a.AuthKey = "rotated"
	require.NoError(t, repo.Save(ctx, a))
	got, err = repo.Get(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.AuthKey)

	require.NoError(t, repo.DeleteByEndpoint(ctx, "https://push.example/a"))
	_, err = repo.Get(ctx, "01A")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	err = repo.DeleteByEndpoint(ctx, "https://push.example/a")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestSubscriptionReceives(t *testing.T) {
	owned := &pushsubscription.Subscription{UserID: "alice"}
	shared := &pushsubscription.Subscription{}

	assert.True(t, owned.Receives("alice"))
	assert.False(t, owned.Receives("bob"))
	assert.True(t, owned.Receives(""))
	assert.True(t, shared.Receives("bob"))
}
