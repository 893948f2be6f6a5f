package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageImplementations(t *testing.T) {
	newLocal := func(t *testing.T) Storage {
		s, err := NewLocalStorage(t.TempDir())
		require.NoError(t, err)
		return s
	}
	newMemory := func(t *testing.T) Storage {
		return NewMemoryStorage()
	}

	for name, newStorage := range map[string]func(*testing.T) Storage{
		"local":  newLocal,
		"memory": newMemory,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStorage(t)

			_, err := s.Read(ctx, "workflows/missing.json")
			require.ErrorIs(t, err, ErrNotFound)

			ok, err := s.Exists(ctx, "workflows/a.json")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Write(ctx, "workflows/b.json", []byte("b")))
			require.NoError(t, s.Write(ctx, "workflows/a.json", []byte("a1")))
			require.NoError(t, s.Write(ctx, "workflows/a.json", []byte("a2")))
			require.NoError(t, s.Write(ctx, "workflows/nested/c.json", []byte("c")))

			data, err := s.Read(ctx, "workflows/a.json")
			require.NoError(t, err)
			assert.Equal(t, "a2", string(data))

			keys, err := s.List(ctx, "workflows")
			require.NoError(t, err)
			assert.Equal(t, []string{"workflows/a.json", "workflows/b.json"}, keys)

			keys, err = s.List(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, keys)

			require.NoError(t, s.Delete(ctx, "workflows/a.json"))
			require.ErrorIs(t, s.Delete(ctx, "workflows/a.json"), ErrNotFound)

			ok, err = s.Exists(ctx, "workflows/b.json")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestLocalStorageKeysStayInsideBaseDir(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "../../escape.txt", []byte("x")))
	data, err := s.Read(ctx, "escape.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
