package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]Provider {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return map[string]Provider{
		"local":  local,
		"memory": NewMemory(),
	}
}

func TestWriteThenRead(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := p.Write(ctx, "artifacts/run_1/doc_1.txt", []byte("hello"), "generated")
			require.NoError(t, err)

			data, err := p.Read(ctx, "artifacts/run_1/doc_1.txt")
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))
		})
	}
}

func TestWriteIsContentAddressable(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			v1, err := p.Write(ctx, "a.txt", []byte("same"), "m1")
			require.NoError(t, err)
			v2, err := p.Write(ctx, "a.txt", []byte("same"), "m2")
			require.NoError(t, err)
			assert.Equal(t, v1, v2)

			v3, err := p.Write(ctx, "a.txt", []byte("different"), "m3")
			require.NoError(t, err)
			assert.NotEqual(t, v1, v3)
		})
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := p.Read(context.Background(), "missing.txt")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestExists(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := p.Exists(ctx, "a.txt")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = p.Write(ctx, "a.txt", []byte("x"), "m")
			require.NoError(t, err)

			ok, err = p.Exists(ctx, "a.txt")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestHashMatchesWrittenVersion(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			version, err := p.Write(ctx, "a.txt", []byte("content"), "m")
			require.NoError(t, err)

			hash, err := p.Hash(ctx, "a.txt")
			require.NoError(t, err)
			assert.Equal(t, version, hash)
		})
	}
}

func TestList(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := p.Write(ctx, "run_1/a.txt", []byte("a"), "m")
			require.NoError(t, err)
			_, err = p.Write(ctx, "run_1/b.txt", []byte("b"), "m")
			require.NoError(t, err)
			_, err = p.Write(ctx, "run_2/c.txt", []byte("c"), "m")
			require.NoError(t, err)

			out, err := p.List(ctx, "run_1")
			require.NoError(t, err)
			assert.Len(t, out, 2)
		})
	}
}

func TestWriteBatchIsAtomicAndDeterministic(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			files := map[string][]byte{
				"run_1/a.txt": []byte("a"),
				"run_1/b.txt": []byte("b"),
			}
			v1, err := p.WriteBatch(ctx, files, "batch")
			require.NoError(t, err)

			a, err := p.Read(ctx, "run_1/a.txt")
			require.NoError(t, err)
			assert.Equal(t, "a", string(a))

			v2, err := p.WriteBatch(ctx, files, "batch-again")
			require.NoError(t, err)
			assert.Equal(t, v1, v2)
		})
	}
}

func TestWriteBatchRejectsEmpty(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := p.WriteBatch(context.Background(), nil, "m")
			require.Error(t, err)
		})
	}
}

func TestLocalRejectsPathEscape(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	_, err = local.Write(context.Background(), "../escape.txt", []byte("x"), "m")
	require.Error(t, err)
}

func TestLocalRootDirIsCreated(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "artifacts")
	_, err := NewLocal(root)
	require.NoError(t, err)
}
