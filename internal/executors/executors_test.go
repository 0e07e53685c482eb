package executors

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/generator"
	"github.com/genbatch/pipeline/internal/judge"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/secretvault"
	"github.com/genbatch/pipeline/internal/storage"
)

// emptyRepo is a secretvault.Repository with no stored credentials, so
// Materialize returns an empty (not nil) header map.
type emptyRepo struct{}

func (emptyRepo) GetCiphertext(context.Context, string, string) ([]byte, error) {
	return nil, secretvault.ErrNotFound
}
func (emptyRepo) ListProviders(context.Context, string) ([]string, error) { return nil, nil }
func (emptyRepo) PutCiphertext(context.Context, string, string, []byte) error { return nil }

func newTestVault(t *testing.T) *secretvault.Vault {
	t.Helper()
	v, err := secretvault.New(emptyRepo{}, []byte("01234567890123456789012345678901"))
	require.NoError(t, err)
	return v
}

// fakeGeneratorClient returns a canned Result for whichever kind it is
// constructed with.
type fakeGeneratorClient struct {
	kind   domain.GeneratorKind
	result generator.Result
	err    error
}

func (f *fakeGeneratorClient) Kind() domain.GeneratorKind { return f.kind }
func (f *fakeGeneratorClient) Generate(ctx context.Context, req generator.Request) (generator.Result, error) {
	return f.result, f.err
}

// fakeModelClient returns the same raw judge response for every call.
type fakeModelClient struct {
	raw string
	err error
}

func (f *fakeModelClient) Call(ctx context.Context, provider, model, prompt string, headers map[string]string) (string, int, error) {
	return f.raw, 10, f.err
}

func newMockRegistry(t *testing.T, generators []generator.Client, judgeClient judge.ModelClient) (*Registry, sqlmock.Sqlmock, storage.Provider) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := metadata.NewStore(sqlx.NewDb(db, "postgres"))
	mem := storage.NewMemory()
	rg := New(Config{
		Store:       store,
		Storage:     mem,
		Vault:       newTestVault(t),
		JudgeRunner: judge.NewRunner(judgeClient, 1),
		Generators:  generators,
	})
	return rg, mock, mem
}
