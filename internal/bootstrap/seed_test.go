package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/routing"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/internal/store/sqlite"
)

const sampleSeed = `
users:
  - id: 7a1c2f0e-6b4d-4f43-9a55-0c5b8f1d2e3a
    email: ana@example.com
    name: Ana
bots:
  - name: Nova
    persona: You are Nova, an astronomy enthusiast.
  - name: Echo
    persona: You are Echo, a patient tutor.
    model: gpt
`

func newService(t *testing.T) *routing.Service {
	t.Helper()
	stores, err := sqlite.NewSQLiteStores(store.StoreConfig{SQLitePath: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return routing.NewService(stores, nil)
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	seed, err := ParseSeed([]byte(sampleSeed))
	require.NoError(t, err)

	res, err := Apply(ctx, svc, seed)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 1, BotsCreated: 2}, res)

	res, err = Apply(ctx, svc, seed)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 1, BotsSkipped: 2}, res)

	bots, err := svc.ListBots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 2)
	byName := map[string]store.UserData{}
	for _, b := range bots {
		byName[b.Name] = b
	}
	assert.Equal(t, providers.DefaultModelKind, byName["Nova"].Model)
	assert.Equal(t, providers.ModelGPT, byName["Echo"].Model)
}

func TestParseSeed_Rejects(t *testing.T) {
	_, err := ParseSeed([]byte("users:\n  - id: nope\n    email: a@b.c\n"))
	assert.Error(t, err)

	_, err = ParseSeed([]byte("agents: []\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o644))
	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Len(t, seed.Bots, 2)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply_InvalidBot(t *testing.T) {
	svc := newService(t)
	_, err := Apply(context.Background(), svc, &Seed{Bots: []SeedBot{{Name: "X", Persona: "p", Model: "llama"}}})
	assert.ErrorIs(t, err, routing.ErrInvalidModel)
}
