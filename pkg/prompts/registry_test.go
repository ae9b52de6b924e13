package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/opsplan/pkg/engine"
)

func TestStaticRegistry(t *testing.T) {
	ctx := context.Background()

	r, err := NewStaticRegistry(
		Metadata{ID: "scale", Name: "Scale deployment", RiskTier: engine.RiskMedium},
		Metadata{ID: "delete", Name: "Delete namespace", RiskTier: engine.RiskHigh},
	)
	require.NoError(t, err)

	m, err := r.Metadata(ctx, "delete")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, engine.RiskHigh, m.RiskTier)

	missing, err := r.Metadata(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "delete", list[0].ID)
	assert.Equal(t, "scale", list[1].ID)
}

func TestStaticRegistryRejectsInvalidEntries(t *testing.T) {
	_, err := NewStaticRegistry(Metadata{ID: "x", RiskTier: "critical"})
	assert.Error(t, err)

	_, err = NewStaticRegistry(
		Metadata{ID: "x", RiskTier: engine.RiskLow},
		Metadata{ID: "x", RiskTier: engine.RiskHigh},
	)
	assert.ErrorContains(t, err, "duplicate")

	r, err := NewStaticRegistry(Metadata{ID: "keep", RiskTier: engine.RiskLow})
	require.NoError(t, err)
	require.Error(t, r.Replace([]Metadata{{ID: "", RiskTier: engine.RiskLow}}))
	assert.Equal(t, 1, r.Len(), "failed replace must keep previous contents")
}

func writeCatalog(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestFileRegistryLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	writeCatalog(t, path, `
prompts:
  - id: rollout
    name: Roll out image
    riskTier: medium
`)

	r, err := NewFileRegistry(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	writeCatalog(t, path, `
prompts:
  - id: rollout
    riskTier: high
  - id: restart
    riskTier: low
`)
	require.NoError(t, r.Reload())
	assert.Equal(t, 2, r.Len())

	m, err := r.Metadata(context.Background(), "rollout")
	require.NoError(t, err)
	assert.Equal(t, engine.RiskHigh, m.RiskTier)

	writeCatalog(t, path, "prompts: [ {id: bad, riskTier: extreme} ]")
	assert.Error(t, r.Reload())
	assert.Equal(t, 2, r.Len(), "invalid file must not replace contents")
}

func TestFileRegistryWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	writeCatalog(t, path, "prompts:\n  - id: a\n    riskTier: low\n")

	r, err := NewFileRegistry(path, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))

	writeCatalog(t, path, "prompts:\n  - id: a\n    riskTier: low\n  - id: b\n    riskTier: high\n")

	assert.Eventually(t, func() bool { return r.Len() == 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestNewFileRegistryMissingFile(t *testing.T) {
	_, err := NewFileRegistry(filepath.Join(t.TempDir(), "absent.yaml"), zerolog.Nop())
	assert.Error(t, err)
}
