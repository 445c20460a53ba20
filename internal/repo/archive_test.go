package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/autotoa/internal/models"
)

func sampleObservation() *models.Observation {
	return &models.Observation{
		Source:    "J1713+0747",
		Telescope: "gbt",
		State:     models.StatePPQQ,
		History:   []string{"created by test"},
		Subints: []*models.Integration{{
			Epoch:       models.NewMJD(56000, 0.125),
			Duration:    30,
			Period:      0.00457,
			Frequencies: []float64{1400, 1500},
			Profiles: [][]*models.Profile{
				{{Amps: []float64{1, 2, 3, 4}, Weight: 1}, {Amps: []float64{5, 6, 7, 8}, Weight: 0}},
				{{Amps: []float64{0, 1, 0, 1}, Weight: 1}, {Amps: []float64{1, 0, 1, 0}, Weight: 0}},
			},
		}},
	}
}

func TestArchiveSaveLoadRoundTrip(t *testing.T) {
	store := NewArchiveStore()
	path := filepath.Join(t.TempDir(), "nested", "obs.json")
	obs := sampleObservation()

	require.NoError(t, store.Save(context.Background(), path, obs))
	loaded, err := store.Load(context.Background(), path)
	require.NoError(t, err)

	obs.Path = path
	if diff := cmp.Diff(obs, loaded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiveLoadErrors(t *testing.T) {
	store := NewArchiveStore()
	dir := t.TempDir()

	_, err := store.Load(context.Background(), filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"state":"Stokes","subints":[{"epoch":"55000.0","data":[[[1,2]]]}]}`), 0o644))
	_, err = store.Load(context.Background(), bad)
	require.Error(t, err, "Stokes with one pol must fail validation")

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`not json`), 0o644))
	_, err = store.Load(context.Background(), garbage)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Load(ctx, bad)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpandPatternsAndMetafile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.json", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	files, err := ExpandPatterns([]string{filepath.Join(dir, "*.json"), filepath.Join(dir, "nope.json")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "nope.json"),
	}, files)

	meta := filepath.Join(dir, "files.meta")
	require.NoError(t, os.WriteFile(meta, []byte("# list\nx.json\n\n  y.json  \n"), 0o644))
	listed, err := ReadMetafile(meta)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.json", "y.json"}, listed)
}
