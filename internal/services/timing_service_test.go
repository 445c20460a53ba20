package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/autotoa/internal/config"
	"github.com/miradorstack/autotoa/internal/engine"
	"github.com/miradorstack/autotoa/internal/models"
	"github.com/miradorstack/autotoa/internal/repo"
	"github.com/miradorstack/autotoa/internal/synth"
	"github.com/miradorstack/autotoa/internal/utils"
)

type failingWriter struct{ err error }

func (f failingWriter) Save(context.Context, string, *models.Observation) error { return f.err }

func writeArchives(t *testing.T, dir string) []string {
	t.Helper()
	store := repo.NewArchiveStore()
	var files []string
	for i, shift := range []float64{0.02, -0.03} {
		cfg := synth.Defaults()
		cfg.Path = filepath.Join(dir, "obs-"+string(rune('a'+i))+".json")
		cfg.Shift = shift
		cfg.Seed = uint64(i + 7)
		cfg.Epoch = models.NewMJD(60000, 0.5*float64(i))
		obs, err := synth.Generate(cfg)
		require.NoError(t, err)
		require.NoError(t, store.Save(context.Background(), cfg.Path, obs))
		files = append(files, cfg.Path)
	}
	return files
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Refine.MaxIterations = 3
	cfg.Template.GaussWidth = 0.05
	cfg.Output = config.OutputConfig{
		TOAs:     filepath.Join(dir, "out.tim"),
		Template: filepath.Join(dir, "template.json"),
		Plot:     filepath.Join(dir, "template.png"),
	}
	return &cfg
}

func newService(cfg *config.Config, writer TemplateWriter, plot PlotFunc) *TimingService {
	logger := utils.DiscardLogger()
	refiner := engine.NewRefiner(logger, nil, nil, nil, engine.OptionsFromConfig(cfg))
	return NewTimingService(logger, refiner, writer, nil, plot, cfg)
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	files := writeArchives(t, dir)
	cfg := testConfig(dir)

	rep, err := newService(cfg, nil, nil).Run(context.Background(), files)
	require.NoError(t, err)

	assert.Len(t, rep.Iterations, 3)
	assert.Equal(t, 2, rep.Remaining)
	require.NotNil(t, rep.TOAs)
	assert.Equal(t, 16, rep.TOAs.Emitted)
	for _, stats := range rep.Iterations {
		assert.Equal(t, stats.Seen, stats.Processed+stats.Skipped)
	}

	tim, err := os.ReadFile(cfg.Output.TOAs)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(tim)), "\n")
	require.Len(t, lines, 17)
	assert.Equal(t, "FORMAT 1", lines[0])
	assert.Contains(t, lines[1], "obs-a.json")

	saved, err := repo.NewArchiveStore().Load(context.Background(), cfg.Output.Template)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.NSubint())
	assert.Equal(t, 256, saved.NBin())
	assert.Contains(t, saved.History[len(saved.History)-1], rep.RunID)

	want := models.NewMJD(60000, 0.25).AddSeconds(30)
	assert.InDelta(t, 0, saved.Subints[0].Epoch.Sub(want), 1e-3)
	assert.InDelta(t, 240.0, saved.Subints[0].Duration, 1e-9)

	_, err = os.Stat(cfg.Output.Plot)
	assert.NoError(t, err)
}

func TestRunWithoutOutputsSkipsWrites(t *testing.T) {
	dir := t.TempDir()
	files := writeArchives(t, dir)
	cfg := testConfig(dir)
	cfg.Output = config.OutputConfig{}

	rep, err := newService(cfg, failingWriter{err: errors.New("should not be called")}, nil).Run(context.Background(), files)
	require.NoError(t, err)
	assert.Nil(t, rep.TOAs)
	assert.NotNil(t, rep.Template)
}

func TestRunTemplateSaveFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	files := writeArchives(t, dir)
	cfg := testConfig(dir)
	cfg.Output.TOAs = ""
	cfg.Output.Plot = ""

	_, err := newService(cfg, failingWriter{err: errors.New("read-only filesystem")}, nil).Run(context.Background(), files)
	require.Error(t, err)
	assert.True(t, utils.IsFatal(err))
}

func TestRunPlotFailureIsOnlyWarned(t *testing.T) {
	dir := t.TempDir()
	files := writeArchives(t, dir)
	cfg := testConfig(dir)
	cfg.Output.TOAs = ""

	plotted := false
	plot := func(string, *models.Template, *models.Template) error {
		plotted = true
		return errors.New("no fonts")
	}
	_, err := newService(cfg, nil, plot).Run(context.Background(), files)
	require.NoError(t, err)
	assert.True(t, plotted)
}

func TestRunFatalErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	_, err := newService(cfg, nil, nil).Run(context.Background(), nil)
	assert.ErrorIs(t, err, engine.ErrEmptyWorkingSet)
	assert.True(t, utils.IsFatal(err))

	cfg.Template.GaussWidth = 0
	files := writeArchives(t, dir)
	_, err = newService(cfg, nil, nil).Run(context.Background(), files)
	assert.ErrorIs(t, err, engine.ErrNoInitialTemplate)
}
