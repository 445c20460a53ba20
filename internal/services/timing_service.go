package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/miradorstack/autotoa/internal/config"
	"github.com/miradorstack/autotoa/internal/engine"
	"github.com/miradorstack/autotoa/internal/models"
	"github.com/miradorstack/autotoa/internal/report"
	"github.com/miradorstack/autotoa/internal/repo"
	"github.com/miradorstack/autotoa/internal/utils"
)

// TemplateWriter persists the assembled template.
type TemplateWriter interface {
	Save(ctx context.Context, path string, obs *models.Observation) error
}

// SinkOpener opens the TOA destination for a run.
type SinkOpener func(path, runID string) (repo.TOASink, error)

// PlotFunc renders the fitting and persisted templates.
type PlotFunc func(path string, fitting, persisted *models.Template) error

// RunReport summarises a completed run.
type RunReport struct {
	RunID      string
	Files      int
	Remaining  int
	Iterations []engine.IterationStats
	TOAs       *engine.TOAStats
	Template   *models.Template
	Elapsed    time.Duration
}

// TimingService runs template construction, refinement, TOA emission and
// template persistence end to end.
type TimingService struct {
	logger    *slog.Logger
	refiner   *engine.Refiner
	writer    TemplateWriter
	openSink  SinkOpener
	plot      PlotFunc
	output    config.OutputConfig
	invariant bool
	now       func() time.Time
}

// NewTimingService constructs the run orchestrator. Nil collaborators use
// the JSON archive store, repo.OpenTOASink and report.PlotTemplate.
func NewTimingService(logger *slog.Logger, refiner *engine.Refiner, writer TemplateWriter, openSink SinkOpener, plot PlotFunc, cfg *config.Config) *TimingService {
	if logger == nil {
		logger = slog.Default()
	}
	if writer == nil {
		writer = repo.NewArchiveStore()
	}
	if openSink == nil {
		openSink = repo.OpenTOASink
	}
	if plot == nil {
		plot = report.PlotTemplate
	}
	return &TimingService{
		logger:    logger,
		refiner:   refiner,
		writer:    writer,
		openSink:  openSink,
		plot:      plot,
		output:    cfg.Output,
		invariant: cfg.Refine.InvariantInterval,
		now:       time.Now,
	}
}

// Run processes files and writes the configured outputs.
func (s *TimingService) Run(ctx context.Context, files []string) (*RunReport, error) {
	const op = "services.Run"
	if s.refiner == nil {
		return nil, utils.NewFatal(op, "start run", errors.New("refiner not configured"))
	}
	if len(files) == 0 {
		return nil, utils.NewFatal(op, "start run", engine.ErrEmptyWorkingSet)
	}

	started := s.now()
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))
	ws := engine.NewWorkingSet(files)
	logger.Info("run starting", slog.String("files", humanize.Comma(int64(len(files)))))

	initial, err := s.refiner.BuildInitialTemplate(ctx, ws)
	if err != nil {
		return nil, err
	}
	result, err := s.refiner.Refine(ctx, ws, initial)
	if err != nil {
		return nil, err
	}

	rep := &RunReport{
		RunID:      runID,
		Files:      len(files),
		Iterations: result.Iterations,
	}

	if s.output.TOAs != "" {
		stats, err := s.emitTOAs(ctx, ws, result, runID)
		if err != nil {
			return nil, err
		}
		rep.TOAs = &stats
		logger.Info("toas written",
			slog.String("path", s.output.TOAs),
			slog.String("count", humanize.Comma(int64(stats.Emitted))),
			slog.Int("dropped", stats.Dropped))
	}

	final, err := engine.Assemble(logger, result, s.invariant)
	if err != nil {
		return nil, utils.NewFatal(op, "assemble template", err)
	}
	rep.Template = final

	if s.output.Template != "" {
		if err := s.saveTemplate(ctx, final, runID, len(result.Iterations), ws.Len()); err != nil {
			return nil, err
		}
	}
	if s.output.Plot != "" {
		if err := s.plot(s.output.Plot, result.Fitting, final); err != nil {
			logger.Warn("template plot failed", slog.String("path", s.output.Plot), slog.Any("error", err))
		}
	}

	finished := s.now()
	rep.Remaining = ws.Len()
	rep.Elapsed = finished.Sub(started)
	logger.Info("run complete",
		slog.Int("iterations", len(result.Iterations)),
		slog.Int("files_remaining", rep.Remaining),
		slog.String("file_loads", humanize.Comma(int64(s.refiner.FilesHandled()))),
		slog.Duration("file_mean", s.refiner.FileLatencyMean()),
		slog.Duration("file_p95", s.refiner.FileLatencyP95()),
		slog.Float64("elapsed_minutes", utils.DurationMinutes(started, finished)),
		slog.String("epoch", final.Epoch.String()))
	return rep, nil
}

func (s *TimingService) emitTOAs(ctx context.Context, ws *engine.WorkingSet, result *engine.RefineResult, runID string) (stats engine.TOAStats, err error) {
	const op = "services.emitTOAs"
	sink, err := s.openSink(s.output.TOAs, runID)
	if err != nil {
		return stats, utils.NewFatal(op, "open "+s.output.TOAs, err)
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = utils.NewFatal(op, "close "+s.output.TOAs, closeErr)
		}
	}()
	return s.refiner.EmitTOAs(ctx, ws, result.Fitting, result.Harmonics, sink)
}

func (s *TimingService) saveTemplate(ctx context.Context, tmpl *models.Template, runID string, iterations, files int) error {
	const op = "services.saveTemplate"
	path := s.output.Template
	obs := tmpl.Observation(path)
	obs.History = append(obs.History, fmt.Sprintf("autotoa run %s: %d iterations over %d files", runID, iterations, files))
	if err := s.writer.Save(ctx, path, obs); err != nil {
		return utils.NewFatal(op, "save "+path, err)
	}
	attrs := []any{slog.String("path", path), slog.Int("nbin", tmpl.Nbin())}
	if info, err := os.Stat(path); err == nil {
		attrs = append(attrs, slog.String("size", humanize.Bytes(uint64(info.Size()))))
	}
	s.logger.Info("template written", attrs...)
	return nil
}
