package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/miradorstack/autotoa/internal/config"
	"github.com/miradorstack/autotoa/internal/fitting"
	"github.com/miradorstack/autotoa/internal/metrics"
	"github.com/miradorstack/autotoa/internal/models"
	"github.com/miradorstack/autotoa/internal/repo"
	"github.com/miradorstack/autotoa/internal/smoothing"
	"github.com/miradorstack/autotoa/internal/utils"
)

// ArchiveLoader reads one observation from storage.
type ArchiveLoader interface {
	Load(ctx context.Context, path string) (*models.Observation, error)
}

// Fitter measures a profile against the template and builds timing records.
type Fitter interface {
	Fit(prof, tmpl *models.Profile, nharm int) (models.FitResult, error)
	TOA(obs *models.Observation, isub, ichan int, fit models.FitResult) models.TOA
}

// Smoother denoises profiles. Derive computes parameters from a reference
// profile and Apply reuses them on any profile of the same length.
type Smoother interface {
	Derive(ref *models.Profile) smoothing.Params
	Apply(p *models.Profile, params smoothing.Params)
}

// Options are the run settings the engine honours.
type Options struct {
	MaxIterations     int
	Harmonics         int
	SNRCutoff         float64
	Fscrunch          bool
	Tscrunch          bool
	InvariantInterval bool
	TemplatePath      string
	GaussWidth        float64
}

// OptionsFromConfig extracts engine options from the run configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxIterations:     cfg.Refine.MaxIterations,
		Harmonics:         cfg.Refine.Harmonics,
		SNRCutoff:         cfg.Refine.SNRCutoff,
		Fscrunch:          cfg.Refine.Fscrunch,
		Tscrunch:          cfg.Refine.Tscrunch,
		InvariantInterval: cfg.Refine.InvariantInterval,
		TemplatePath:      cfg.Template.Path,
		GaussWidth:        cfg.Template.GaussWidth,
	}
}

// IterationStats summarises one pass of the refinement loop.
type IterationStats struct {
	Iteration int
	Files     int
	Dropped   int
	Seen      int
	Processed int
	Skipped   int
	Norm      float64
}

// RefineResult is the state left behind by the last completed iteration.
type RefineResult struct {
	// Fitting is the smoothed template used as the fit target.
	Fitting *models.Template
	// Persisted is the normalized, unsmoothed sum from the last iteration.
	Persisted *models.Template
	// Invariant is the normalized invariant-interval sum.
	Invariant  *models.Profile
	Epochs     models.EpochRange
	Duration   float64
	Harmonics  int
	Iterations []IterationStats
}

// Refiner drives template construction, refinement and TOA emission.
type Refiner struct {
	logger    *slog.Logger
	loader    ArchiveLoader
	fitter    Fitter
	smoother  Smoother
	opts      Options
	latencies *utils.LatencyTracker
}

// NewRefiner wires the collaborators. Nil collaborators fall back to the
// package defaults.
func NewRefiner(logger *slog.Logger, loader ArchiveLoader, fitter Fitter, smoother Smoother, opts Options) *Refiner {
	if logger == nil {
		logger = slog.Default()
	}
	if loader == nil {
		loader = repo.NewArchiveStore()
	}
	if fitter == nil {
		fitter = fitting.NewShiftFitter()
	}
	if smoother == nil {
		smoother = smoothing.NewAdaptiveSmoother()
	}
	return &Refiner{
		logger:    logger,
		loader:    loader,
		fitter:    fitter,
		smoother:  smoother,
		opts:      opts,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// FileLatencyP95 returns the p95 time spent on one observation across passes.
func (r *Refiner) FileLatencyP95() time.Duration {
	return r.latencies.Percentile(95)
}

// FileLatencyMean returns the mean time spent on one observation over the retained window.
func (r *Refiner) FileLatencyMean() time.Duration {
	return r.latencies.Mean()
}

// FilesHandled returns how many observation loads the refiner has attempted.
func (r *Refiner) FilesHandled() int {
	return r.latencies.Total()
}

func (r *Refiner) observeFile(pass string, start time.Time) {
	elapsed := time.Since(start)
	r.latencies.Observe(elapsed)
	metrics.ObserveFile(pass, elapsed)
}

// BuildInitialTemplate produces the starting template from the configured
// source and smooths its reference polarization once. Every failure is fatal.
func (r *Refiner) BuildInitialTemplate(ctx context.Context, ws *WorkingSet) (*models.Template, error) {
	const op = "engine.BuildInitialTemplate"

	var (
		tmpl *models.Template
		err  error
	)
	switch {
	case r.opts.GaussWidth > 0:
		if r.opts.TemplatePath != "" {
			r.logger.Warn("both template file and gaussian width set, using analytic template",
				slog.String("template", r.opts.TemplatePath),
				slog.Float64("width", r.opts.GaussWidth))
		}
		tmpl, err = r.analyticTemplate(ctx, ws)
	case r.opts.TemplatePath != "":
		tmpl, err = r.scrunchedTemplate(ctx, r.opts.TemplatePath, r.opts.InvariantInterval)
	default:
		return nil, utils.NewFatal(op, "select initial template", ErrNoInitialTemplate)
	}
	if err != nil {
		return nil, utils.NewFatal(op, "build initial template", err)
	}

	ref := tmpl.Reference()
	r.smoother.Apply(ref, r.smoother.Derive(ref))

	r.logger.Info("initial template ready",
		slog.String("source", tmpl.Source),
		slog.String("state", string(tmpl.State)),
		slog.Int("nbin", tmpl.Nbin()),
		slog.Int("npol", tmpl.NPol()))
	return tmpl, nil
}

func (r *Refiner) analyticTemplate(ctx context.Context, ws *WorkingSet) (*models.Template, error) {
	first, ok := ws.First()
	if !ok {
		return nil, ErrEmptyWorkingSet
	}
	tmpl, err := r.scrunchedTemplate(ctx, first, false)
	if err != nil {
		return nil, err
	}
	ref := tmpl.Reference()
	nbin := float64(ref.Nbin())
	kappa := 1 / (r.opts.GaussWidth * r.opts.GaussWidth)
	for i := range ref.Amps {
		ref.Amps[i] = vonMises(float64(i)/nbin, 0.5, 1, kappa)
	}
	return tmpl, nil
}

func (r *Refiner) scrunchedTemplate(ctx context.Context, path string, invariant bool) (*models.Template, error) {
	obs, err := r.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	obs.Fscrunch()
	obs.Tscrunch()
	if err := obs.ConvertState(refineState(obs, invariant)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return models.TemplateFromObservation(obs)
}

// vonMises is a scaled von Mises pulse on the unit phase circle.
func vonMises(x, centre, height, kappa float64) float64 {
	return height * math.Exp(kappa*(math.Cos(2*math.Pi*(x-centre))-1))
}

// Refine runs the configured number of iterations starting from initial.
// Files that fail are dropped from ws for the rest of the run.
func (r *Refiner) Refine(ctx context.Context, ws *WorkingSet, initial *models.Template) (*RefineResult, error) {
	const op = "engine.Refine"
	if ws.Len() == 0 {
		return nil, utils.NewFatal(op, "start refinement", ErrEmptyWorkingSet)
	}

	nharm := EffectiveHarmonics(r.opts.Harmonics, initial.Nbin())
	result := &RefineResult{
		Fitting:   initial.Clone(),
		Harmonics: nharm,
	}
	r.logger.Info("refinement starting",
		slog.Int("files", ws.Len()),
		slog.Int("iterations", r.opts.MaxIterations),
		slog.Int("harmonics", nharm))

	for it := 0; it < r.opts.MaxIterations; it++ {
		acc, stats, err := r.iterate(ctx, ws, it, result.Fitting, nharm)
		if err != nil {
			return nil, err
		}
		persisted, err := acc.template(result.Fitting)
		if err != nil {
			return nil, utils.NewFatal(op, fmt.Sprintf("normalize iteration %d", it), err)
		}

		result.Persisted = persisted
		result.Fitting = r.smoothed(persisted)
		result.Invariant = acc.invariantProfile()
		result.Epochs = acc.epochs
		result.Duration = acc.duration
		result.Iterations = append(result.Iterations, stats)

		metrics.ObserveIteration(stats.Processed, stats.Skipped)
		r.logger.Info("iteration complete",
			slog.Int("iteration", it),
			slog.Int("files", stats.Files),
			slog.Int("dropped", stats.Dropped),
			slog.Int("processed", stats.Processed),
			slog.Int("skipped", stats.Skipped),
			slog.Int("seen", stats.Seen))
	}
	return result, nil
}

// smoothed derives smoothing parameters on the reference polarization and
// applies the same parameters to every polarization.
func (r *Refiner) smoothed(persisted *models.Template) *models.Template {
	out := persisted.Clone()
	params := r.smoother.Derive(out.Reference())
	for _, prof := range out.Profiles {
		r.smoother.Apply(prof, params)
	}
	return out
}

func (r *Refiner) iterate(ctx context.Context, ws *WorkingSet, it int, tmpl *models.Template, nharm int) (*accumulator, IterationStats, error) {
	const op = "engine.iterate"

	files := ws.Files()
	acc := newAccumulator(tmpl.Nbin())
	dropped := make(map[int]bool)

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, IterationStats{}, utils.NewFatal(op, "refinement canceled", err)
		}
		start := time.Now()
		staged, err := r.processFile(ctx, path, tmpl, nharm)
		r.observeFile(metrics.PassRefine, start)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, IterationStats{}, utils.NewFatal(op, "refinement canceled", ctxErr)
			}
			r.logger.Error("dropping observation",
				slog.String("file", path),
				slog.Int("iteration", it),
				slog.Any("error", err))
			dropped[i] = true
			metrics.FileDropped(metrics.PassRefine)
			continue
		}
		acc.merge(staged)
		r.logger.Debug("refine progress",
			slog.Int("iteration", it),
			slog.Int("file", i+1),
			slog.Int("total", len(files)),
			slog.Int("skipped", acc.skipped),
			slog.Int("seen", acc.seen))
	}

	removed := ws.Retain(func(i int, _ string) bool { return !dropped[i] })
	metrics.SetWorkingSet(ws.Len())

	return acc, IterationStats{
		Iteration: it,
		Files:     len(files) - removed,
		Dropped:   removed,
		Seen:      acc.seen,
		Processed: acc.processed,
		Skipped:   acc.skipped,
		Norm:      acc.norm,
	}, nil
}

// processFile fits one observation and returns its staged contribution.
// Nothing is staged into the iteration unless the whole file succeeds.
func (r *Refiner) processFile(ctx context.Context, path string, tmpl *models.Template, nharm int) (*accumulator, error) {
	const op = "engine.processFile"

	obs, err := r.loader.Load(ctx, path)
	if err != nil {
		return nil, utils.NewRecoverable(op, "load "+path, err)
	}
	if r.opts.Fscrunch {
		obs.Fscrunch()
	}
	if r.opts.Tscrunch {
		obs.Tscrunch()
	}
	obs.RemoveBaseline()
	if err := obs.ConvertState(refineState(obs, r.opts.InvariantInterval)); err != nil {
		return nil, utils.NewRecoverable(op, "convert "+path, err)
	}
	if obs.NPol() > maxPols {
		return nil, utils.NewRecoverable(op, "check "+path, fmt.Errorf("%d polarizations, at most %d supported", obs.NPol(), maxPols))
	}
	if obs.NBin() != tmpl.Nbin() {
		return nil, utils.NewRecoverable(op, "check "+path, fmt.Errorf("nbin %d does not match template nbin %d", obs.NBin(), tmpl.Nbin()))
	}

	staged := newAccumulator(tmpl.Nbin())
	for isub, sub := range obs.Subints {
		staged.epochs.Include(sub.Epoch)
		staged.duration += sub.Duration
		for ichan := 0; ichan < sub.NChan(); ichan++ {
			staged.seen++
			ref := sub.Profile(0, ichan)
			if ref.Weight == 0 {
				staged.skipped++
				continue
			}
			fit, err := r.fitter.Fit(ref, tmpl.Reference(), nharm)
			if err != nil {
				return nil, utils.NewRecoverable(op, fmt.Sprintf("fit %s subint %d chan %d", path, isub, ichan), err)
			}
			if !r.accepts(fit) {
				staged.skipped++
				continue
			}
			for ipol := 0; ipol < sub.NPol(); ipol++ {
				prof := sub.Profile(ipol, ichan)
				prof.RotatePhase(fit.Shift)
				prof.Scale(fit.Scale / fit.MSE)
				floats.Add(staged.sums[ipol].Amps, prof.Amps)
			}
			staged.norm += fit.Scale * fit.Scale / fit.MSE
			staged.processed++
		}
	}
	return staged, nil
}

// accepts applies the refinement gate: SNR at or above the cutoff with a
// positive scale and residual.
func (r *Refiner) accepts(fit models.FitResult) bool {
	return r.passesSNR(fit) && fit.Scale > 0 && fit.MSE > 0
}

func (r *Refiner) passesSNR(fit models.FitResult) bool {
	return !math.IsNaN(fit.SNR) && fit.SNR >= r.opts.SNRCutoff
}
