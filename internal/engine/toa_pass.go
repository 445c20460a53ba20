package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/autotoa/internal/metrics"
	"github.com/miradorstack/autotoa/internal/models"
	"github.com/miradorstack/autotoa/internal/utils"
)

// TOAWriter receives timing records in emission order.
type TOAWriter interface {
	Write(ctx context.Context, toa models.TOA) error
}

// TOAStats summarises the emission pass.
type TOAStats struct {
	Files   int
	Dropped int
	Seen    int
	Emitted int
}

// EmitTOAs fits every remaining observation against tmpl once and writes a
// record for each channel that clears the SNR cutoff. Failing files are
// dropped from ws; a failing writer aborts the pass.
func (r *Refiner) EmitTOAs(ctx context.Context, ws *WorkingSet, tmpl *models.Template, nharm int, out TOAWriter) (TOAStats, error) {
	const op = "engine.EmitTOAs"

	files := ws.Files()
	dropped := make(map[int]bool)
	var stats TOAStats

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, utils.NewFatal(op, "toa pass canceled", err)
		}
		start := time.Now()
		toas, seen, err := r.fileTOAs(ctx, path, tmpl, nharm)
		r.observeFile(metrics.PassTOA, start)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, utils.NewFatal(op, "toa pass canceled", ctxErr)
			}
			r.logger.Error("dropping observation",
				slog.String("file", path),
				slog.String("pass", metrics.PassTOA),
				slog.Any("error", err))
			dropped[i] = true
			metrics.FileDropped(metrics.PassTOA)
			continue
		}
		for _, toa := range toas {
			if err := out.Write(ctx, toa); err != nil {
				return stats, utils.NewFatal(op, "write toa for "+path, err)
			}
			metrics.TOAWritten()
		}
		stats.Seen += seen
		stats.Emitted += len(toas)
		r.logger.Debug("toa progress",
			slog.Int("file", i+1),
			slog.Int("total", len(files)),
			slog.Int("toas", len(toas)))
	}

	stats.Dropped = ws.Retain(func(i int, _ string) bool { return !dropped[i] })
	stats.Files = len(files) - stats.Dropped
	metrics.SetWorkingSet(ws.Len())
	return stats, nil
}

func (r *Refiner) fileTOAs(ctx context.Context, path string, tmpl *models.Template, nharm int) ([]models.TOA, int, error) {
	const op = "engine.fileTOAs"

	obs, err := r.loader.Load(ctx, path)
	if err != nil {
		return nil, 0, utils.NewRecoverable(op, "load "+path, err)
	}
	if r.opts.Fscrunch {
		obs.Fscrunch()
	}
	if err := obs.ConvertState(toaState(r.opts.InvariantInterval)); err != nil {
		return nil, 0, utils.NewRecoverable(op, "convert "+path, err)
	}
	if obs.NBin() != tmpl.Nbin() {
		return nil, 0, utils.NewRecoverable(op, "check "+path, fmt.Errorf("nbin %d does not match template nbin %d", obs.NBin(), tmpl.Nbin()))
	}

	var (
		toas []models.TOA
		seen int
	)
	for isub, sub := range obs.Subints {
		for ichan := 0; ichan < sub.NChan(); ichan++ {
			seen++
			fit, err := r.fitter.Fit(sub.Profile(0, ichan), tmpl.Reference(), nharm)
			if err != nil {
				return nil, 0, utils.NewRecoverable(op, fmt.Sprintf("fit %s subint %d chan %d", path, isub, ichan), err)
			}
			if !r.passesSNR(fit) {
				continue
			}
			toas = append(toas, r.fitter.TOA(obs, isub, ichan, fit))
		}
	}
	return toas, seen, nil
}
