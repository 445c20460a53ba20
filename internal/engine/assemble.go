package engine

import (
	"fmt"
	"log/slog"

	"github.com/miradorstack/autotoa/internal/models"
)

// Assemble stamps the last iteration's unsmoothed template with the midpoint
// epoch and total duration of that iteration. In invariant mode the template
// collapses to the invariant state and takes the invariant sum as its profile.
func Assemble(logger *slog.Logger, res *RefineResult, invariant bool) (*models.Template, error) {
	if res == nil || res.Persisted == nil {
		return nil, fmt.Errorf("assemble: no refinement result")
	}
	if res.Epochs.Empty() {
		return nil, fmt.Errorf("assemble: no sub-integration epochs recorded")
	}
	if logger == nil {
		logger = slog.Default()
	}

	out := res.Persisted.Clone()
	out.Epoch = res.Epochs.Midpoint()
	out.Duration = res.Duration

	if !invariant {
		return out, nil
	}

	obs := out.Observation("")
	if err := obs.ConvertState(models.StateInvariant); err != nil {
		return nil, fmt.Errorf("assemble invariant template: %w", err)
	}
	converted, err := models.TemplateFromObservation(obs)
	if err != nil {
		return nil, fmt.Errorf("assemble invariant template: %w", err)
	}
	if res.Invariant == nil || res.Invariant.Nbin() != converted.Nbin() {
		return nil, fmt.Errorf("assemble invariant template: invariant sum does not match template nbin")
	}
	converted.Profiles[0] = res.Invariant.Clone()
	logger.Warn("invariant template taken from the invariant accumulator, which refinement does not fill",
		slog.Int("nbin", converted.Nbin()))
	return converted, nil
}
