package engine

import (
	"gonum.org/v1/gonum/floats"

	"github.com/miradorstack/autotoa/internal/models"
)

// accumulator holds the running sums of one iteration, or the staged
// contribution of one file.
type accumulator struct {
	sums      []*models.Profile
	invariant *models.Profile
	norm      float64
	seen      int
	processed int
	skipped   int
	epochs    models.EpochRange
	duration  float64
}

func newAccumulator(nbin int) *accumulator {
	acc := &accumulator{
		sums:      make([]*models.Profile, maxPols),
		invariant: models.NewProfile(nbin),
	}
	for ipol := range acc.sums {
		acc.sums[ipol] = models.NewProfile(nbin)
	}
	return acc
}

// merge folds a staged file contribution into a. Both share nbin.
func (a *accumulator) merge(staged *accumulator) {
	for ipol := range a.sums {
		floats.Add(a.sums[ipol].Amps, staged.sums[ipol].Amps)
	}
	floats.Add(a.invariant.Amps, staged.invariant.Amps)
	a.norm += staged.norm
	a.seen += staged.seen
	a.processed += staged.processed
	a.skipped += staged.skipped
	a.epochs.Merge(staged.epochs)
	a.duration += staged.duration
}

// template normalizes the sums into a new template shaped like prev.
func (a *accumulator) template(prev *models.Template) (*models.Template, error) {
	if a.norm == 0 {
		return nil, ErrNoAcceptedChannels
	}
	out := prev.Clone()
	for ipol := range out.Profiles {
		prof := a.sums[ipol].Clone()
		prof.Scale(1 / a.norm)
		out.Profiles[ipol] = prof
	}
	return out, nil
}

func (a *accumulator) invariantProfile() *models.Profile {
	prof := a.invariant.Clone()
	if a.norm != 0 {
		prof.Scale(1 / a.norm)
	}
	return prof
}
