package engine

import "github.com/miradorstack/autotoa/internal/models"

// maxPols is the widest polarization representation the accumulators hold.
const maxPols = 4

// refineState picks the representation used to build and refine the template.
// Invariant mode keeps full Stokes so the interval can be formed later.
func refineState(obs *models.Observation, invariant bool) models.PolState {
	if invariant || obs.NPol() == maxPols {
		return models.StateStokes
	}
	return models.StateIntensity
}

// toaState picks the representation used when emitting TOAs. There is no
// full-Stokes branch here.
func toaState(invariant bool) models.PolState {
	if invariant {
		return models.StateInvariant
	}
	return models.StateIntensity
}

// EffectiveHarmonics caps the configured harmonic count at nbin/4.
func EffectiveHarmonics(configured, nbin int) int {
	if limit := nbin / 4; limit < configured {
		return limit
	}
	return configured
}
