// Package smoothing denoises pulse profiles with an adaptive Fourier low-pass.
//
// The cutoff harmonic is chosen on a reference profile by minimising the
// estimated risk of truncation: each kept harmonic costs one unit of noise
// power, each dropped harmonic costs its signal power. The chosen Params can
// then be applied unchanged to other profiles (e.g. the remaining
// polarizations) so their relative scaling is preserved.
package smoothing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/miradorstack/autotoa/internal/models"
)

// minBins is the smallest profile the smoother will touch.
const minBins = 8

// Params carries the smoothing decision derived from a reference profile.
type Params struct {
	// Cutoff is the highest harmonic retained. Zero means "no smoothing".
	Cutoff int
}

// AdaptiveSmoother derives and applies Params.
type AdaptiveSmoother struct {
	// MinCutoff keeps at least this many harmonics whatever the noise level.
	MinCutoff int
}

// NewAdaptiveSmoother returns a smoother that always keeps the fundamental.
func NewAdaptiveSmoother() *AdaptiveSmoother {
	return &AdaptiveSmoother{MinCutoff: 1}
}

// Derive picks the cutoff harmonic for ref without modifying it.
func (s *AdaptiveSmoother) Derive(ref *models.Profile) Params {
	n := ref.Nbin()
	if n < minBins {
		return Params{}
	}
	coeffs := fourier.NewFFT(n).Coefficients(nil, ref.Amps)
	kmax := n / 2
	power := make([]float64, kmax+1)
	for k := 1; k <= kmax; k++ {
		power[k] = real(coeffs[k])*real(coeffs[k]) + imag(coeffs[k])*imag(coeffs[k])
	}

	upper := append([]float64(nil), power[kmax/2+1:]...)
	sort.Float64s(upper)
	// |X_k|² of white noise is exponential; its mean is median/ln2.
	noise := stat.Quantile(0.5, stat.Empirical, upper, nil) / math.Ln2

	// risk(K) = K*noise + sum_{k>K}(power_k - noise)
	tail := floats.Sum(power[1:]) - float64(kmax)*noise
	best, bestK := math.Inf(1), kmax
	minK := s.MinCutoff
	if minK < 1 {
		minK = 1
	}
	for k := 1; k <= kmax; k++ {
		tail -= power[k] - noise
		if k < minK {
			continue
		}
		risk := float64(k)*noise + tail
		if risk < best {
			best, bestK = risk, k
		}
	}
	return Params{Cutoff: bestK}
}

// Apply low-passes p in place using params.
func (s *AdaptiveSmoother) Apply(p *models.Profile, params Params) {
	n := p.Nbin()
	if n < minBins || params.Cutoff <= 0 || params.Cutoff >= n/2 {
		return
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, p.Amps)
	for k := params.Cutoff + 1; k < len(coeffs); k++ {
		coeffs[k] = 0
	}
	fft.Sequence(p.Amps, coeffs)
	floats.Scale(1/float64(n), p.Amps)
}
