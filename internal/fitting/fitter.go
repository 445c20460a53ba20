// Package fitting measures the phase shift and amplitude scale of a pulse
// profile relative to a template by Fourier-domain template matching.
//
// The cross-correlation of profile and template is evaluated over the first
// nharm harmonics. A zero-padded inverse FFT gives a coarse peak which Newton
// iterations on the analytic correlation refine to sub-bin precision. The
// residual after removing the scaled, shifted template yields the noise
// estimate from which shift/scale variances and the SNR follow.
package fitting

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/miradorstack/autotoa/internal/models"
)

// oversample is the zero-padding factor for the coarse correlation grid.
const oversample = 4

// ErrFlatTemplate is returned when the template carries no power in the fitted harmonics.
var ErrFlatTemplate = errors.New("template has no power in fitted harmonics")

// ShiftFitter fits profiles against a template. It holds no template state;
// the template is passed to every call.
type ShiftFitter struct{}

// NewShiftFitter constructs a ShiftFitter.
func NewShiftFitter() *ShiftFitter {
	return &ShiftFitter{}
}

// MaxHarmonics returns the largest usable harmonic count for nbin.
func MaxHarmonics(nbin int) int {
	return nbin/2 - 1
}

// Fit measures prof against tmpl using nharm harmonics (clamped to what nbin allows).
func (f *ShiftFitter) Fit(prof, tmpl *models.Profile, nharm int) (models.FitResult, error) {
	n := prof.Nbin()
	if n != tmpl.Nbin() {
		return models.FitResult{}, fmt.Errorf("fit: profile nbin %d != template nbin %d", n, tmpl.Nbin())
	}
	maxH := MaxHarmonics(n)
	if maxH < 1 {
		return models.FitResult{}, fmt.Errorf("fit: nbin %d too small", n)
	}
	if nharm <= 0 || nharm > maxH {
		nharm = maxH
	}

	fft := fourier.NewFFT(n)
	pc := fft.Coefficients(nil, prof.Amps)
	tc := fft.Coefficients(nil, tmpl.Amps)

	cross := make([]complex128, nharm+1)
	sumT2, sumK2T2 := 0.0, 0.0
	for k := 1; k <= nharm; k++ {
		cross[k] = pc[k] * cmplx.Conj(tc[k])
		power := real(tc[k])*real(tc[k]) + imag(tc[k])*imag(tc[k])
		sumT2 += power
		sumK2T2 += float64(k*k) * power
	}
	dc := real(tc[0])
	if sumT2 <= 1e-20*math.Max(1, dc*dc) {
		return models.FitResult{}, ErrFlatTemplate
	}

	shift := refinePeak(cross, coarsePeak(cross, n*oversample))
	shift = wrapTurns(shift)
	ccf := correlation(cross, shift)
	scale := ccf / sumT2

	resid := 0.0
	for k := 1; k <= nharm; k++ {
		model := complex(scale, 0) * tc[k] * cmplx.Rect(1, -2*math.Pi*float64(k)*shift)
		r := pc[k] - model
		resid += real(r)*real(r) + imag(r)*imag(r)
	}
	dof := float64(2*nharm - 2)
	if dof < 1 {
		dof = 1
	}
	nf := float64(n)
	mse := 2 * resid / (nf * dof)

	res := models.FitResult{
		Shift:         shift,
		Scale:         scale,
		MSE:           mse,
		Harmonics:     nharm,
		ScaleVariance: mse * nf / (2 * sumT2),
		ShiftVariance: math.Inf(1),
	}
	if scale != 0 {
		res.ShiftVariance = mse * nf / (2 * scale * scale * 4 * math.Pi * math.Pi * sumK2T2)
	}
	signal := scale * math.Sqrt(2*sumT2/nf)
	switch {
	case mse > 0:
		res.SNR = signal / math.Sqrt(mse)
	case signal > 0:
		res.SNR = math.Inf(1)
	}
	return res, nil
}

// TOA turns a fit of (isub, ichan) into an arrival time at the sub-integration epoch.
func (f *ShiftFitter) TOA(obs *models.Observation, isub, ichan int, fit models.FitResult) models.TOA {
	sub := obs.Subints[isub]
	errMicros := math.Sqrt(fit.ShiftVariance) * sub.Period * 1e6
	return models.TOA{
		File:        obs.Path,
		Subint:      isub,
		Chan:        ichan,
		Frequency:   sub.Frequency(ichan),
		Arrival:     sub.Epoch.AddSeconds(fit.Shift * sub.Period),
		ErrorMicros: errMicros,
		Telescope:   obs.Telescope,
		SNR:         fit.SNR,
	}
}

// correlation evaluates sum_k Re(X_k e^{i2πkφ}).
func correlation(cross []complex128, phi float64) float64 {
	sum := 0.0
	for k := 1; k < len(cross); k++ {
		sum += real(cross[k] * cmplx.Rect(1, 2*math.Pi*float64(k)*phi))
	}
	return sum
}

// coarsePeak locates the correlation maximum on an m-point phase grid.
func coarsePeak(cross []complex128, m int) float64 {
	fft := fourier.NewFFT(m)
	coeffs := make([]complex128, m/2+1)
	copy(coeffs[1:], cross[1:])
	seq := fft.Sequence(nil, coeffs)
	best := 0
	for j := range seq {
		if seq[j] > seq[best] {
			best = j
		}
	}
	return float64(best) / float64(m)
}

// refinePeak polishes the coarse estimate with Newton's method on -ccf.
// The coarse value is kept if the optimiser wanders off the grid cell.
func refinePeak(cross []complex128, phi0 float64) float64 {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -correlation(cross, x[0])
		},
		Grad: func(grad, x []float64) {
			g := 0.0
			for k := 1; k < len(cross); k++ {
				w := 2 * math.Pi * float64(k)
				g += real(complex(0, w) * cross[k] * cmplx.Rect(1, w*x[0]))
			}
			grad[0] = -g
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			h := 0.0
			for k := 1; k < len(cross); k++ {
				w := 2 * math.Pi * float64(k)
				h -= w * w * real(cross[k]*cmplx.Rect(1, w*x[0]))
			}
			hess.SetSym(0, 0, -h)
		},
	}
	result, err := optimize.Minimize(problem, []float64{phi0}, nil, &optimize.Newton{})
	if result == nil || len(result.X) != 1 {
		return phi0
	}
	phi := result.X[0]
	if math.IsNaN(phi) || math.Abs(phi-phi0) > 0.5/float64(len(cross)) {
		return phi0
	}
	if err != nil && result.F > -correlation(cross, phi0) {
		return phi0
	}
	return phi
}

// wrapTurns maps phi into [-0.5, 0.5).
func wrapTurns(phi float64) float64 {
	phi -= math.Floor(phi + 0.5)
	return phi
}
