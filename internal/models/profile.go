package models

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// baselineDuty is the fraction of pulse phase used to estimate the off-pulse level.
const baselineDuty = 0.15

// Profile is one fixed-length amplitude array for a (subint, pol, chan) cell.
type Profile struct {
	Amps   []float64
	Weight float64
}

// NewProfile returns a zeroed profile of nbin samples with unit weight.
func NewProfile(nbin int) *Profile {
	return &Profile{Amps: make([]float64, nbin), Weight: 1}
}

// Nbin returns the number of phase bins.
func (p *Profile) Nbin() int {
	return len(p.Amps)
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	return &Profile{Amps: append([]float64(nil), p.Amps...), Weight: p.Weight}
}

// Scale multiplies every amplitude by f.
func (p *Profile) Scale(f float64) {
	floats.Scale(f, p.Amps)
}

// Offset adds v to every amplitude.
func (p *Profile) Offset(v float64) {
	floats.AddConst(v, p.Amps)
}

// Sum adds other into p bin by bin.
func (p *Profile) Sum(other *Profile) error {
	if other.Nbin() != p.Nbin() {
		return fmt.Errorf("profile sum: nbin mismatch %d != %d", other.Nbin(), p.Nbin())
	}
	floats.Add(p.Amps, other.Amps)
	return nil
}

// Mean returns the average amplitude.
func (p *Profile) Mean() float64 {
	if len(p.Amps) == 0 {
		return 0
	}
	return floats.Sum(p.Amps) / float64(len(p.Amps))
}

// RotatePhase rotates the profile circularly so that new(x) = old(x + turns).
// Fractional bins are handled exactly in the Fourier domain.
func (p *Profile) RotatePhase(turns float64) {
	n := p.Nbin()
	if n < 2 || turns == 0 {
		return
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, p.Amps)
	for k := range coeffs {
		coeffs[k] *= cmplx.Rect(1, 2*math.Pi*float64(k)*turns)
	}
	fft.Sequence(p.Amps, coeffs)
	floats.Scale(1/float64(n), p.Amps)
}

// RemoveBaseline subtracts the mean of the quietest phase window.
func (p *Profile) RemoveBaseline() {
	p.Offset(-p.Baseline(p.BaselineWindow()))
}

// BaselineWindow returns the start bin of the circular window of
// baselineDuty width with the lowest mean.
func (p *Profile) BaselineWindow() int {
	n := p.Nbin()
	width := baselineWidth(n)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < width; i++ {
		sum += p.Amps[i]
	}
	best, bestStart := sum, 0
	for start := 1; start < n; start++ {
		sum += p.Amps[(start+width-1)%n] - p.Amps[start-1]
		if sum < best {
			best, bestStart = sum, start
		}
	}
	return bestStart
}

// Baseline returns the mean over the baseline window beginning at start.
func (p *Profile) Baseline(start int) float64 {
	n := p.Nbin()
	if n == 0 {
		return 0
	}
	width := baselineWidth(n)
	sum := 0.0
	for i := 0; i < width; i++ {
		sum += p.Amps[(start+i)%n]
	}
	return sum / float64(width)
}

func baselineWidth(nbin int) int {
	w := int(math.Round(baselineDuty * float64(nbin)))
	if w < 1 {
		w = 1
	}
	if w > nbin {
		w = nbin
	}
	return w
}
