package fitting

import (
	"math"
	"math/rand"
	"testing"

	"github.com/miradorstack/autotoa/internal/models"
)

func gaussianProfile(nbin int, centre, width float64) *models.Profile {
	p := models.NewProfile(nbin)
	for i := range p.Amps {
		x := float64(i)/float64(nbin) - centre
		x -= math.Round(x)
		p.Amps[i] = math.Exp(-0.5 * (x / width) * (x / width))
	}
	return p
}

func TestFitRecoversShiftAndScale(t *testing.T) {
	tmpl := gaussianProfile(256, 0.5, 0.03)
	prof := tmpl.Clone()
	prof.Scale(2)
	prof.RotatePhase(-0.1) // pulse arrives 0.1 turns late

	rng := rand.New(rand.NewSource(7))
	for i := range prof.Amps {
		prof.Amps[i] += 0.01 * rng.NormFloat64()
	}

	res, err := NewShiftFitter().Fit(prof, tmpl, 64)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if math.Abs(res.Shift-0.1) > 1e-3 {
		t.Fatalf("expected shift 0.1, got %f", res.Shift)
	}
	if math.Abs(res.Scale-2) > 0.02 {
		t.Fatalf("expected scale 2, got %f", res.Scale)
	}
	if res.MSE < 0.5e-4 || res.MSE > 2e-4 {
		t.Fatalf("expected mse near 1e-4, got %g", res.MSE)
	}
	if res.SNR < 50 {
		t.Fatalf("expected strong detection, got snr %f", res.SNR)
	}
	if res.ShiftVariance <= 0 || res.ScaleVariance <= 0 {
		t.Fatalf("variances must be positive: %+v", res)
	}

	aligned := prof.Clone()
	aligned.RotatePhase(res.Shift)
	peak := 0
	for i := range aligned.Amps {
		if aligned.Amps[i] > aligned.Amps[peak] {
			peak = i
		}
	}
	if peak < 126 || peak > 130 {
		t.Fatalf("rotating by the fitted shift should align the peak near bin 128, got %d", peak)
	}
}

func TestFitNegativeShiftWraps(t *testing.T) {
	tmpl := gaussianProfile(128, 0.5, 0.05)
	prof := tmpl.Clone()
	prof.RotatePhase(0.45) // pulse arrives 0.45 turns early

	res, err := NewShiftFitter().Fit(prof, tmpl, 0)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if math.Abs(res.Shift+0.45) > 1e-6 {
		t.Fatalf("expected shift -0.45, got %f", res.Shift)
	}
	if res.Harmonics != MaxHarmonics(128) {
		t.Fatalf("expected harmonics clamped to %d, got %d", MaxHarmonics(128), res.Harmonics)
	}
}

func TestFitRejectsMismatchedAndFlat(t *testing.T) {
	f := NewShiftFitter()
	if _, err := f.Fit(models.NewProfile(64), models.NewProfile(32), 8); err == nil {
		t.Fatalf("expected nbin mismatch error")
	}
	flat := models.NewProfile(64)
	flat.Offset(3)
	if _, err := f.Fit(gaussianProfile(64, 0.5, 0.05), flat, 8); err != ErrFlatTemplate {
		t.Fatalf("expected ErrFlatTemplate, got %v", err)
	}
}

func TestTOAUsesPeriodAndEpoch(t *testing.T) {
	obs := &models.Observation{
		Path:      "obs1.json",
		Telescope: "ao",
		State:     models.StateIntensity,
		Subints: []*models.Integration{{
			Epoch:       models.NewMJD(55000, 0.5),
			Period:      0.01,
			Frequencies: []float64{1400},
			Profiles:    [][]*models.Profile{{models.NewProfile(8)}},
		}},
	}
	fit := models.FitResult{Shift: 0.25, ShiftVariance: 1e-6, SNR: 20}
	toa := NewShiftFitter().TOA(obs, 0, 0, fit)
	if got := toa.Arrival.Sub(obs.Subints[0].Epoch); math.Abs(got-0.0025) > 1e-9 {
		t.Fatalf("expected arrival 2.5ms after epoch, got %g s", got)
	}
	if math.Abs(toa.ErrorMicros-10) > 1e-9 {
		t.Fatalf("expected 10us error, got %f", toa.ErrorMicros)
	}
	if toa.Frequency != 1400 || toa.Telescope != "ao" || toa.File != "obs1.json" {
		t.Fatalf("unexpected toa metadata: %+v", toa)
	}
}
