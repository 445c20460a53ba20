// Package synth generates synthetic pulsar observations for local
// development and tests.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/miradorstack/autotoa/internal/models"
)

// Config describes one synthetic observation.
type Config struct {
	Path      string
	Source    string
	Telescope string
	State     models.PolState
	Nbin      int
	Nchan     int
	Nsubint   int
	Period    float64
	Epoch     models.MJD
	// SubintSeconds is the duration of each sub-integration.
	SubintSeconds float64
	// CentreFreq and Bandwidth are in MHz.
	CentreFreq float64
	Bandwidth  float64
	// Centre and Width place the von Mises pulse in turns.
	Centre float64
	Width  float64
	// Shift offsets the pulse for the whole file.
	Shift    float64
	Baseline float64
	Noise    float64
	// ZapChan is given zero weight when >= 0.
	ZapChan int
	Seed    uint64
}

// Defaults returns a small, high-SNR Intensity observation.
func Defaults() Config {
	return Config{
		Source:        "J0437-4715",
		Telescope:     "pks",
		State:         models.StateIntensity,
		Nbin:          256,
		Nchan:         4,
		Nsubint:       2,
		Period:        0.005757,
		Epoch:         models.NewMJD(60000, 0),
		SubintSeconds: 60,
		CentreFreq:    1400,
		Bandwidth:     256,
		Centre:        0.5,
		Width:         0.05,
		Baseline:      10,
		Noise:         0.02,
		ZapChan:       -1,
		Seed:          1,
	}
}

// stokesFractions scales the total-intensity pulse into Q, U and V.
var stokesFractions = [4]float64{1, 0.3, 0.2, 0.1}

// Generate builds the observation described by cfg.
func Generate(cfg Config) (*models.Observation, error) {
	if cfg.Nbin < 8 || cfg.Nchan < 1 || cfg.Nsubint < 1 {
		return nil, fmt.Errorf("synth: need nbin >= 8, nchan >= 1, nsubint >= 1")
	}
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("synth: width must be positive")
	}
	if cfg.State != models.StateIntensity && cfg.State != models.StateStokes {
		return nil, fmt.Errorf("synth: unsupported state %s", cfg.State)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	kappa := 1 / (cfg.Width * cfg.Width)
	npol := cfg.State.NPol()

	pulse := make([]float64, cfg.Nbin)
	for i := range pulse {
		x := float64(i)/float64(cfg.Nbin) - cfg.Centre - cfg.Shift
		pulse[i] = math.Exp(kappa * (math.Cos(2*math.Pi*x) - 1))
	}

	obs := &models.Observation{
		Path:      cfg.Path,
		Source:    cfg.Source,
		Telescope: cfg.Telescope,
		State:     cfg.State,
		History:   []string{fmt.Sprintf("synthetic seed=%d shift=%.4f", cfg.Seed, cfg.Shift)},
	}
	chanWidth := cfg.Bandwidth / float64(cfg.Nchan)
	for isub := 0; isub < cfg.Nsubint; isub++ {
		sub := &models.Integration{
			Epoch:       cfg.Epoch.AddSeconds(float64(isub) * cfg.SubintSeconds),
			Duration:    cfg.SubintSeconds,
			Period:      cfg.Period,
			Frequencies: make([]float64, cfg.Nchan),
			Profiles:    make([][]*models.Profile, npol),
		}
		for ichan := range sub.Frequencies {
			sub.Frequencies[ichan] = cfg.CentreFreq - cfg.Bandwidth/2 + (float64(ichan)+0.5)*chanWidth
		}
		for ipol := 0; ipol < npol; ipol++ {
			sub.Profiles[ipol] = make([]*models.Profile, cfg.Nchan)
			for ichan := 0; ichan < cfg.Nchan; ichan++ {
				prof := models.NewProfile(cfg.Nbin)
				if ichan == cfg.ZapChan {
					prof.Weight = 0
				}
				base := 0.0
				if ipol == 0 {
					base = cfg.Baseline
				}
				for i := range prof.Amps {
					prof.Amps[i] = base + stokesFractions[ipol]*pulse[i] + cfg.Noise*rng.NormFloat64()
				}
				sub.Profiles[ipol][ichan] = prof
			}
		}
		obs.Subints = append(obs.Subints, sub)
	}
	return obs, nil
}
