package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/autotoa/internal/models"
)

func TestGenerateShape(t *testing.T) {
	cfg := Defaults()
	cfg.State = models.StateStokes
	cfg.Nsubint = 3
	cfg.ZapChan = 1

	obs, err := Generate(cfg)
	require.NoError(t, err)
	require.NoError(t, obs.Validate())

	assert.Equal(t, 3, obs.NSubint())
	assert.Equal(t, 4, obs.NPol())
	assert.Equal(t, cfg.Nchan, obs.NChan())
	assert.Equal(t, cfg.Nbin, obs.NBin())
	assert.Zero(t, obs.Subints[0].Profile(0, 1).Weight)
	assert.Equal(t, 1.0, obs.Subints[0].Profile(0, 0).Weight)
	assert.InDelta(t, 120.0, obs.Subints[2].Epoch.Sub(obs.Subints[0].Epoch), 1e-6)
	assert.InDelta(t, 1304.0, obs.Subints[0].Frequency(0), 1e-9)
}

func TestGeneratePulsePlacement(t *testing.T) {
	cfg := Defaults()
	cfg.Noise = 0
	cfg.Baseline = 0
	cfg.Shift = 0.25
	cfg.Nchan = 1
	cfg.Nsubint = 1

	obs, err := Generate(cfg)
	require.NoError(t, err)
	amps := obs.Subints[0].Profile(0, 0).Amps
	peak := 0
	for i, v := range amps {
		if v > amps[peak] {
			peak = i
		}
	}
	// Centre 0.5 plus shift 0.25 puts the peak three quarters of the way in.
	assert.Equal(t, cfg.Nbin*3/4, peak)
	assert.InDelta(t, 1.0, amps[peak], 1e-12)
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Width = 0
	_, err := Generate(cfg)
	assert.Error(t, err)

	cfg = Defaults()
	cfg.State = models.StatePPQQ
	_, err = Generate(cfg)
	assert.Error(t, err)
}
