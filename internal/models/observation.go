package models

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Integration is one sub-integration: an epoch, a duration and a
// (pol, chan) grid of profiles.
type Integration struct {
	Epoch       MJD
	Duration    float64
	Period      float64
	Frequencies []float64
	Profiles    [][]*Profile
}

// NPol returns the number of polarizations.
func (s *Integration) NPol() int {
	return len(s.Profiles)
}

// NChan returns the number of frequency channels.
func (s *Integration) NChan() int {
	if len(s.Profiles) == 0 {
		return 0
	}
	return len(s.Profiles[0])
}

// Profile returns the profile for (ipol, ichan).
func (s *Integration) Profile(ipol, ichan int) *Profile {
	return s.Profiles[ipol][ichan]
}

// Frequency returns the centre frequency of ichan in MHz, or 0 when unknown.
func (s *Integration) Frequency(ichan int) float64 {
	if ichan < len(s.Frequencies) {
		return s.Frequencies[ichan]
	}
	return 0
}

// Observation is a loaded archive: metadata plus sub-integrations.
type Observation struct {
	Path      string
	Source    string
	Telescope string
	State     PolState
	History   []string
	Subints   []*Integration
}

// NSubint returns the number of sub-integrations.
func (o *Observation) NSubint() int {
	return len(o.Subints)
}

// NPol returns the number of polarizations in the first sub-integration.
func (o *Observation) NPol() int {
	if len(o.Subints) == 0 {
		return 0
	}
	return o.Subints[0].NPol()
}

// NChan returns the number of channels in the first sub-integration.
func (o *Observation) NChan() int {
	if len(o.Subints) == 0 {
		return 0
	}
	return o.Subints[0].NChan()
}

// NBin returns the profile length, or 0 for an empty observation.
func (o *Observation) NBin() int {
	if o.NPol() == 0 || o.NChan() == 0 {
		return 0
	}
	return o.Subints[0].Profiles[0][0].Nbin()
}

// Validate checks that every cell has the same shape.
func (o *Observation) Validate() error {
	if len(o.Subints) == 0 {
		return fmt.Errorf("observation %s has no sub-integrations", o.Path)
	}
	npol, nchan, nbin := o.NPol(), o.NChan(), o.NBin()
	if npol != o.State.NPol() {
		return fmt.Errorf("observation %s: state %s expects %d pols, have %d", o.Path, o.State, o.State.NPol(), npol)
	}
	if nchan == 0 || nbin == 0 {
		return fmt.Errorf("observation %s: empty profile grid", o.Path)
	}
	for isub, sub := range o.Subints {
		if sub.NPol() != npol || sub.NChan() != nchan {
			return fmt.Errorf("observation %s: subint %d shape %dx%d, want %dx%d", o.Path, isub, sub.NPol(), sub.NChan(), npol, nchan)
		}
		for ipol := range sub.Profiles {
			for ichan, prof := range sub.Profiles[ipol] {
				if prof == nil || prof.Nbin() != nbin {
					return fmt.Errorf("observation %s: subint %d pol %d chan %d has bad nbin", o.Path, isub, ipol, ichan)
				}
			}
		}
	}
	return nil
}

// Fscrunch collapses every sub-integration to a single weighted-mean channel.
func (o *Observation) Fscrunch() {
	for _, sub := range o.Subints {
		nchan := sub.NChan()
		if nchan <= 1 {
			continue
		}
		freq, freqWeight := 0.0, 0.0
		for ipol := range sub.Profiles {
			merged := weightedMean(sub.Profiles[ipol])
			if ipol == 0 {
				for ichan, prof := range sub.Profiles[ipol] {
					freq += prof.Weight * sub.Frequency(ichan)
					freqWeight += prof.Weight
				}
			}
			sub.Profiles[ipol] = []*Profile{merged}
		}
		if freqWeight > 0 {
			sub.Frequencies = []float64{freq / freqWeight}
		} else if len(sub.Frequencies) > 0 {
			sub.Frequencies = []float64{floats.Sum(sub.Frequencies) / float64(len(sub.Frequencies))}
		}
	}
}

// Tscrunch collapses all sub-integrations into one. The epoch becomes the
// duration-weighted mean epoch and the durations add.
func (o *Observation) Tscrunch() {
	if len(o.Subints) <= 1 {
		return
	}
	first := o.Subints[0]
	out := &Integration{
		Period:      first.Period,
		Frequencies: append([]float64(nil), first.Frequencies...),
		Profiles:    make([][]*Profile, first.NPol()),
	}
	offset, totalDur := 0.0, 0.0
	for _, sub := range o.Subints {
		offset += sub.Duration * sub.Epoch.Sub(first.Epoch)
		totalDur += sub.Duration
	}
	out.Duration = totalDur
	out.Epoch = first.Epoch
	if totalDur > 0 {
		out.Epoch = first.Epoch.AddSeconds(offset / totalDur)
	}
	for ipol := range out.Profiles {
		out.Profiles[ipol] = make([]*Profile, first.NChan())
		for ichan := range out.Profiles[ipol] {
			cells := make([]*Profile, 0, len(o.Subints))
			for _, sub := range o.Subints {
				cells = append(cells, sub.Profiles[ipol][ichan])
			}
			out.Profiles[ipol][ichan] = weightedMean(cells)
		}
	}
	o.Subints = []*Integration{out}
}

// RemoveBaseline subtracts, from every profile, its mean over the off-pulse
// window found on the corresponding total-intensity profile.
func (o *Observation) RemoveBaseline() {
	for _, sub := range o.Subints {
		for ichan := 0; ichan < sub.NChan(); ichan++ {
			window := o.intensity(sub, ichan).BaselineWindow()
			for ipol := range sub.Profiles {
				prof := sub.Profiles[ipol][ichan]
				prof.Offset(-prof.Baseline(window))
			}
		}
	}
}

func (o *Observation) intensity(sub *Integration, ichan int) *Profile {
	switch o.State {
	case StatePPQQ, StateCoherence:
		total := sub.Profiles[0][ichan].Clone()
		floats.Add(total.Amps, sub.Profiles[1][ichan].Amps)
		return total
	default:
		return sub.Profiles[0][ichan]
	}
}

// ConvertState rewrites every sub-integration into the target polarization state.
func (o *Observation) ConvertState(to PolState) error {
	if o.State == to {
		return nil
	}
	for isub, sub := range o.Subints {
		nchan := sub.NChan()
		converted := make([][]*Profile, to.NPol())
		for ipol := range converted {
			converted[ipol] = make([]*Profile, nchan)
		}
		for ichan := 0; ichan < nchan; ichan++ {
			cell := make([]*Profile, sub.NPol())
			for ipol := range cell {
				cell[ipol] = sub.Profiles[ipol][ichan]
			}
			out, err := convertCell(o.State, to, cell)
			if err != nil {
				return fmt.Errorf("subint %d chan %d: %w", isub, ichan, err)
			}
			for ipol := range out {
				converted[ipol][ichan] = out[ipol]
			}
		}
		sub.Profiles = converted
	}
	o.State = to
	return nil
}

// weightedMean returns sum(w*a)/sum(w) with the summed weight. Zero total
// weight yields a zeroed profile with zero weight.
func weightedMean(cells []*Profile) *Profile {
	nbin := cells[0].Nbin()
	out := &Profile{Amps: make([]float64, nbin)}
	for _, cell := range cells {
		if cell.Weight == 0 {
			continue
		}
		floats.AddScaled(out.Amps, cell.Weight, cell.Amps)
		out.Weight += cell.Weight
	}
	if out.Weight > 0 {
		floats.Scale(1/out.Weight, out.Amps)
	}
	return out
}
