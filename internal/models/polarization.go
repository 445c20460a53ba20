package models

import (
	"fmt"
	"math"
	"strings"
)

// PolState names the polarization representation held by an observation.
type PolState string

const (
	// StateIntensity holds total intensity only.
	StateIntensity PolState = "Intensity"
	// StatePPQQ holds the two orthogonal feed powers AA, BB.
	StatePPQQ PolState = "PPQQ"
	// StateCoherence holds AA, BB, Re(AB*), Im(AB*).
	StateCoherence PolState = "Coherence"
	// StateStokes holds I, Q, U, V.
	StateStokes PolState = "Stokes"
	// StateInvariant holds the Lorentz-invariant interval sqrt(I²-Q²-U²-V²).
	StateInvariant PolState = "Invariant"
)

// NPol returns the number of polarization profiles the state carries.
func (s PolState) NPol() int {
	switch s {
	case StatePPQQ:
		return 2
	case StateCoherence, StateStokes:
		return 4
	default:
		return 1
	}
}

// ParsePolState accepts the canonical names case-insensitively.
func ParsePolState(value string) (PolState, error) {
	for _, s := range []PolState{StateIntensity, StatePPQQ, StateCoherence, StateStokes, StateInvariant} {
		if strings.EqualFold(value, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown polarization state %q", value)
}

// convertCell maps one channel's per-pol profiles from state `from` to state `to`.
func convertCell(from, to PolState, pols []*Profile) ([]*Profile, error) {
	if from == to {
		return pols, nil
	}
	if len(pols) != from.NPol() {
		return nil, fmt.Errorf("state %s expects %d pols, have %d", from, from.NPol(), len(pols))
	}
	switch to {
	case StateIntensity:
		switch from {
		case StateStokes, StateInvariant:
			return pols[:1], nil
		case StatePPQQ, StateCoherence:
			total := pols[0].Clone()
			if err := total.Sum(pols[1]); err != nil {
				return nil, err
			}
			return []*Profile{total}, nil
		}
	case StateStokes:
		if from == StateCoherence {
			return coherenceToStokes(pols), nil
		}
	case StateInvariant:
		switch from {
		case StateStokes:
			return []*Profile{invariantInterval(pols)}, nil
		case StateCoherence:
			return []*Profile{invariantInterval(coherenceToStokes(pols))}, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %s to %s", from, to)
}

func coherenceToStokes(pols []*Profile) []*Profile {
	aa, bb, re, im := pols[0], pols[1], pols[2], pols[3]
	nbin := aa.Nbin()
	stokes := make([]*Profile, 4)
	for i := range stokes {
		stokes[i] = &Profile{Amps: make([]float64, nbin), Weight: aa.Weight}
	}
	for b := 0; b < nbin; b++ {
		stokes[0].Amps[b] = aa.Amps[b] + bb.Amps[b]
		stokes[1].Amps[b] = aa.Amps[b] - bb.Amps[b]
		stokes[2].Amps[b] = 2 * re.Amps[b]
		stokes[3].Amps[b] = 2 * im.Amps[b]
	}
	return stokes
}

func invariantInterval(stokes []*Profile) *Profile {
	nbin := stokes[0].Nbin()
	out := &Profile{Amps: make([]float64, nbin), Weight: stokes[0].Weight}
	for b := 0; b < nbin; b++ {
		i, q, u, v := stokes[0].Amps[b], stokes[1].Amps[b], stokes[2].Amps[b], stokes[3].Amps[b]
		out.Amps[b] = math.Sqrt(math.Max(0, i*i-q*q-u*u-v*v))
	}
	return out
}
