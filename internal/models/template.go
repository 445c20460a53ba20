package models

import "fmt"

// Template is the evolving reference pulse shape: one profile per
// polarization, all with the same nbin.
type Template struct {
	Source    string
	Telescope string
	State     PolState
	Period    float64
	Frequency float64
	Epoch     MJD
	Duration  float64
	Profiles  []*Profile
}

// TemplateFromObservation lifts a fully scrunched observation (one subint,
// one channel) into a Template. The profiles are copied.
func TemplateFromObservation(obs *Observation) (*Template, error) {
	if obs.NSubint() != 1 || obs.NChan() != 1 {
		return nil, fmt.Errorf("template needs 1 subint and 1 channel, have %d and %d", obs.NSubint(), obs.NChan())
	}
	sub := obs.Subints[0]
	t := &Template{
		Source:    obs.Source,
		Telescope: obs.Telescope,
		State:     obs.State,
		Period:    sub.Period,
		Frequency: sub.Frequency(0),
		Epoch:     sub.Epoch,
		Duration:  sub.Duration,
		Profiles:  make([]*Profile, sub.NPol()),
	}
	for ipol := range t.Profiles {
		t.Profiles[ipol] = sub.Profiles[ipol][0].Clone()
	}
	if t.Nbin() == 0 {
		return nil, fmt.Errorf("template has no phase bins")
	}
	return t, nil
}

// Nbin returns the number of phase bins.
func (t *Template) Nbin() int {
	if len(t.Profiles) == 0 {
		return 0
	}
	return t.Profiles[0].Nbin()
}

// NPol returns the number of polarization profiles.
func (t *Template) NPol() int {
	return len(t.Profiles)
}

// Reference returns the profile that observations are fit against.
func (t *Template) Reference() *Profile {
	return t.Profiles[0]
}

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	out := *t
	out.Profiles = make([]*Profile, len(t.Profiles))
	for i, p := range t.Profiles {
		out.Profiles[i] = p.Clone()
	}
	return &out
}

// Observation wraps the template as a single-subint, single-channel archive.
func (t *Template) Observation(path string) *Observation {
	sub := &Integration{
		Epoch:       t.Epoch,
		Duration:    t.Duration,
		Period:      t.Period,
		Frequencies: []float64{t.Frequency},
		Profiles:    make([][]*Profile, len(t.Profiles)),
	}
	for ipol, p := range t.Profiles {
		sub.Profiles[ipol] = []*Profile{p.Clone()}
	}
	return &Observation{
		Path:      path,
		Source:    t.Source,
		Telescope: t.Telescope,
		State:     t.State,
		Subints:   []*Integration{sub},
	}
}
