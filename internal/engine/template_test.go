package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/miradorstack/autotoa/internal/models"
	"github.com/miradorstack/autotoa/internal/utils"
)

func stokesObs(path string, nchan int) *models.Observation {
	sub := &models.Integration{
		Epoch:       models.NewMJD(60000, 0),
		Duration:    30,
		Period:      0.005,
		Frequencies: make([]float64, nchan),
		Profiles:    make([][]*models.Profile, 4),
	}
	for ipol := range sub.Profiles {
		sub.Profiles[ipol] = make([]*models.Profile, nchan)
		for ichan := range sub.Profiles[ipol] {
			amps := delta(testNbin, 5)
			scale := 1.0 / float64(ipol+1)
			for i := range amps {
				amps[i] *= scale
			}
			sub.Profiles[ipol][ichan] = &models.Profile{Amps: amps, Weight: 1}
		}
	}
	return &models.Observation{
		Path:    path,
		Source:  "J1713+0747",
		State:   models.StateStokes,
		Subints: []*models.Integration{sub},
	}
}

func TestBuildInitialTemplateAnalytic(t *testing.T) {
	loader := newFakeLoader()
	loader.add("first.json", func() *models.Observation {
		return intensityObs("first.json", models.NewMJD(60000, 0), 10,
			&models.Profile{Amps: delta(testNbin, 0), Weight: 1},
			&models.Profile{Amps: delta(testNbin, 0), Weight: 1},
		)
	})
	smoother := &offsetSmoother{}
	opts := testOptions()
	opts.GaussWidth = 0.1
	opts.TemplatePath = "ignored.json"
	refiner := NewRefiner(utils.DiscardLogger(), loader, newFakeFitter(), smoother, opts)

	tmpl, err := refiner.BuildInitialTemplate(context.Background(), NewWorkingSet([]string{"first.json"}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tmpl.Nbin() != testNbin || tmpl.NPol() != 1 || tmpl.State != models.StateIntensity {
		t.Fatalf("unexpected template shape nbin=%d npol=%d state=%s", tmpl.Nbin(), tmpl.NPol(), tmpl.State)
	}
	amps := tmpl.Reference().Amps
	if math.Abs(amps[testNbin/2]-1) > 1e-12 {
		t.Fatalf("expected unit peak at centre, got %v", amps[testNbin/2])
	}
	kappa := 1 / (0.1 * 0.1)
	for i, v := range amps {
		want := math.Exp(kappa * (math.Cos(2*math.Pi*(float64(i)/testNbin-0.5)) - 1))
		if math.Abs(v-want) > 1e-12 {
			t.Fatalf("bin %d: expected %v, got %v", i, want, v)
		}
	}
	if loader.loads["ignored.json"] != 0 {
		t.Fatalf("template file should not be read when an analytic width is set")
	}
	if smoother.derived != 1 {
		t.Fatalf("expected the reference polarization to be smoothed once, got %d", smoother.derived)
	}
}

func TestBuildInitialTemplateFromFile(t *testing.T) {
	loader := newFakeLoader()
	loader.add("tmpl.json", func() *models.Observation { return stokesObs("tmpl.json", 3) })
	opts := testOptions()
	opts.TemplatePath = "tmpl.json"
	refiner := NewRefiner(utils.DiscardLogger(), loader, newFakeFitter(), &offsetSmoother{}, opts)

	tmpl, err := refiner.BuildInitialTemplate(context.Background(), NewWorkingSet([]string{"obs.json"}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tmpl.State != models.StateStokes || tmpl.NPol() != 4 {
		t.Fatalf("expected a four-pol Stokes template, got %s with %d pols", tmpl.State, tmpl.NPol())
	}
	if got := tmpl.Profiles[1].Amps[5]; math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("expected scrunched Q peak 0.5, got %v", got)
	}
}

func TestBuildInitialTemplateInvariantNeedsFullPolarization(t *testing.T) {
	loader := newFakeLoader()
	loader.add("tmpl.json", func() *models.Observation {
		return intensityObs("tmpl.json", models.NewMJD(60000, 0), 10, &models.Profile{Amps: delta(testNbin, 0), Weight: 1})
	})
	opts := testOptions()
	opts.TemplatePath = "tmpl.json"
	opts.InvariantInterval = true
	refiner := NewRefiner(utils.DiscardLogger(), loader, newFakeFitter(), &offsetSmoother{}, opts)

	_, err := refiner.BuildInitialTemplate(context.Background(), NewWorkingSet([]string{"obs.json"}))
	if err == nil || !utils.IsFatal(err) {
		t.Fatalf("expected fatal conversion error, got %v", err)
	}
}

func TestBuildInitialTemplateFailures(t *testing.T) {
	refiner := NewRefiner(utils.DiscardLogger(), newFakeLoader(), newFakeFitter(), &offsetSmoother{}, testOptions())
	_, err := refiner.BuildInitialTemplate(context.Background(), NewWorkingSet([]string{"obs.json"}))
	if !errors.Is(err, ErrNoInitialTemplate) || !utils.IsFatal(err) {
		t.Fatalf("expected fatal ErrNoInitialTemplate, got %v", err)
	}

	opts := testOptions()
	opts.TemplatePath = "missing.json"
	refiner = NewRefiner(utils.DiscardLogger(), newFakeLoader(), newFakeFitter(), &offsetSmoother{}, opts)
	if _, err := refiner.BuildInitialTemplate(context.Background(), NewWorkingSet([]string{"obs.json"})); !utils.IsFatal(err) {
		t.Fatalf("expected fatal load error, got %v", err)
	}

	opts = testOptions()
	opts.GaussWidth = 0.05
	refiner = NewRefiner(utils.DiscardLogger(), newFakeLoader(), newFakeFitter(), &offsetSmoother{}, opts)
	if _, err := refiner.BuildInitialTemplate(context.Background(), NewWorkingSet(nil)); !errors.Is(err, ErrEmptyWorkingSet) {
		t.Fatalf("expected ErrEmptyWorkingSet, got %v", err)
	}
}

func TestWorkingSetRetain(t *testing.T) {
	ws := NewWorkingSet([]string{"a", "b", "a", "c"})
	snapshot := ws.Files()
	snapshot[0] = "mutated"

	removed := ws.Retain(func(i int, _ string) bool { return i != 2 })
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	got := ws.Files()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected membership %v", got)
	}
	if first, ok := ws.First(); !ok || first != "a" {
		t.Fatalf("unexpected first file %q", first)
	}
}
