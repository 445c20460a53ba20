package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/miradorstack/autotoa/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// archiveDoc is the on-disk layout of an observation archive.
type archiveDoc struct {
	Source    string      `json:"source"`
	Telescope string      `json:"telescope"`
	State     string      `json:"state"`
	History   []string    `json:"history,omitempty"`
	Subints   []subintDoc `json:"subints"`
}

type subintDoc struct {
	Epoch       models.MJD    `json:"epoch"`
	Duration    float64       `json:"duration"`
	Period      float64       `json:"period"`
	Frequencies []float64     `json:"frequencies"`
	Weights     []float64     `json:"weights"`
	Data        [][][]float64 `json:"data"`
}

// ArchiveStore loads and saves observation archives as JSON documents.
type ArchiveStore struct{}

// NewArchiveStore constructs an ArchiveStore.
func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{}
}

// Load reads the archive at path. Every call reads from disk; nothing is cached.
func (s *ArchiveStore) Load(ctx context.Context, path string) (*models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("archive %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	var doc archiveDoc
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", path, err)
	}
	obs, err := doc.observation(path)
	if err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	return obs, nil
}

// Save writes obs to path atomically.
func (s *ArchiveStore) Save(ctx context.Context, path string, obs *models.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save archive: ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".archive-*.tmp")
	if err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(documentFor(obs)); err != nil {
		tmp.Close()
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	return nil
}

func (d *archiveDoc) observation(path string) (*models.Observation, error) {
	state, err := models.ParsePolState(d.State)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", path, err)
	}
	obs := &models.Observation{
		Path:      path,
		Source:    d.Source,
		Telescope: d.Telescope,
		State:     state,
		History:   d.History,
		Subints:   make([]*models.Integration, 0, len(d.Subints)),
	}
	for isub, sd := range d.Subints {
		sub := &models.Integration{
			Epoch:       sd.Epoch,
			Duration:    sd.Duration,
			Period:      sd.Period,
			Frequencies: sd.Frequencies,
			Profiles:    make([][]*models.Profile, len(sd.Data)),
		}
		for ipol, chans := range sd.Data {
			sub.Profiles[ipol] = make([]*models.Profile, len(chans))
			for ichan, amps := range chans {
				weight := 1.0
				if sd.Weights != nil {
					if ichan >= len(sd.Weights) {
						return nil, fmt.Errorf("archive %s: subint %d has %d weights for %d channels", path, isub, len(sd.Weights), len(chans))
					}
					weight = sd.Weights[ichan]
				}
				sub.Profiles[ipol][ichan] = &models.Profile{Amps: amps, Weight: weight}
			}
		}
		obs.Subints = append(obs.Subints, sub)
	}
	return obs, nil
}

func documentFor(obs *models.Observation) archiveDoc {
	doc := archiveDoc{
		Source:    obs.Source,
		Telescope: obs.Telescope,
		State:     string(obs.State),
		History:   obs.History,
		Subints:   make([]subintDoc, 0, len(obs.Subints)),
	}
	for _, sub := range obs.Subints {
		sd := subintDoc{
			Epoch:       sub.Epoch,
			Duration:    sub.Duration,
			Period:      sub.Period,
			Frequencies: sub.Frequencies,
			Weights:     make([]float64, sub.NChan()),
			Data:        make([][][]float64, sub.NPol()),
		}
		for ichan := range sd.Weights {
			sd.Weights[ichan] = sub.Profiles[0][ichan].Weight
		}
		for ipol := range sub.Profiles {
			sd.Data[ipol] = make([][]float64, len(sub.Profiles[ipol]))
			for ichan, prof := range sub.Profiles[ipol] {
				sd.Data[ipol][ichan] = prof.Amps
			}
		}
		doc.Subints = append(doc.Subints, sd)
	}
	return doc
}
