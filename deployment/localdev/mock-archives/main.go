package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/miradorstack/autotoa/internal/models"
	"github.com/miradorstack/autotoa/internal/repo"
	"github.com/miradorstack/autotoa/internal/synth"
)

func main() {
	cfg := synth.Defaults()
	var (
		outDir string
		count  int
		jitter float64
		state  string
		zap    bool
	)
	flag.StringVar(&outDir, "out", "mock-archives", "Output directory")
	flag.IntVar(&count, "count", 8, "Number of observations to generate")
	flag.Float64Var(&jitter, "jitter", 0.02, "Maximum random phase offset per file (turns)")
	flag.StringVar(&state, "state", string(cfg.State), "Polarization state: Intensity or Stokes")
	flag.BoolVar(&zap, "zap", false, "Give the last channel zero weight")
	flag.IntVar(&cfg.Nbin, "nbin", cfg.Nbin, "Phase bins")
	flag.IntVar(&cfg.Nchan, "nchan", cfg.Nchan, "Frequency channels")
	flag.IntVar(&cfg.Nsubint, "nsub", cfg.Nsubint, "Sub-integrations per file")
	flag.Float64Var(&cfg.Width, "width", cfg.Width, "Pulse width (turns)")
	flag.Float64Var(&cfg.Noise, "noise", cfg.Noise, "Gaussian noise sigma")
	flag.Uint64Var(&cfg.Seed, "seed", 42, "Random seed")
	flag.Parse()

	pol, err := models.ParsePolState(state)
	if err != nil {
		log.Fatalf("state: %v", err)
	}
	cfg.State = pol
	if zap {
		cfg.ZapChan = cfg.Nchan - 1
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	store := repo.NewArchiveStore()
	paths := make([]string, 0, count)
	start := cfg.Epoch
	for i := 0; i < count; i++ {
		obs := cfg
		obs.Path = filepath.Join(outDir, fmt.Sprintf("obs-%03d.json", i))
		obs.Shift = jitter * (2*rng.Float64() - 1)
		obs.Seed = cfg.Seed + uint64(i) + 1
		obs.Epoch = start.AddSeconds(float64(i) * 86400)

		archive, err := synth.Generate(obs)
		if err != nil {
			log.Fatalf("generate %s: %v", obs.Path, err)
		}
		if err := store.Save(context.Background(), obs.Path, archive); err != nil {
			log.Fatalf("save %s: %v", obs.Path, err)
		}
		paths = append(paths, obs.Path)
	}

	metafile := filepath.Join(outDir, "files.txt")
	if err := os.WriteFile(metafile, []byte(strings.Join(paths, "\n")+"\n"), 0o644); err != nil {
		log.Fatalf("write metafile: %v", err)
	}
	log.Printf("wrote %d observations and %s", len(paths), metafile)
}
