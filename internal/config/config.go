package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxIterations matches the reference tool's iteration budget.
	DefaultMaxIterations = 25
	// DefaultHarmonics is the configured harmonic cap before the nbin/4 limit.
	DefaultHarmonics = 256
	// DefaultSNRCutoff is the minimum fit SNR accepted into sums and TOAs.
	DefaultSNRCutoff = 1.0
)

// Config captures everything a refinement run needs.
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Refine   RefineConfig   `yaml:"refine"`
	Template TemplateConfig `yaml:"template"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InputConfig lists the observations to process.
type InputConfig struct {
	Metafile string   `yaml:"metafile"`
	Files    []string `yaml:"files"`
}

// RefineConfig controls preprocessing and the refinement loop.
type RefineConfig struct {
	MaxIterations     int     `yaml:"maxIterations"`
	Harmonics         int     `yaml:"harmonics"`
	SNRCutoff         float64 `yaml:"snrCutoff"`
	Fscrunch          bool    `yaml:"fscrunch"`
	Tscrunch          bool    `yaml:"tscrunch"`
	InvariantInterval bool    `yaml:"invariantInterval"`
}

// TemplateConfig selects how the initial template is built.
type TemplateConfig struct {
	Path       string  `yaml:"path"`
	GaussWidth float64 `yaml:"gaussWidth"`
}

// OutputConfig names the run's artifacts. Empty means "do not write".
type OutputConfig struct {
	TOAs     string `yaml:"toas"`
	Template string `yaml:"template"`
	Plot     string `yaml:"plot"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AUTOTOA_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Default returns the reference tool's defaults.
func Default() Config {
	return Config{
		Refine: RefineConfig{
			MaxIterations: DefaultMaxIterations,
			Harmonics:     DefaultHarmonics,
			SNRCutoff:     DefaultSNRCutoff,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Metrics: MetricsConfig{ShutdownTimeout: 5 * time.Second},
	}
}

// Validate rejects settings the run cannot honour.
func (c *Config) Validate() error {
	var errs []error
	if c.Refine.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("refine.maxIterations must be >= 1, got %d", c.Refine.MaxIterations))
	}
	if c.Refine.Harmonics < 1 {
		errs = append(errs, fmt.Errorf("refine.harmonics must be >= 1, got %d", c.Refine.Harmonics))
	}
	if c.Refine.SNRCutoff < 0 {
		errs = append(errs, fmt.Errorf("refine.snrCutoff must be >= 0, got %g", c.Refine.SNRCutoff))
	}
	if c.Template.GaussWidth < 0 {
		errs = append(errs, fmt.Errorf("template.gaussWidth must be >= 0, got %g", c.Template.GaussWidth))
	}
	return errors.Join(errs...)
}

// HasOutputs reports whether the run will write TOAs or a template.
func (c *Config) HasOutputs() bool {
	return c.Output.TOAs != "" || c.Output.Template != ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTOTOA_METAFILE"); v != "" {
		cfg.Input.Metafile = v
	}
	if v := os.Getenv("AUTOTOA_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Refine.MaxIterations = n
		}
	}
	if v := os.Getenv("AUTOTOA_HARMONICS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Refine.Harmonics = n
		}
	}
	if v := os.Getenv("AUTOTOA_SNR_CUTOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Refine.SNRCutoff = f
		}
	}
	if v := os.Getenv("AUTOTOA_FSCRUNCH"); v != "" {
		cfg.Refine.Fscrunch = truthy(v)
	}
	if v := os.Getenv("AUTOTOA_TSCRUNCH"); v != "" {
		cfg.Refine.Tscrunch = truthy(v)
	}
	if v := os.Getenv("AUTOTOA_INVARIANT"); v != "" {
		cfg.Refine.InvariantInterval = truthy(v)
	}
	if v := os.Getenv("AUTOTOA_TEMPLATE"); v != "" {
		cfg.Template.Path = v
	}
	if v := os.Getenv("AUTOTOA_GAUSS_WIDTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Template.GaussWidth = f
		}
	}
	if v := os.Getenv("AUTOTOA_TOA_OUTPUT"); v != "" {
		cfg.Output.TOAs = v
	}
	if v := os.Getenv("AUTOTOA_TEMPLATE_OUTPUT"); v != "" {
		cfg.Output.Template = v
	}
	if v := os.Getenv("AUTOTOA_PLOT_OUTPUT"); v != "" {
		cfg.Output.Plot = v
	}
	if v := os.Getenv("AUTOTOA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AUTOTOA_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("AUTOTOA_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
}

func truthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
