package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/autotoa/internal/config"
	"github.com/miradorstack/autotoa/internal/engine"
	"github.com/miradorstack/autotoa/internal/metrics"
	"github.com/miradorstack/autotoa/internal/repo"
	"github.com/miradorstack/autotoa/internal/services"
	"github.com/miradorstack/autotoa/internal/utils"
)

type cliFlags struct {
	configPath  string
	verbose     bool
	jsonLogs    bool
	metafile    string
	fscrunch    bool
	tscrunch    bool
	invariant   bool
	iterations  int
	harmonics   int
	template    string
	gaussWidth  float64
	toaOut      string
	templateOut string
	plotOut     string
	metricsAddr string
}

func main() {
	os.Exit(run())
}

func run() int {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&f.verbose, "v", false, "Verbose (debug) logging")
	flag.BoolVar(&f.jsonLogs, "json", false, "Emit JSON logs")
	flag.StringVar(&f.metafile, "M", "", "Metafile listing observation paths")
	flag.BoolVar(&f.fscrunch, "F", false, "Fscrunch observations before fitting")
	flag.BoolVar(&f.tscrunch, "T", false, "Tscrunch observations before fitting")
	flag.BoolVar(&f.invariant, "I", false, "Use the invariant interval")
	flag.IntVar(&f.iterations, "i", config.DefaultMaxIterations, "Maximum number of iterations")
	flag.IntVar(&f.harmonics, "n", config.DefaultHarmonics, "Maximum number of harmonics to fit")
	flag.StringVar(&f.template, "s", "", "Initial template file")
	flag.Float64Var(&f.gaussWidth, "g", 0, "Width (turns) of an analytic initial template")
	flag.StringVar(&f.toaOut, "t", "", "TOA output (.tim, or .db/.sqlite for SQLite)")
	flag.StringVar(&f.templateOut, "S", "", "Final template output")
	flag.StringVar(&f.plotOut, "plot", "", "Template plot output (png, svg, pdf)")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "Address for the Prometheus /metrics listener")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] archive...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", f.configPath), slog.Any("error", err))
		return 1
	}
	applyFlags(cfg, &f)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	if cfg.Input.Metafile != "" && (len(flag.Args()) > 0 || len(cfg.Input.Files) > 0) {
		logger.Warn("metafile given, ignoring other input files",
			slog.String("metafile", cfg.Input.Metafile),
			slog.Int("ignored_args", len(flag.Args())),
			slog.Int("ignored_config", len(cfg.Input.Files)))
	}
	files, err := inputFiles(cfg, flag.Args())
	if err != nil {
		logger.Error("failed to expand inputs", slog.Any("error", err))
		return 1
	}
	if len(files) == 0 {
		logger.Error("no observation files given")
		flag.Usage()
		return 1
	}
	if !cfg.HasOutputs() {
		logger.Warn("no TOA or template output configured, results will not be saved")
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Metrics.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Metrics.Address))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
			}
		}()
	}

	refiner := engine.NewRefiner(logger, repo.NewArchiveStore(), nil, nil, engine.OptionsFromConfig(cfg))
	service := services.NewTimingService(logger, refiner, nil, nil, nil, cfg)

	code := 0
	if _, err := service.Run(ctx, files); err != nil {
		logger.Error("autotoa failed", slog.Bool("fatal", utils.IsFatal(err)), slog.Any("error", err))
		code = 1
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Metrics.ShutdownTimeout)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}
	return code
}

// applyFlags lets explicitly set flags override file and environment values.
func applyFlags(cfg *config.Config, f *cliFlags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "v":
			if f.verbose {
				cfg.Logging.Level = "debug"
			}
		case "json":
			cfg.Logging.JSON = f.jsonLogs
		case "M":
			cfg.Input.Metafile = f.metafile
		case "F":
			cfg.Refine.Fscrunch = f.fscrunch
		case "T":
			cfg.Refine.Tscrunch = f.tscrunch
		case "I":
			cfg.Refine.InvariantInterval = f.invariant
		case "i":
			cfg.Refine.MaxIterations = f.iterations
		case "n":
			cfg.Refine.Harmonics = f.harmonics
		case "s":
			cfg.Template.Path = f.template
		case "g":
			cfg.Template.GaussWidth = f.gaussWidth
		case "t":
			cfg.Output.TOAs = f.toaOut
		case "S":
			cfg.Output.Template = f.templateOut
		case "plot":
			cfg.Output.Plot = f.plotOut
		case "metrics-addr":
			cfg.Metrics.Address = f.metricsAddr
		}
	})
}

// inputFiles returns the observation paths to process. A metafile replaces
// every other source; otherwise the config file list and the command line
// patterns are expanded in that order.
func inputFiles(cfg *config.Config, args []string) ([]string, error) {
	if cfg.Input.Metafile != "" {
		return repo.ReadMetafile(cfg.Input.Metafile)
	}
	patterns := append(append([]string(nil), cfg.Input.Files...), args...)
	return repo.ExpandPatterns(patterns)
}
