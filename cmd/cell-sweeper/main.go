package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"runtime"
	"time"

	"cell-sweeper/internal/config"
	"cell-sweeper/internal/detection"
	"cell-sweeper/internal/display"
	"cell-sweeper/internal/logger"
	"cell-sweeper/internal/models"
	"cell-sweeper/internal/navigation"
	"cell-sweeper/internal/overview"
	"cell-sweeper/internal/scanner"
	"cell-sweeper/internal/shutdown"
	"cell-sweeper/internal/slide"
	"cell-sweeper/internal/tiles"
)

const (
	AppName    = "Cell Sweeper"
	AppVersion = "1.0.0"
)

// highgui must stay on the main OS thread.
func init() {
	runtime.LockOSThread()
}

type flags struct {
	configPath   string
	slidePath    string
	tileEdge     int
	overviewLvl  int
	pollInterval time.Duration
	logLevel     string
	logJSON      bool
	manual       bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to a JSON config file")
	flag.StringVar(&f.slidePath, "slide", "", "slide image to scan (overrides config)")
	flag.IntVar(&f.tileEdge, "tile", 0, "tile edge in base pixels (overrides config)")
	flag.IntVar(&f.overviewLvl, "overview-level", -1, "pyramid level of the overview (overrides config)")
	flag.DurationVar(&f.pollInterval, "poll", 0, "input poll interval (overrides config)")
	flag.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flag.BoolVar(&f.logJSON, "log-json", false, "write JSON logs instead of console output")
	flag.BoolVar(&f.manual, "manual", false, "start with auto-advance off")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s %s\n\nUsage: %s [flags] [slide]\n\n", AppName, AppVersion, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if f.slidePath == "" && flag.NArg() > 0 {
		f.slidePath = flag.Arg(0)
	}
	return f
}

func (f flags) apply(cfg *config.Config) {
	if f.slidePath != "" {
		cfg.Slide.Path = f.slidePath
	}
	if f.tileEdge > 0 {
		cfg.Scan.TileEdge = f.tileEdge
	}
	if f.overviewLvl >= 0 {
		cfg.Scan.OverviewLevel = f.overviewLvl
	}
	if f.pollInterval > 0 {
		cfg.Scan.PollInterval = config.Duration(f.pollInterval)
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logJSON {
		cfg.Logging.JSON = true
	}
	if f.manual {
		cfg.Scan.AutoAdvance = false
	}
}

func newLogger(cfg config.LoggingConfig) logger.Logger {
	level := logger.LevelFromEnv(logger.ParseLevel(cfg.Level))
	if cfg.JSON {
		return logger.NewZerolog(os.Stderr, level)
	}
	return logger.NewConsoleLogger(level)
}

func main() {
	f := parseFlags()

	cfg, err := config.LoadFromFile(f.configPath)
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration invalid: %v", err)
	}

	appLogger := newLogger(cfg.Logging)
	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Main", err, nil)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	log.Info("Main", "application starting", map[string]interface{}{
		"version":    AppVersion,
		"go_version": runtime.Version(),
		"slide":      cfg.Slide.Path,
	})

	params, err := cfg.Detector.Params()
	if err != nil {
		return err
	}

	shutdownManager := shutdown.NewManager(log)
	shutdownManager.Listen()
	defer shutdownManager.Shutdown()

	var region image.Rectangle
	if cfg.Slide.RegionW > 0 && cfg.Slide.RegionH > 0 {
		region = image.Rect(cfg.Slide.RegionX, cfg.Slide.RegionY,
			cfg.Slide.RegionX+cfg.Slide.RegionW, cfg.Slide.RegionY+cfg.Slide.RegionH)
	}

	source, err := slide.Open(cfg.Slide.Path, slide.Options{
		Bounds:       region,
		CacheRegions: cfg.Slide.CacheRegions,
	}, log)
	if err != nil {
		return err
	}
	shutdownManager.Register("slide", shutdown.Func(func() { source.Close() }))

	if cfg.Scan.OverviewLevel >= source.LevelCount() {
		return fmt.Errorf("overview level %d exceeds slide levels %d", cfg.Scan.OverviewLevel, source.LevelCount())
	}

	grid, err := tiles.NewGrid(source.Bounds(), cfg.Scan.TileEdge)
	if err != nil {
		return err
	}

	nav, err := navigation.New(grid.Count(), cfg.Scan.AutoAdvance)
	if err != nil {
		return err
	}

	compositor, err := overview.NewCompositor(source, grid, cfg.Scan.OverviewLevel, log)
	if err != nil {
		return err
	}
	shutdownManager.Register("overview", shutdown.Func(compositor.Close))

	pipeline := detection.NewPipeline(log)

	windows := display.Open(params, log)
	defer windows.Close()

	session, err := scanner.NewSession(scanner.Components{
		Grid:      grid,
		Navigator: nav,
		Config:    models.NewDetectorConfiguration(params),
		Source:    source,
		Detector:  pipeline,
		Overview:  compositor,
		Sink:      windows,
	}, scanner.Options{
		Keys: scanner.KeyMap{
			Quit:     cfg.Keys.Quit,
			Backward: cfg.Keys.Backward,
			Forward:  cfg.Keys.Forward,
		},
		PollInterval: time.Duration(cfg.Scan.PollInterval),
	}, log)
	if err != nil {
		return err
	}

	summary, err := session.Run(shutdownManager.Context())
	log.Debug("Main", "detection stage timings", pipeline.Timings().Averages())
	if err != nil {
		return err
	}

	fmt.Printf("Visited %d tiles (%d evaluated, %d blank skipped), %d candidates, ended: %s\n",
		summary.TilesVisited, summary.TilesEvaluated, summary.TilesBlank, summary.TotalCandidates, summary.Reason)
	return nil
}
