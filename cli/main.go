package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kardianos/service"

	"github.com/bond/tokenash/cli/internal/output"
	"github.com/bond/tokenash/internal/aggregator"
	"github.com/bond/tokenash/internal/chart"
	"github.com/bond/tokenash/internal/config"
	"github.com/bond/tokenash/internal/logger"
	"github.com/bond/tokenash/internal/provider"
	"github.com/bond/tokenash/internal/publish"
	"github.com/bond/tokenash/internal/store"
	"github.com/bond/tokenash/internal/summary"
)

const version = "0.3.0"

func main() {
	// Detect subcommand first
	command := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "run", "preview", "service", "version":
			command = args[0]
			args = args[1:]
		}
	}

	switch command {
	case "version":
		fmt.Printf("tokenash version %s\n", version)
	case "preview":
		runPreview(args)
	case "service":
		runService(args)
	default:
		runPipeline(args)
	}
}

// pipelineFlags are shared by run and preview.
type pipelineFlags struct {
	configPath string
	storePath  string
	window     int
	dryRun     bool
	strict     bool
}

func addPipelineFlags(fs *flag.FlagSet, f *pipelineFlags) {
	fs.StringVar(&f.configPath, "config", "config.yaml", "Path to config file")
	fs.StringVar(&f.storePath, "store", "", "Override usage store path")
	fs.IntVar(&f.window, "window", 0, "Rollup window in days (default: chart.days from config)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Fetch and merge without saving or publishing")
	fs.BoolVar(&f.strict, "strict", false, "Exit 2 when any provider fails")
}

func loadConfig(f pipelineFlags) *config.Config {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if f.storePath != "" {
		cfg.StorePath = f.storePath
	}
	if f.window > 0 {
		cfg.Chart.Days = f.window
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func buildAdapters(cfg *config.Config) ([]provider.Adapter, *time.Location) {
	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var adapters []provider.Adapter
	for _, name := range cfg.EnabledProviders() {
		key := cfg.Providers[name].APIKey
		switch name {
		case "openai":
			adapters = append(adapters, provider.NewOpenAI(key, loc))
		case "anthropic":
			adapters = append(adapters, provider.NewAnthropic(key, loc))
		}
	}
	return adapters, loc
}

func runPipeline(args []string) {
	fs := flag.NewFlagSet("tokenash", flag.ExitOnError)
	var f pipelineFlags
	addPipelineFlags(fs, &f)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tokenash - multi-provider token usage tracker

Usage: tokenash [command] [options]

Commands:
  run       Fetch usage, update the store and publish the chart (default)
  preview   Render the current store as a terminal graph (no fetch)
  service   Manage the background service
  version   Show version

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tokenash                     Fetch, merge and publish
  tokenash run --dry-run       Fetch and merge without saving
  tokenash run --strict        Fail the process when a provider fails
  tokenash preview --window 14
  tokenash service install --interval 12h
`)
	}
	fs.Parse(args)

	cfg := loadConfig(f)
	defer logger.Sync()
	adapters, loc := buildAdapters(cfg)
	if len(adapters) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no providers enabled. Set providers in config.yaml or OPENAI_API_KEY / ANTHROPIC_API_KEY.")
		os.Exit(1)
	}

	agg := aggregator.New(store.New(cfg.StorePath), adapters, aggregator.Options{
		FetchDays:    cfg.FetchDays,
		FetchTimeout: cfg.FetchTimeout,
		DryRun:       f.dryRun,
		Location:     loc,
	})

	result, state, err := agg.Run(context.Background(), time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	output.PrintRunSummary(result)

	view := summary.Rollup(state, cfg.Chart.Days, time.Now(), loc)
	output.PrintRollup(view)

	if !f.dryRun {
		if err := publishChart(cfg, view); err != nil {
			fmt.Fprintf(os.Stderr, "Error publishing chart: %v\n", err)
			os.Exit(1)
		}
	}

	if f.strict && result.PartialFailure() {
		os.Exit(2)
	}
}

func publishChart(cfg *config.Config, view summary.RollupView) error {
	gen := chart.NewGenerator(cfg.Chart.Title, cfg.Chart.Width, cfg.Chart.Height)
	snippet, err := gen.Markdown(view)
	if err != nil {
		return err
	}
	pub := publish.New(cfg.Github.ReadmePath)
	pub.StartMarker = cfg.Github.SectionStart
	pub.EndMarker = cfg.Github.SectionEnd
	return pub.Update(snippet)
}

func runPreview(args []string) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	var f pipelineFlags
	addPipelineFlags(fs, &f)
	width := fs.Int("width", 60, "Graph width in characters")
	fs.Parse(args)

	cfg := loadConfig(f)
	defer logger.Sync()
	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	state, err := store.New(cfg.StorePath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading store: %v\n", err)
		os.Exit(1)
	}

	view := summary.Rollup(state, cfg.Chart.Days, time.Now(), loc)
	fmt.Print(chart.AsciiPreview(view, *width))
	output.PrintRollup(view)
}

// pipelineService implements service.Interface for scheduled runs.
type pipelineService struct {
	configPath string
	interval   time.Duration
	stop       chan struct{}
	logger     service.Logger
}

func (s *pipelineService) Start(svc service.Service) error {
	s.stop = make(chan struct{})
	go s.run()
	return nil
}

func (s *pipelineService) Stop(svc service.Service) error {
	close(s.stop)
	return nil
}

func (s *pipelineService) run() {
	// Run immediately on start, then on the ticker.
	s.doRun()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.doRun()
		case <-s.stop:
			return
		}
	}
}

func (s *pipelineService) doRun() {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error loading config: %v", err)
		}
		return
	}
	adapters, loc := buildAdapters(cfg)
	if len(adapters) == 0 {
		if s.logger != nil {
			s.logger.Error("No providers enabled.")
		}
		return
	}

	agg := aggregator.New(store.New(cfg.StorePath), adapters, aggregator.Options{
		FetchDays:    cfg.FetchDays,
		FetchTimeout: cfg.FetchTimeout,
		Location:     loc,
	})

	result, state, err := agg.Run(context.Background(), time.Now())
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("Run failed: %v", err)
		}
		return
	}

	view := summary.Rollup(state, cfg.Chart.Days, time.Now(), loc)
	if err := publishChart(cfg, view); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error publishing chart: %v", err)
		}
		return
	}

	if s.logger != nil {
		s.logger.Infof("Run %s: %d inserted, %d overwritten, %d failures",
			result.RunID, result.Report.Inserted, result.Report.Overwritten, len(result.Failures))
	}
}

func runService(args []string) {
	fs := flag.NewFlagSet("service", flag.ExitOnError)
	var (
		configPath string
		interval   time.Duration
	)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to config file")
	fs.DurationVar(&interval, "interval", 24*time.Hour, "Run interval for service mode (e.g., 24h, 12h)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokenash service [command] [options]

Commands:
  install     Install as a background service
  start       Start the background service
  stop        Stop the background service
  uninstall   Remove the background service
  status      Show service status

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tokenash service install             Install (runs every 24h)
  tokenash service install --interval 12h
  tokenash service status
`)
	}

	// Check for service commands before parsing flags
	var svcCommand string
	if len(args) > 0 {
		switch args[0] {
		case "install", "start", "stop", "uninstall", "status", "run":
			svcCommand = args[0]
			args = args[1:]
		}
	}

	fs.Parse(args)

	svcConfig := &service.Config{
		Name:        "tokenash",
		DisplayName: "tokenash Usage Tracker",
		Description: "Periodically aggregates API token usage and updates the README chart",
		Arguments:   []string{"service", "run", fmt.Sprintf("--interval=%s", interval), fmt.Sprintf("--config=%s", configPath)},
	}

	svc := &pipelineService{configPath: configPath, interval: interval}
	s, err := service.New(svc, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch svcCommand {
	case "install":
		if _, err := config.Load(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		if err := s.Start(); err != nil {
			log.Fatalf("Service installed but failed to start: %v", err)
		}
		fmt.Println("Service installed and started.")
		fmt.Printf("Run interval: %s\n", interval)

	case "start":
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started.")

	case "stop":
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped.")

	case "uninstall":
		s.Stop() // ignore error
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled.")

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
			return
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Service status: running")
		case service.StatusStopped:
			fmt.Println("Service status: stopped")
		default:
			fmt.Println("Service status: unknown")
		}

	case "run":
		// Internal command used by the installed service.
		svcLogger, err := s.Logger(nil)
		if err == nil {
			svc.logger = svcLogger
		}
		if err := s.Run(); err != nil {
			log.Fatalf("Service run failed: %v", err)
		}

	default:
		fs.Usage()
	}
}
