// Package main is the entry point for the mod host.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/modhost/internal/config"
	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/events"
	"github.com/dshills/modhost/internal/logging"
	"github.com/dshills/modhost/internal/plugin"
	"github.com/dshills/modhost/internal/telemetry"
	"github.com/dshills/modhost/internal/watcher"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath string
	ModsDir    string
	LogLevel   string
	Watch      bool
	EnvFiles   []string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigPath, opts.EnvFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.ModsDir != "" {
		cfg.Mods.Dir = opts.ModsDir
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.Watch {
		cfg.Mods.Watch = true
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger := logging.New(logging.Config{Level: level, Output: os.Stderr, Prefix: cfg.Log.Prefix})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("tracing disabled: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown: %v", err)
		}
	}()

	// The bus picks up the global tracer provider, so tracing is set up first.
	bus := event.New(event.NewHostID(),
		event.WithLogger(logger.WithComponent("events").Lazy()),
		event.WithAsyncTimeout(cfg.Events.AsyncTimeout.Std()),
	)

	manager, err := plugin.NewManager(bus, plugin.ManagerConfig{
		Dir:          cfg.Mods.Dir,
		AutoActivate: cfg.Mods.AutoActivate,
		Disabled:     cfg.Mods.Disabled,
		MemoryLimit:  cfg.Mods.MemoryLimit,
		ExecTimeout:  cfg.Mods.ExecTimeout.Std(),
		CallLimit:    cfg.Mods.CallLimit,
		Config:       cfg.Mods.Config,
	}, plugin.WithManagerLogger(logger))
	if err != nil {
		logger.Error("create mod manager: %v", err)
		return 1
	}
	defer manager.Close()

	started := event.NewEmitter[*events.HostStarted]()
	stopping := event.NewEmitter[*events.HostStopping]()
	if _, err := event.RegisterSource[*events.HostStarted](bus, manager.Owner(), started); err != nil {
		logger.Error("register host source: %v", err)
		return 1
	}
	if _, err := event.RegisterSource[*events.HostStopping](bus, manager.Owner(), stopping); err != nil {
		logger.Error("register host source: %v", err)
		return 1
	}

	if err := manager.LoadAll(ctx); err != nil {
		logger.Warn("some mods failed to load: %v", err)
	}
	logger.Info("modhost %s started on %s with %d mods", version, bus.HostID(), manager.Count())
	started.Publish(ctx, &events.HostStarted{At: time.Now(), Mods: manager.Names()})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Mods.Watch {
		wcfg := watcher.DefaultConfig()
		wcfg.Debounce = cfg.Mods.Debounce.Std()
		wcfg.ReloadsPerMinute = cfg.Mods.ReloadsPerMinute

		w, err := watcher.New(bus, manager.Owner(), manager.Loader(), wcfg, watcher.WithLogger(logger))
		if err != nil {
			logger.Error("watch mods: %v", err)
		} else {
			defer w.Close()
			g.Go(func() error {
				return w.Run(gctx)
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	exit := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("%v", err)
		exit = 1
	}

	logger.Info("shutting down")
	stopping.Publish(context.Background(), &events.HostStopping{At: time.Now(), Reason: "signal"})

	if err := manager.UnloadAll(context.Background()); err != nil {
		logger.Warn("unload: %v", err)
	}
	_, _ = event.UnregisterSource[*events.HostStarted](bus, manager.Owner(), started)
	_, _ = event.UnregisterSource[*events.HostStopping](bus, manager.Owner(), stopping)

	stats := bus.Stats()
	logger.Debug("bus stats: %d dispatchers, %d handlers, %d sources", stats.Dispatchers, stats.Handlers, stats.Sources)
	return exit
}

func parseFlags() options {
	var opts options
	var envFile string
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (TOML or YAML)")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.ModsDir, "mods", "", "Mods directory (overrides config)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flag.BoolVar(&opts.Watch, "watch", false, "Reload mods when their files change")
	flag.StringVar(&envFile, "env", "", "Additional .env file to load")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "modhost - Lua mod host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: modhost [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  modhost                     Load mods from ./mods\n")
		fmt.Fprintf(os.Stderr, "  modhost -mods ~/mods -watch Load and hot-reload mods\n")
		fmt.Fprintf(os.Stderr, "  modhost -c modhost.toml     Use a config file\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("modhost %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if envFile != "" {
		opts.EnvFiles = []string{".env", envFile}
	}

	return opts
}
