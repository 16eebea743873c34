package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/pkg/config"
	"github.com/marmos91/dsserver/pkg/dsserver"
	"github.com/marmos91/dsserver/pkg/procmap"
	"github.com/marmos91/dsserver/pkg/server"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		os.Exit(runInit(os.Args[2:]))
	}
	os.Exit(run())
}

func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	path := fs.String("config", "", "Where to write the config (default: "+config.GetDefaultConfigPath()+")")
	_ = fs.Parse(args)

	var err error
	target := *path
	if target == "" {
		target, err = config.InitConfig(*force)
	} else {
		err = config.InitConfigToPath(target, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", target)
	return 0
}

func run() int {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	port := flag.Int("port", 0, "Override the listen port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := config.CreateBlobStore(ctx, &cfg.Store)
	if err != nil {
		logger.Error("Failed to create blob store: %v", err)
		return 1
	}
	logger.Info("Blob store: %s", cfg.Store.Type)

	var registry procmap.Registry
	if cfg.ProcMap.Enabled {
		registry, err = config.CreateProcessRegistry(ctx, &cfg.ProcMap)
		if err != nil {
			_ = store.Close()
			logger.Error("Failed to create process registry: %v", err)
			return 1
		}
		logger.Info("Process registry: %s (heartbeat %v, ttl %v)",
			cfg.ProcMap.Type, cfg.ProcMap.RegisterInterval, cfg.ProcMap.TTL)
	}

	runner, err := server.New(cfg, store, registry, config.InitializeMetrics(cfg))
	if err != nil {
		_ = store.Close()
		if registry != nil {
			_ = registry.Close()
		}
		logger.Error("Failed to create server: %v", err)
		return 1
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("Cleanup failed: %v", err)
		}
	}()

	err = runner.Run(ctx)
	code := dsserver.ExitCode(err)
	switch {
	case err == nil:
		logger.Info("Server stopped")
	case code == 0:
		logger.Info("Server exited: %v", err)
	default:
		logger.Error("Server exited: %v", err)
	}
	return code
}
