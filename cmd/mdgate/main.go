package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wudi/mdgate/config"
	"github.com/wudi/mdgate/internal/logging"
	"github.com/wudi/mdgate/internal/server"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/mdgate.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	watch := flag.Bool("watch", false, "Reload the pipeline when the config file changes")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mdgate %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("starting mdgate",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("listen", cfg.Server.Listen),
	)

	srv, err := server.New(cfg, nil)
	if err != nil {
		logging.Error("failed to create server", zap.Error(err))
		os.Exit(1)
	}

	if *watch {
		watcher, err := config.NewWatcher(*configPath)
		if err != nil {
			logging.Error("failed to create config watcher", zap.Error(err))
			os.Exit(1)
		}
		watcher.OnChange(srv.Reload)
		if err := watcher.Start(); err != nil {
			logging.Error("failed to start config watcher", zap.Error(err))
			os.Exit(1)
		}
		defer watcher.Stop()
	}

	if err := srv.Run(); err != nil {
		logging.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
