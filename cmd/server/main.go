package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Terminal.BaseDir, "base-dir", cfg.Terminal.BaseDir, "Root directory for per-owner terminal directories")
	flag.StringVar(&cfg.Terminal.PolicyFile, "policy", cfg.Terminal.PolicyFile, "Command policy file (.yaml or .toml)")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.BoolVar(&cfg.Audit.Enabled, "audit", cfg.Audit.Enabled, "Record submitted commands")
	flag.BoolVar(&cfg.Terminal.DisableInteractive, "no-interactive", cfg.Terminal.DisableInteractive, "Run every session in fallback mode")
	flag.Parse()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}
