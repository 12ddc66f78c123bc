package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/client"
	"github.com/lkarthik76/ddnd/internal/config"
	"github.com/lkarthik76/ddnd/internal/logger"
)

// Version is set during the build process
var version string

func main() {
	flags := config.ParseFlags()

	cfg, configPath, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if version != "" {
		log.Info("Starting ddnd", zap.String("version", version))
	} else {
		log.Info("Starting ddnd development version")
	}
	if configPath != "" {
		log.Info("Loaded configuration", zap.String("path", configPath))
	}

	companion, err := client.NewCompanion(cfg, configPath, version, log)
	if err != nil {
		log.Fatal("Failed to create companion", zap.Error(err))
	}

	if err := companion.Start(); err != nil {
		log.Fatal("Failed to start companion", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Shutting down", zap.String("signal", sig.String()))

	companion.Stop()
}
