package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/config"
	"github.com/marmos91/dittoserve/pkg/server"
)

const usage = `DittoServe - concurrent static file server

Usage:
  dittoserve <command> [flags]

Commands:
  init     Write a sample configuration file
  start    Start the server (default when only flags are given)
  help     Show this help

Run 'dittoserve <command> -h' for command flags.
`

func main() {
	args := os.Args[1:]
	command := "start"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "init":
		runInit(args)
	case "start":
		runStart(args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
}

// runInit writes a commented sample config file.
func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	configPath := fs.String("config", "", "Where to write the file (default: "+config.GetDefaultConfigPath()+")")
	_ = fs.Parse(args)

	path := *configPath
	var err error
	if path == "" {
		path, err = config.InitConfig(*force)
	} else {
		err = config.InitConfigToPath(path, *force)
	}
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration written to %s\n", path)
}

// runStart loads configuration, wires every component and serves until
// SIGINT or SIGTERM.
func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := fs.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(*logLevel)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("DittoServe - static file server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Metrics come first so the document root can register its collectors
	metricsResult := config.InitializeMetrics(cfg)
	metricsDone := make(chan error, 1)
	if metricsResult.Server != nil {
		go func() {
			metricsDone <- metricsResult.Server.Start(ctx)
		}()
	} else {
		close(metricsDone)
		logger.Info("Metrics collection disabled")
	}

	store, err := config.CreateDocumentStore(ctx, &cfg.DocRoot)
	if err != nil {
		log.Fatalf("Failed to create document root: %v", err)
	}
	logger.Info("Document root: %s", store.Name())

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTPMetrics)
	if err != nil {
		log.Fatalf("Failed to create adapters: %v", err)
	}

	srv := server.New(store)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			log.Fatalf("Failed to add %s adapter: %v", a.Protocol(), err)
		}
	}

	h := cfg.Adapters.HTTP
	logger.Info("HTTP configuration:")
	logger.Info("  Port: %d", h.Port)
	logger.Info("  Workers: %d", h.Workers)
	logger.Info("  Keep-alive timeout: %v", h.KeepAliveTimeout)
	logger.Info("  Gzip: %v (min size %d)", h.Gzip.Enabled, h.Gzip.MinSize)
	if h.RateLimit.Enabled {
		logger.Info("  Rate limit: %d requests per %v", h.RateLimit.MaxRequests, h.RateLimit.Interval)
	} else {
		logger.Info("  Rate limit: disabled")
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running on port %d. Press Ctrl+C to stop.", h.Port)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if err := <-serverDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Server shutdown error: %v", err)
			exitCode = 1
		} else {
			logger.Info("Server stopped gracefully")
		}

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			exitCode = 1
		} else {
			logger.Info("Server stopped")
		}
		cancel()
	}

	if err := <-metricsDone; err != nil {
		logger.Error("Metrics server error: %v", err)
	}

	os.Exit(exitCode)
}
