package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/driver"
	mcpserver "portalflow-engine/internal/mcp"
	"portalflow-engine/internal/pool"
	"portalflow-engine/internal/portal"
	"portalflow-engine/internal/recorder"
	"portalflow-engine/internal/workflow"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the portalflow config file")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// If we can't open log file, disable logging to avoid stderr pollution
			log.SetOutput(io.Discard)
		}
	}

	pages, shutdown, err := startLauncher(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to start browser backend: %v", err)
	}
	defer shutdown()

	var sink *recorder.Recorder
	if cfg.Traces.Enabled {
		sink, err = recorder.New(cfg.Traces.Dir)
		if err != nil {
			log.Fatalf("failed to initialize flight recorder: %v", err)
		}
		if err := sink.Start("boot"); err != nil {
			log.Printf("warning: flight recorder disabled: %v", err)
		}
		defer sink.Close()
	}

	auth := portal.NewAuthenticator(cfg.Portal, pages, nil)
	poolOpts := []pool.Option{pool.WithMaxSessions(cfg.Pool.MaxSessions)}
	engineOpts := []workflow.Option{workflow.WithSettleDelay(cfg.Portal.GetSettleTimeout() / 10)}
	if sink != nil {
		poolOpts = append(poolOpts, pool.WithEventSink(sink))
		engineOpts = append(engineOpts, workflow.WithEventSink(sink))
	}

	sessions := pool.New(auth, cfg.Pool.GetSessionTTL(), poolOpts...)
	defer sessions.CloseAll()
	if interval := cfg.Pool.GetSweepInterval(); interval > 0 {
		go sessions.RunSweeper(ctx, interval)
	}

	engine := workflow.NewEngine(engineOpts...)

	var serverOpts []mcpserver.Option
	if sink != nil {
		serverOpts = append(serverOpts, mcpserver.WithEventSink(sink))
	}
	server, err := mcpserver.NewServer(cfg, sessions, engine, serverOpts...)
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting portalflow MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting portalflow MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}

// startLauncher boots the configured browser backend and returns a page
// factory plus its shutdown hook.
func startLauncher(ctx context.Context, cfg config.Config) (portal.DriverFactory, func(), error) {
	switch cfg.Browser.Backend {
	case "playwright":
		l := driver.NewPlaywrightLauncher(cfg.Browser)
		if err := l.Start(); err != nil {
			return nil, nil, err
		}
		log.Printf("playwright backend started")
		return l, func() { _ = l.Shutdown() }, nil
	default:
		// The browser shares the process context; a per-boot timeout would
		// also cancel every later page operation.
		l := driver.NewRodLauncher(cfg.Browser)
		if err := l.Start(ctx); err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Shutdown() }, nil
	}
}
