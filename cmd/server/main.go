package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/telegate/internal/api"
	"github.com/yegors/telegate/internal/config"
	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/gateway"
	"github.com/yegors/telegate/internal/mcp"
	"github.com/yegors/telegate/internal/session"
	"github.com/yegors/telegate/internal/storage/sqlite"
	"github.com/yegors/telegate/internal/telegram"
	"github.com/yegors/telegate/internal/telegram/memory"
	"github.com/yegors/telegate/internal/websocket"
	"github.com/yegors/telegate/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := pflag.StringP("config", "c", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	mcpStdio := pflag.Bool("mcp-stdio", false, "Also serve MCP tools over stdin/stdout; the process exits when stdin closes")
	showVersion := pflag.Bool("version", false, "Print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting telegate",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.String("backend", cfg.Telegram.Backend),
		logger.Bool("mcp_stdio", *mcpStdio),
	)

	if err := run(cfg, *mcpStdio, log); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("Server fully stopped")
}

func run(cfg *config.Config, mcpStdio bool, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live events hub; it receives pushed messages and session status changes
	wsServer := websocket.NewServer(log)

	up, err := newUpstream(cfg, wsServer, log)
	if err != nil {
		return err
	}
	defer up.close()

	manager := session.NewManager(up.dialer, up.cred, session.Config{
		MaxAttempts:       cfg.Session.MaxAttempts,
		BackoffBase:       cfg.Session.BackoffBase(),
		BackoffMax:        cfg.Session.BackoffMax(),
		KeepaliveInterval: cfg.Session.KeepaliveInterval(),
		CallTimeout:       cfg.Session.CallTimeout(),
	}, log)
	manager.OnStatusChange(wsServer.SessionStatus)
	defer func() {
		if err := manager.Close(); err != nil {
			log.Warn("Error closing session", logger.Error(err))
		}
	}()

	gw := gateway.New(manager, gateway.Config{
		DefaultPageSize: cfg.Gateway.DefaultPageSize,
		MaxPageSize:     cfg.Gateway.MaxPageSize,
		TokenTTL:        cfg.Gateway.PageTokenTTL(),
		MaxTokens:       cfg.Gateway.MaxPageTokens,
	}, log)

	mcpServer := mcp.NewServer(gw, manager, Version, log)
	var mcpHandler http.Handler
	if *cfg.MCP.HTTPEnabled {
		mcpHandler = mcpServer.Handler()
	}

	// Authenticate once up front. A rejected credential needs an operator, so
	// it stops the process; a network failure does not.
	if err := manager.Connect(ctx); err != nil {
		if domain.IsKind(err, domain.KindAuth) {
			return fmt.Errorf("session credential rejected: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("Initial connect failed, calls will reconnect on demand", logger.Error(err))
	}

	// Create API router
	router := api.NewRouter(gw, manager, wsServer, mcpHandler, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Version:            Version,
		StoredSessions:     up.records,
	}, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return wsServer.Run(gctx)
	})

	g.Go(func() error {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server on %s: %w", server.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		log.Info("HTTP server shutdown complete")
		return nil
	})

	// A blocked stdin read cannot be interrupted, so the stdio loop is not
	// part of the group. EOF on stdin ends the process.
	if mcpStdio {
		go func() {
			if err := mcpServer.Serve(gctx); err != nil {
				log.Error("MCP stdio transport failed", logger.Error(err))
			}
			log.Info("MCP stdin closed")
			stop()
		}()
	}

	return g.Wait()
}

// upstream is the configured backend plus what it opened. records is nil
// when nothing is persisted.
type upstream struct {
	dialer  session.Dialer
	cred    session.Credential
	records api.SessionRecords
	close   func()
}

func newUpstream(cfg *config.Config, sink domain.UpdateSink, log *logger.Logger) (*upstream, error) {
	if cfg.Telegram.Backend == config.BackendMemory {
		log.Warn("Using the in-memory demo account; nothing reaches Telegram")
		backend := memory.Demo()
		backend.SetSink(sink)
		return &upstream{dialer: backend, cred: memory.Credential(), close: func() {}}, nil
	}

	if dir := filepath.Dir(cfg.Telegram.SessionDB); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session database directory: %w", err)
		}
	}
	store, err := sqlite.NewSessionStorage(cfg.Telegram.SessionDB, log)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	log.Info("Using session database", logger.String("path", cfg.Telegram.SessionDB))

	dialer := telegram.NewDialer(store, log)
	dialer.SetSink(sink)

	return &upstream{
		dialer: dialer,
		cred: session.Credential{
			APIID:   cfg.Telegram.APIID,
			APIHash: cfg.Telegram.APIHash,
			Session: cfg.Telegram.SessionString,
		},
		records: store,
		close: func() {
			if err := store.Close(); err != nil {
				log.Warn("Error closing session database", logger.Error(err))
			}
		},
	}, nil
}
