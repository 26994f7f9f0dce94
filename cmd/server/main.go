package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emgroup/sitesync/internal/app"
	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/config"
	"github.com/emgroup/sitesync/internal/mcp"
	"github.com/emgroup/sitesync/internal/transport"
	"github.com/emgroup/sitesync/internal/workspace"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Server.Transport == config.TransportStdio {
		logWriter = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	sessions := mcp.NewSessions(func(ctx context.Context, projectID string, who auth.Identity) (*workspace.Workspace, error) {
		return rt.OpenWorkspace(ctx, projectID, who)
	}, logger)
	defer sessions.Close()

	mcpServer := mcp.NewServer(mcp.Config{
		Sessions:       sessions,
		Directory:      rt.Directory,
		DefaultProject: cfg.Workspace.Project,
		DefaultEmail:   cfg.Auth.DefaultEmail,
		Version:        version,
		Logger:         logger,
	})

	if cfg.Server.Transport == config.TransportStdio {
		err = runStdioMode(ctx, logger, mcpServer)
	} else {
		err = runHTTPMode(ctx, logger, mcpServer, rt, cfg.Server.Host, cfg.Server.Port)
	}
	if err != nil {
		logger.Error("server error", "error", err)
		sessions.Close()
		rt.Close()
		os.Exit(1)
	}
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport")
	// Run blocks until stdin closes or ctx is canceled.
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server, rt *app.Runtime, host string, port int) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := transport.NewRouter(mcpHandler, rt.Uploads, transport.Options{
		FilesPrefix: rt.Config.Uploads.BaseURL,
		AccessKey:   rt.Config.Server.AccessKey,
		Logger:      logger,
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
