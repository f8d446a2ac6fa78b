package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/wxkingstar/SpecFusion/internal/api"
	"github.com/wxkingstar/SpecFusion/internal/config"
	"github.com/wxkingstar/SpecFusion/internal/search"
	"github.com/wxkingstar/SpecFusion/internal/storage"
	"github.com/wxkingstar/SpecFusion/internal/tokenizer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search and retrieval server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdio")
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "specfusion version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Server.AdminToken == "dev-token" {
		printWarning("ADMIN_TOKEN is the development default; override it in production")
	}

	// Load the segmenter dictionary up front so the first query does not
	// pay the initialization cost.
	if err := tokenizer.Init(cfg.Search.UserDictPath); err != nil {
		return fmt.Errorf("initializing tokenizer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	engine := search.NewEngine(store)
	handler := api.NewHandler(api.Deps{
		Store:  store,
		Engine: engine,
		Token:  cfg.Server.AdminToken,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Engine: engine})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "specfusion listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
