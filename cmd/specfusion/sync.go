package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/adapter/sources"
	"github.com/wxkingstar/SpecFusion/internal/config"
	"github.com/wxkingstar/SpecFusion/internal/storage"
	"github.com/wxkingstar/SpecFusion/internal/syncer"
)

// openAPIConfig is the sources.config blob for dynamically registered
// OpenAPI sources.
type openAPIConfig struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	SpecURL string `json:"spec_url"`
}

var syncCmd = &cobra.Command{
	Use:   "sync [source]",
	Short: "Sync one source (or --all) into the document store",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		incremental, _ := cmd.Flags().GetBool("incremental")
		limit, _ := cmd.Flags().GetInt("limit")
		apiURL, _ := cmd.Flags().GetString("api-url")
		adminToken, _ := cmd.Flags().GetString("admin-token")

		if !all && len(args) != 1 {
			return fmt.Errorf("either a source id or --all is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if apiURL == "" {
			apiURL = cfg.Sync.APIURL
		}
		if adminToken == "" {
			adminToken = cfg.Sync.AdminToken
		}

		logLevel := slog.LevelInfo
		if strings.EqualFold(cfg.Log.Level, "debug") {
			logLevel = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

		store, err := storage.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		registry := sources.Builtin()
		if err := registerStoredOpenAPISources(store, registry); err != nil {
			return err
		}

		var ids []string
		if all {
			ids = registry.IDs()
		} else {
			ids = args
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner := syncer.NewRunner(store, syncer.NewClient(apiURL, adminToken))
		runner.Incremental = incremental
		runner.Limit = limit

		failed := false
		for _, id := range ids {
			if err := syncOne(ctx, store, registry, runner, cfg, id); err != nil {
				printError("%s: %v", id, err)
				failed = true
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if failed {
			return fmt.Errorf("one or more sources finished with errors")
		}
		return nil
	},
}

func syncOne(ctx context.Context, store *storage.Store, registry *adapter.Registry, runner *syncer.Runner, cfg config.Config, id string) error {
	opts := adapter.Options{
		WecomCookies: cfg.Sync.WecomCookies,
		PDDCookie:    cfg.Sync.PDDCookie,
		PDDJSONPath:  cfg.Sync.PDDJSONPath,
	}
	if oc, ok := storedOpenAPIConfig(store, id); ok {
		opts.DisplayName = oc.Name
		opts.SpecURL = oc.SpecURL
	}

	a, err := registry.New(id, opts)
	if err != nil {
		return err
	}

	result, err := runner.SyncSource(ctx, a)
	if err != nil {
		return err
	}

	printSuccess("%s: %d created, %d updated, %d unchanged, %d errors",
		id, result.Counts.Created, result.Counts.Updated, result.Counts.Unchanged, result.Errors)
	if result.Errors > 0 {
		return fmt.Errorf("%d documents failed", result.Errors)
	}
	return nil
}

// registerStoredOpenAPISources rebinds OpenAPI sources declared in earlier
// add-openapi runs.
func registerStoredOpenAPISources(store *storage.Store, registry *adapter.Registry) error {
	srcs, err := store.GetSources()
	if err != nil {
		return err
	}
	for _, src := range srcs {
		var oc openAPIConfig
		if src.Config == "" || json.Unmarshal([]byte(src.Config), &oc) != nil {
			continue
		}
		if oc.Type == "openapi" {
			sources.RegisterOpenAPI(registry, src.ID)
		}
	}
	return nil
}

func storedOpenAPIConfig(store *storage.Store, id string) (openAPIConfig, bool) {
	src, err := store.GetSource(id)
	if err != nil || src.Config == "" {
		return openAPIConfig{}, false
	}
	var oc openAPIConfig
	if json.Unmarshal([]byte(src.Config), &oc) != nil || oc.Type != "openapi" {
		return openAPIConfig{}, false
	}
	return oc, true
}

var listSourcesCmd = &cobra.Command{
	Use:   "list-sources",
	Short: "List registered sources and their document counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		builtin := sources.Builtin().IDs()
		synced := map[string]storage.Source{}
		srcs, err := store.GetSources()
		if err != nil {
			return err
		}
		for _, src := range srcs {
			synced[src.ID] = src
		}

		for _, id := range builtin {
			if src, ok := synced[id]; ok {
				printStatus(id, "%d docs, last synced %s", src.DocCount, formatSyncTime(src))
				delete(synced, id)
			} else {
				printStatus(id, "never synced")
			}
		}
		for id, src := range synced {
			printStatus(id, "%d docs, last synced %s (openapi)", src.DocCount, formatSyncTime(src))
		}
		return nil
	},
}

func formatSyncTime(src storage.Source) string {
	if src.LastSynced.IsZero() {
		return "never"
	}
	return src.LastSynced.Format("2006-01-02 15:04")
}

var addOpenAPICmd = &cobra.Command{
	Use:   "add-openapi <id>",
	Short: "Register an OpenAPI specification URL as a documentation source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		name, _ := cmd.Flags().GetString("name")
		specURL, _ := cmd.Flags().GetString("spec-url")
		runSync, _ := cmd.Flags().GetBool("sync")

		if name == "" || specURL == "" {
			return fmt.Errorf("--name and --spec-url are required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		if err := store.UpsertSource(id, name, specURL); err != nil {
			return err
		}
		cfgBlob, err := json.Marshal(openAPIConfig{Type: "openapi", Name: name, SpecURL: specURL})
		if err != nil {
			return err
		}
		if err := store.SetSourceConfig(id, string(cfgBlob)); err != nil {
			return err
		}
		printSuccess("registered OpenAPI source %s (%s)", id, specURL)

		if !runSync {
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		registry := sources.Builtin()
		sources.RegisterOpenAPI(registry, id)
		runner := syncer.NewRunner(store, syncer.NewClient(cfg.Sync.APIURL, cfg.Sync.AdminToken))
		return syncOne(ctx, store, registry, runner, cfg, id)
	},
}

func init() {
	syncCmd.Flags().Bool("all", false, "sync every registered source")
	syncCmd.Flags().Bool("incremental", false, "ask the adapter for changes of the last 7 days (built-in adapters return the full catalog; the quality gate is skipped)")
	syncCmd.Flags().Int("limit", 0, "truncate the catalog to N entries (debug aid)")
	syncCmd.Flags().String("api-url", "", "admin API base URL (default from SPECFUSION_API_URL)")
	syncCmd.Flags().String("admin-token", "", "admin bearer token (default from ADMIN_TOKEN)")

	addOpenAPICmd.Flags().String("name", "", "display name for the source")
	addOpenAPICmd.Flags().String("spec-url", "", "URL of the OpenAPI/Swagger specification")
	addOpenAPICmd.Flags().Bool("sync", false, "sync immediately after registering")
}
