// Package syncer orchestrates one or many source syncs: catalog walk,
// bounded-concurrency content fetching, batched bulk upserts, progress
// reporting and quality gating.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const (
	defaultConcurrency = 6
	batchSize          = 50
	incrementalWindow  = 7 * 24 * time.Hour
)

// Result summarizes one source run.
type Result struct {
	SourceID string
	Counts   storage.SyncCounts
	Errors   int
}

// Runner drives sync runs. It holds the store for sync-log bookkeeping and
// the admin client for document submission; browser-bound adapters fetch
// with effective concurrency 1 regardless of the pool size.
type Runner struct {
	store  *storage.Store
	client *Client
	logger *slog.Logger

	// Concurrency bounds the content-fetch pool; 0 means the default 6.
	Concurrency int
	// Incremental takes the catalog from DetectUpdates with a seven-day
	// cutoff instead of FetchCatalog, and skips the quality gate. Every
	// built-in adapter returns its full catalog from DetectUpdates.
	Incremental bool
	// Limit truncates the catalog (debug aid); 0 means no truncation.
	Limit int
}

func NewRunner(store *storage.Store, client *Client) *Runner {
	return &Runner{
		store:  store,
		client: client,
		logger: slog.Default(),
	}
}

// SyncSource runs one source end to end. Per-document failures are logged
// and counted; gate rejections and catalog failures are fatal for the run
// and recorded on the sync log.
func (r *Runner) SyncSource(ctx context.Context, a adapter.Adapter) (Result, error) {
	sourceID := a.SourceID()
	result := Result{SourceID: sourceID}

	logID, err := r.store.CreateSyncLog(sourceID)
	if err != nil {
		return result, err
	}

	counts, errCount, err := r.run(ctx, a)
	result.Counts = counts
	result.Errors = errCount
	if err != nil {
		if logErr := r.store.UpdateSyncLog(logID, "failed", counts, err.Error()); logErr != nil {
			r.logger.Error("updating sync log failed", "source", sourceID, "error", logErr)
		}
		return result, err
	}

	if err := r.store.UpdateSyncLog(logID, "success", counts, ""); err != nil {
		return result, err
	}
	if err := r.store.UpdateSourceSyncTime(sourceID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("updating source sync time failed", "source", sourceID, "error", err)
	}

	r.logger.Info("sync finished",
		"source", sourceID,
		"created", counts.Created, "updated", counts.Updated,
		"unchanged", counts.Unchanged, "errors", errCount)
	return result, nil
}

func (r *Runner) run(ctx context.Context, a adapter.Adapter) (storage.SyncCounts, int, error) {
	var counts storage.SyncCounts
	sourceID := a.SourceID()

	var entries []adapter.DocEntry
	var err error
	if r.Incremental {
		entries, err = a.DetectUpdates(ctx, time.Now().Add(-incrementalWindow))
	} else {
		entries, err = a.FetchCatalog(ctx)
	}
	if err != nil {
		return counts, 0, fmt.Errorf("fetching catalog for %s: %w", sourceID, err)
	}

	// The gate compares against the last cached document count; a
	// rejection aborts before any write or deletion can happen.
	lastCount := 0
	if src, err := r.store.GetSource(sourceID); err == nil {
		lastCount = src.DocCount
	}
	if !r.Incremental {
		if err := a.CheckQualityGate(len(entries), lastCount); err != nil {
			return counts, 0, err
		}
	}

	if r.Limit > 0 && len(entries) > r.Limit {
		entries = entries[:r.Limit]
	}
	total := len(entries)
	if total == 0 {
		return counts, 0, nil
	}

	progressStep := total / 10
	if progressStep < 100 {
		progressStep = 100
	}

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var mu sync.Mutex
	var buffer []DocPayload
	var errCount, processed int

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		batch := buffer
		buffer = nil
		res, err := r.client.BulkUpsert(ctx, sourceID, a.SourceName(), batch)
		if err != nil {
			// The whole batch counts as errors; the run continues.
			r.logger.Error("bulk upsert failed", "source", sourceID, "batch", len(batch), "error", err)
			errCount += len(batch)
			return
		}
		counts.Created += res.Created
		counts.Updated += res.Updated
		counts.Unchanged += res.Unchanged
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			payload, err := r.buildPayload(gCtx, a, entry)

			mu.Lock()
			defer mu.Unlock()
			processed++
			if processed%progressStep == 0 {
				r.logger.Info("sync progress", "source", sourceID, "processed", processed, "total", total)
			}
			if err != nil {
				r.logger.Warn("document fetch failed", "source", sourceID, "path", entry.Path, "error", err)
				errCount++
				return nil
			}
			buffer = append(buffer, payload)
			if len(buffer) >= batchSize {
				flush()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return counts, errCount, err
	}

	mu.Lock()
	flush()
	mu.Unlock()

	return counts, errCount, nil
}

// buildPayload fetches one document and merges content-derived fields over
// the catalog entry.
func (r *Runner) buildPayload(ctx context.Context, a adapter.Adapter, entry adapter.DocEntry) (DocPayload, error) {
	content, err := a.FetchContent(ctx, entry)
	if err != nil {
		return DocPayload{}, err
	}

	apiPath := content.APIPath
	if apiPath == "" {
		apiPath = entry.APIPath
	}

	lastUpdated := ""
	if !entry.LastUpdated.IsZero() {
		lastUpdated = entry.LastUpdated.UTC().Format(time.RFC3339)
	}
	if v, ok := content.Metadata["last_updated"]; ok && lastUpdated == "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			lastUpdated = t.UTC().Format(time.RFC3339)
		}
	}

	metadata := ""
	if len(content.Metadata) > 0 {
		if data, err := json.Marshal(content.Metadata); err == nil {
			metadata = string(data)
		}
	}

	payload := DocPayload{
		Path:        entry.Path,
		Title:       entry.Title,
		APIPath:     apiPath,
		DevMode:     entry.DevMode,
		DocType:     entry.DocType,
		Content:     content.Markdown,
		SourceURL:   entry.SourceURL,
		Metadata:    metadata,
		LastUpdated: lastUpdated,
	}
	for _, ec := range content.ErrorCodes {
		payload.ErrorCodes = append(payload.ErrorCodes, ErrorPayload{
			Code:        ec.Code,
			Message:     ec.Message,
			Description: ec.Description,
		})
	}
	return payload, nil
}
