package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/api"
	"github.com/wxkingstar/SpecFusion/internal/search"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const testToken = "sync-test-token"

type fakeAdapter struct {
	adapter.Gate
	entries    []adapter.DocEntry
	failPaths  map[string]bool
	gateReject bool
}

func (f *fakeAdapter) SourceID() string   { return "stub" }
func (f *fakeAdapter) SourceName() string { return "Stub Platform" }

func (f *fakeAdapter) FetchCatalog(ctx context.Context) ([]adapter.DocEntry, error) {
	return f.entries, nil
}

func (f *fakeAdapter) DetectUpdates(ctx context.Context, since time.Time) ([]adapter.DocEntry, error) {
	return f.entries, nil
}

func (f *fakeAdapter) FetchContent(ctx context.Context, entry adapter.DocEntry) (adapter.DocContent, error) {
	if f.failPaths[entry.Path] {
		return adapter.DocContent{}, errors.New("upstream exploded")
	}
	return adapter.DocContent{
		Markdown: "# " + entry.Title + "\n\n接口说明：" + entry.Path,
	}, nil
}

func (f *fakeAdapter) CheckQualityGate(current, last int) error {
	if f.gateReject {
		return fmt.Errorf("%w: forced rejection", adapter.ErrQualityGate)
	}
	return f.Gate.CheckQualityGate(current, last)
}

func newTestRunner(t *testing.T) (*Runner, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := api.NewHandler(api.Deps{
		Store:  store,
		Engine: search.NewEngine(store),
		Token:  testToken,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewRunner(store, NewClient(srv.URL, testToken)), store
}

func entriesN(n int) []adapter.DocEntry {
	entries := make([]adapter.DocEntry, n)
	for i := range entries {
		entries[i] = adapter.DocEntry{
			Path:  fmt.Sprintf("cat/doc-%03d", i),
			Title: fmt.Sprintf("文档 %d", i),
		}
	}
	return entries
}

func TestSyncSourceEndToEnd(t *testing.T) {
	runner, store := newTestRunner(t)

	// More than one batch to exercise the flush boundary.
	fa := &fakeAdapter{entries: entriesN(120)}

	result, err := runner.SyncSource(context.Background(), fa)
	if err != nil {
		t.Fatalf("SyncSource: %v", err)
	}
	if result.Counts.Created != 120 || result.Errors != 0 {
		t.Errorf("result = %+v", result)
	}

	docs, err := store.GetDocumentsBySource("stub")
	if err != nil {
		t.Fatalf("GetDocumentsBySource: %v", err)
	}
	if len(docs) != 120 {
		t.Errorf("stored docs = %d, want 120", len(docs))
	}

	last, err := store.LastSyncLog("stub")
	if err != nil {
		t.Fatalf("LastSyncLog: %v", err)
	}
	if last.Status != "success" || last.Counts.Created != 120 {
		t.Errorf("sync log = %+v", last)
	}

	src, err := store.GetSource("stub")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if src.Name != "Stub Platform" {
		t.Errorf("source name = %q", src.Name)
	}
	if src.LastSynced.IsZero() {
		t.Error("last_synced not stamped")
	}
}

func TestSyncSecondRunUnchanged(t *testing.T) {
	runner, _ := newTestRunner(t)
	fa := &fakeAdapter{entries: entriesN(10)}

	if _, err := runner.SyncSource(context.Background(), fa); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := runner.SyncSource(context.Background(), fa)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Counts.Unchanged != 10 || result.Counts.Created != 0 {
		t.Errorf("second run counts = %+v", result.Counts)
	}
}

func TestSyncCountsPerDocumentErrors(t *testing.T) {
	runner, store := newTestRunner(t)
	fa := &fakeAdapter{
		entries:   entriesN(10),
		failPaths: map[string]bool{"cat/doc-003": true, "cat/doc-007": true},
	}

	result, err := runner.SyncSource(context.Background(), fa)
	if err != nil {
		t.Fatalf("SyncSource: %v", err)
	}
	if result.Errors != 2 || result.Counts.Created != 8 {
		t.Errorf("result = %+v", result)
	}

	// The run still finishes as success with a nonzero error count.
	last, err := store.LastSyncLog("stub")
	if err != nil {
		t.Fatalf("LastSyncLog: %v", err)
	}
	if last.Status != "success" {
		t.Errorf("sync log status = %q", last.Status)
	}
}

func TestQualityGateRejectionIsFatal(t *testing.T) {
	runner, store := newTestRunner(t)

	// Establish a prior run so the gate has history to compare against.
	if _, err := runner.SyncSource(context.Background(), &fakeAdapter{entries: entriesN(10)}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	fa := &fakeAdapter{entries: entriesN(2)}
	_, err := runner.SyncSource(context.Background(), fa)
	if !errors.Is(err, adapter.ErrQualityGate) {
		t.Fatalf("err = %v, want ErrQualityGate", err)
	}

	last, lErr := store.LastSyncLog("stub")
	if lErr != nil {
		t.Fatalf("LastSyncLog: %v", lErr)
	}
	if last.Status != "failed" || !strings.Contains(last.Error, "quality gate") {
		t.Errorf("sync log = %+v", last)
	}

	// No deletions happened: the earlier documents are all still there.
	docs, _ := store.GetDocumentsBySource("stub")
	if len(docs) != 10 {
		t.Errorf("docs after rejected run = %d, want 10", len(docs))
	}
}

func TestLimitTruncatesCatalog(t *testing.T) {
	runner, store := newTestRunner(t)
	runner.Limit = 3

	if _, err := runner.SyncSource(context.Background(), &fakeAdapter{entries: entriesN(10)}); err != nil {
		t.Fatalf("SyncSource: %v", err)
	}
	docs, _ := store.GetDocumentsBySource("stub")
	if len(docs) != 3 {
		t.Errorf("docs = %d, want 3", len(docs))
	}
}
