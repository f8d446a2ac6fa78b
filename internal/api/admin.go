package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const maxBulkBodySize = 50 << 20 // bulk payloads from full-catalog syncs

// DocRequest is one document in an admin upsert.
type DocRequest struct {
	Source      string         `json:"source"`
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	APIPath     string         `json:"api_path"`
	DevMode     string         `json:"dev_mode"`
	DocType     string         `json:"doc_type"`
	Content     string         `json:"content"`
	SourceURL   string         `json:"source_url"`
	Metadata    string         `json:"metadata"`
	LastUpdated string         `json:"last_updated"`
	ErrorCodes  []ErrorRequest `json:"error_codes"`
}

type ErrorRequest struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

type bulkRequest struct {
	Source     string       `json:"source"`
	SourceName string       `json:"source_name"`
	Documents  []DocRequest `json:"documents"`
}

func (d DocRequest) toInput(source string) storage.DocumentInput {
	if d.Source == "" {
		d.Source = source
	}
	in := storage.DocumentInput{
		SourceID:  d.Source,
		Path:      d.Path,
		Title:     d.Title,
		APIPath:   d.APIPath,
		DevMode:   d.DevMode,
		DocType:   d.DocType,
		Content:   d.Content,
		SourceURL: d.SourceURL,
		Metadata:  d.Metadata,
	}
	if d.LastUpdated != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, d.LastUpdated); err == nil {
				in.LastUpdated = t.UTC()
				break
			}
		}
	}
	return in
}

func handleUpsert(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBulkBodySize)
		defer r.Body.Close()

		var req DocRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		action, id, err := deps.Store.UpsertDocument(req.toInput(req.Source))
		if errors.Is(err, storage.ErrInvalidInput) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "upserting document: %v", err)
			return
		}

		if err := upsertErrorCodes(deps.Store, req.Source, id, req.ErrorCodes); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "upserting error codes: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"doc_id": id, "action": action})
	}
}

func handleBulkUpsert(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBulkBodySize)
		defer r.Body.Close()

		var req bulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Source == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source is required")
			return
		}

		name := req.SourceName
		if name == "" {
			name = req.Source
		}
		if err := deps.Store.UpsertSource(req.Source, name, ""); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "upserting source: %v", err)
			return
		}

		inputs := make([]storage.DocumentInput, len(req.Documents))
		for i, d := range req.Documents {
			inputs[i] = d.toInput(req.Source)
		}

		counts, err := deps.Store.BulkUpsert(req.Source, inputs)
		if errors.Is(err, storage.ErrInvalidInput) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "bulk upsert: %v", err)
			return
		}

		for _, d := range req.Documents {
			docID := storage.DocumentID(req.Source, d.Path)
			if err := upsertErrorCodes(deps.Store, req.Source, docID, d.ErrorCodes); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "upserting error codes: %v", err)
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]int{
			"created":   counts.Created,
			"updated":   counts.Updated,
			"unchanged": counts.Unchanged,
		})
	}
}

func upsertErrorCodes(store *storage.Store, source, docID string, codes []ErrorRequest) error {
	if len(codes) == 0 {
		return nil
	}
	entries := make([]storage.ErrorCode, 0, len(codes))
	for _, c := range codes {
		entries = append(entries, storage.ErrorCode{
			Code:        c.Code,
			Message:     c.Message,
			Description: c.Description,
			DocID:       docID,
		})
	}
	return store.UpsertErrorCodes(source, entries)
}

func handleDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]bool{"deleted": false})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}

func handleReindex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.Reindex()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reindexing: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"reindexed": n})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
