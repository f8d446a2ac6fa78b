// Package api exposes the Markdown-native read surface and the bearer-
// authenticated admin surface over chi, plus the MCP stdio server the
// assistant consumes directly.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/wxkingstar/SpecFusion/internal/search"
	"github.com/wxkingstar/SpecFusion/internal/storage"
)

const publicRateLimit = 60 // requests per minute per IP

// Deps holds the collaborators the HTTP layer needs.
type Deps struct {
	Store  *storage.Store
	Engine *search.Engine
	Token  string
}

// NewHandler composes the public and admin routers under /api.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET"},
			}))
			r.Use(httprate.LimitByIP(publicRateLimit, time.Minute))

			r.Get("/search", handleSearch(deps))
			r.Get("/doc/{id}", handleDoc(deps))
			r.Get("/sources", handleSources(deps))
			r.Get("/categories", handleCategories(deps))
			r.Get("/categories/{source}/{category}", handleCategoryDocs(deps))
			r.Get("/recent", handleRecent(deps))
			r.Get("/health", handleHealth(deps))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))

			r.Post("/upsert", handleUpsert(deps))
			r.Post("/bulk-upsert", handleBulkUpsert(deps))
			r.Delete("/doc/{id}", handleDelete(deps))
			r.Post("/reindex", handleReindex(deps))
		})
	})

	return r
}

func writeMarkdown(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
