// Package handler exposes the merch catalog over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avolkov/merch-store/internal/domain/merch"
)

// DefaultMaxUploadBytes caps the total size of a multipart request body.
const DefaultMaxUploadBytes = 32 << 20

// Handler serves the merch catalog HTTP API.
type Handler struct {
	catalog        *merch.Service
	maxUploadBytes int64
}

// NewHandler constructs a Handler over the catalog service.
func NewHandler(catalog *merch.Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		catalog:        catalog,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the catalog route tree.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/list", h.listMerch)
	r.Get("/search/{key}", h.searchMerch)
	r.Post("/create", h.createMerch)
	r.Put("/update/{id}", h.updateMerch)
	r.Delete("/delete/{id}", h.deleteMerch)
	r.Put("/like/{id}", h.toggleLike)
	return r
}
