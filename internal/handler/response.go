package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avolkov/merch-store/internal/asset"
	"github.com/avolkov/merch-store/internal/domain/merch"
)

// merchResponse is the client-facing shape of a record. Images carry
// absolute URLs resolved against the serving request; the persisted state
// keeps storage-relative keys only.
type merchResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DesignBy    string    `json:"designBy"`
	Description string    `json:"description"`
	Cost        float64   `json:"cost"`
	Images      []string  `json:"images"`
	Likes       int       `json:"likes"`
	LikedBy     []string  `json:"likedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type updateRequest struct {
	Name        *string          `json:"name"`
	DesignBy    *string          `json:"designBy"`
	Description *string          `json:"description"`
	Cost        *decimal.Decimal `json:"cost"`
}

type likeRequest struct {
	UserID string `json:"userId"`
}

type likeResponse struct {
	Message string        `json:"message"`
	Record  merchResponse `json:"record"`
}

type deleteResponse struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// requestBaseURL reconstructs the scheme and host the client used to reach
// this server, honoring X-Forwarded-Proto behind a proxy.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func toResponse(r *http.Request, rec *merch.Record) merchResponse {
	base := requestBaseURL(r)

	images := make([]string, len(rec.Images))
	for i, key := range rec.Images {
		images[i] = asset.ResolveURL(base, key)
	}

	likedBy := rec.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}

	return merchResponse{
		ID:          rec.ID,
		Name:        rec.Name,
		DesignBy:    rec.DesignBy,
		Description: rec.Description,
		Cost:        rec.Cost.InexactFloat64(),
		Images:      images,
		Likes:       rec.Likes,
		LikedBy:     likedBy,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func toResponses(r *http.Request, records []merch.Record) []merchResponse {
	out := make([]merchResponse, len(records))
	for i := range records {
		out[i] = toResponse(r, &records[i])
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps domain failures to HTTP responses. Unexpected
// failures are logged before the uniform 500 goes out; nothing is silently
// swallowed.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *merch.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, merch.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "merch item not found")
	default:
		zctx.From(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
