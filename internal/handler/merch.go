package handler

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/avolkov/merch-store/internal/domain/merch"
)

// listMerch handles GET /list.
func (h *Handler) listMerch(w http.ResponseWriter, r *http.Request) {
	records, err := h.catalog.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponses(r, records))
}

// searchMerch handles GET /search/{key}.
func (h *Handler) searchMerch(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	records, err := h.catalog.Search(r.Context(), key)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponses(r, records))
}

// createMerch handles POST /create: a multipart form with text fields and
// 1..5 files under the merch_images field.
func (h *Handler) createMerch(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		return
	}

	cost, ok := h.parseCost(w, r.FormValue("cost"))
	if !ok {
		return
	}

	in := merch.CreateInput{
		Name:        r.FormValue("name"),
		DesignBy:    r.FormValue("designBy"),
		Description: r.FormValue("description"),
		Cost:        cost,
	}

	rec, err := h.catalog.Create(r.Context(), in, toUploads(r.MultipartForm.File[merch.UploadField]))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toResponse(r, rec))
}

// updateMerch handles PUT /update/{id}. A JSON body performs a text-only
// partial update; a multipart body may additionally replace the image set.
func (h *Handler) updateMerch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		upd     merch.Update
		uploads []merch.Upload
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := h.parseMultipart(w, r); err != nil {
			return
		}

		form := r.MultipartForm
		upd.Name = formField(form, "name")
		upd.DesignBy = formField(form, "designBy")
		upd.Description = formField(form, "description")
		if raw := formField(form, "cost"); raw != nil {
			cost, ok := h.parseCost(w, *raw)
			if !ok {
				return
			}
			upd.Cost = cost
		}
		uploads = toUploads(form.File[merch.UploadField])
	} else {
		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		upd = merch.Update{
			Name:        req.Name,
			DesignBy:    req.DesignBy,
			Description: req.Description,
			Cost:        req.Cost,
		}
	}

	rec, err := h.catalog.Update(r.Context(), id, upd, uploads)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(r, rec))
}

// deleteMerch handles DELETE /delete/{id}.
func (h *Handler) deleteMerch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deleteResponse{Deleted: true, ID: id})
}

// toggleLike handles PUT /like/{id} with a JSON body {"userId": "..."}.
func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req likeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	result, err := h.catalog.ToggleLike(r.Context(), id, req.UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	message := "merch item unliked"
	if result.Liked {
		message = "merch item liked"
	}
	h.writeJSON(w, http.StatusOK, likeResponse{
		Message: message,
		Record:  toResponse(r, result.Record),
	})
}

// parseMultipart parses the request body as multipart form data, writing an
// error response and returning a non-nil error when it cannot.
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return err
		}
		h.writeError(w, http.StatusBadRequest, "expected multipart form data")
		return err
	}
	return nil
}

// parseCost parses an optional cost form value. The bool result is false
// when a response has already been written.
func (h *Handler) parseCost(w http.ResponseWriter, raw string) (*decimal.Decimal, bool) {
	if raw == "" {
		return nil, true
	}
	cost, err := decimal.NewFromString(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid cost: not a number")
		return nil, false
	}
	return &cost, true
}

func toUploads(files []*multipart.FileHeader) []merch.Upload {
	uploads := make([]merch.Upload, len(files))
	for i, fh := range files {
		uploads[i] = merch.Upload{
			Filename: fh.Filename,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	}
	return uploads
}

// formField returns a pointer to the first value of name when the field was
// present in the form, nil otherwise. Presence matters: an update only
// touches fields the client actually sent.
func formField(form *multipart.Form, name string) *string {
	vals, ok := form.Value[name]
	if !ok || len(vals) == 0 {
		return nil
	}
	return &vals[0]
}
