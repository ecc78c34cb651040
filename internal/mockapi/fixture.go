package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rangeos/engine/internal/apiclient"
	"github.com/rangeos/engine/internal/models"
	"github.com/rangeos/engine/internal/querykey"
)

// UnpagedMode is the list form returned when offset or limit is missing.
type UnpagedMode int

const (
	// UnpagedArray answers with a bare JSON array.
	UnpagedArray UnpagedMode = iota
	// UnpagedEnvelope answers with {totalCount, totalPages: 1, data}.
	UnpagedEnvelope
	// UnpagedEnvelopeNoPages answers with {totalCount, data}.
	UnpagedEnvelopeNoPages
)

func (m UnpagedMode) String() string {
	switch m {
	case UnpagedEnvelope:
		return "envelope"
	case UnpagedEnvelopeNoPages:
		return "envelope-no-pages"
	default:
		return "array"
	}
}

// Paging describes how a fixture answers list requests. Fixtures
// deliberately differ here, the same way the real handlers do.
type Paging struct {
	// Paged answers offset+limit requests with an envelope whose totalPages
	// is ceil(total/limit). Fixtures without it always answer in their
	// Unpaged form.
	Paged bool
	// SliceWindow slices data to [offset, offset+limit). Without it the full
	// list is returned even when paged.
	SliceWindow bool
	Unpaged     UnpagedMode
}

// Fixture is the canned data of one resource.
type Fixture[T models.Record] struct {
	Key querykey.Key
	// Path is mounted under the API version root and may contain chi
	// parameters such as {rangeId}.
	Path   string
	List   []T
	Single T
	// Updates are canned PUT responses by id. The request body is ignored.
	Updates map[string]T
	Paging  Paging
	// Extra registers additional item routes, e.g. VM power actions.
	Extra func(r chi.Router, find func(id string) (T, bool))
}

// CatalogEntry summarises one mounted fixture.
type CatalogEntry struct {
	Key    querykey.Key
	Path   string
	Count  int
	IDs    []string
	Paging Paging
}

func (f *Fixture[T]) entry() CatalogEntry {
	ids := make([]string, 0, len(f.List))
	for _, item := range f.List {
		ids = append(ids, item.ID())
	}
	return CatalogEntry{Key: f.Key, Path: f.Path, Count: len(f.List), IDs: ids, Paging: f.Paging}
}

type createBody struct {
	Name string `json:"name" validate:"required"`
}

type fixtureHandler[T models.Record] struct {
	f        *Fixture[T]
	validate *validator.Validate
	log      *zap.Logger
}

func (f *Fixture[T]) mount(r chi.Router, v *validator.Validate, log *zap.Logger) {
	h := &fixtureHandler[T]{f: f, validate: v, log: log.With(zap.String("fixture", string(f.Key)))}
	r.Route("/"+f.Path, func(fr chi.Router) {
		fr.Get("/", h.list)
		fr.Post("/", h.create)
		fr.Get("/{id}", h.get)
		fr.Put("/{id}", h.update)
		fr.Delete("/{id}", h.delete)
		if f.Extra != nil {
			f.Extra(fr, f.find)
		}
	})
}

func (h *fixtureHandler[T]) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offsetStr, limitStr := q.Get("offset"), q.Get("limit")
	items := h.f.List

	if offsetStr == "" || limitStr == "" {
		writeUnpaged(w, h.f.Paging.Unpaged, items)
		return
	}

	offset, err := strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid offset %q", offsetStr))
		return
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", limitStr))
		return
	}
	if !h.f.Paging.Paged {
		writeUnpaged(w, h.f.Paging.Unpaged, items)
		return
	}

	data := items
	if h.f.Paging.SliceWindow {
		start, end := offset, offset+limit
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}
		data = items[start:end]
	}
	writeJSON(w, http.StatusOK, apiclient.Page[T]{
		TotalCount: len(items),
		TotalPages: apiclient.TotalPages(len(items), limit),
		Data:       nonNil(data),
	})
}

func (f *Fixture[T]) find(id string) (T, bool) {
	for _, item := range f.List {
		if item.ID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func (h *fixtureHandler[T]) get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.f.find(chi.URLParam(r, "id"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *fixtureHandler[T]) create(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeValidation(w, err)
		return
	}
	h.log.Debug("fixture create", zap.String("name", body.Name))
	writeJSON(w, http.StatusCreated, h.f.Single)
}

func (h *fixtureHandler[T]) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if v, ok := h.f.Updates[id]; ok {
		writeJSON(w, http.StatusOK, v)
		return
	}
	writeJSON(w, http.StatusOK, h.f.Single)
}

func (h *fixtureHandler[T]) delete(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("fixture delete", zap.String("id", chi.URLParam(r, "id")))
	writeJSON(w, http.StatusOK, struct{}{})
}

func writeUnpaged[T any](w http.ResponseWriter, mode UnpagedMode, items []T) {
	items = nonNil(items)
	switch mode {
	case UnpagedEnvelope:
		writeJSON(w, http.StatusOK, apiclient.Page[T]{TotalCount: len(items), TotalPages: 1, Data: items})
	case UnpagedEnvelopeNoPages:
		writeJSON(w, http.StatusOK, struct {
			TotalCount int `json:"totalCount"`
			Data       []T `json:"data"`
		}{len(items), items})
	default:
		writeJSON(w, http.StatusOK, items)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeValidation(w http.ResponseWriter, err error) {
	var fields []map[string]string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, map[string]string{"field": fe.Field(), "tag": fe.Tag()})
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"message": "validation failed", "errors": fields})
}
