package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rangeos/engine/internal/api/middleware"
	"github.com/rangeos/engine/internal/api/types"
	"github.com/rangeos/engine/internal/services"
	appErr "github.com/rangeos/engine/pkg/errors"
)

// UIStateHandler serves the persisted accordion state and the dashboard menu.
type UIStateHandler struct {
	svc      services.UIStateService
	validate *validator.Validate
}

func NewUIStateHandler(svc services.UIStateService, v *validator.Validate) *UIStateHandler {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &UIStateHandler{svc: svc, validate: v}
}

// Routes mounts the handler under a /ui router.
func (h *UIStateHandler) Routes(r chi.Router) {
	r.Get("/accordion", h.Accordion)
	r.Put("/accordion/{id}", h.SetAccordion)
	r.Delete("/state", h.Reset)
	r.Post("/dashboard", h.Dashboard)
}

func (h *UIStateHandler) Accordion(w http.ResponseWriter, r *http.Request) {
	touched, err := h.svc.Touched(r.Context(), middleware.GetOwner(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, touched)
}

func (h *UIStateHandler) SetAccordion(w http.ResponseWriter, r *http.Request) {
	var req types.AccordionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, appErr.New(appErr.CodeInvalid, "invalid json"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, appErr.Wrap(err, appErr.CodeInvalid, "invalid request"))
		return
	}
	touched, err := h.svc.SetTouched(r.Context(), middleware.GetOwner(r.Context()), chi.URLParam(r, "id"), *req.Expanded)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, touched)
}

func (h *UIStateHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetPersistence(r.Context(), middleware.GetOwner(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UIStateHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var req types.DashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, appErr.New(appErr.CodeInvalid, "invalid json"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, appErr.Wrap(err, appErr.CodeInvalid, "invalid request"))
		return
	}
	menu, err := h.svc.Menu(r.Context(), middleware.GetOwner(r.Context()), req.Categories)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, menu)
}
