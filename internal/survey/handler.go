package survey

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"agrosurvey/internal/app/apiresp"
	"agrosurvey/internal/schema"
	"agrosurvey/internal/store"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc surveyService
}

type surveyService interface {
	Survey() *schema.Survey
	Taxonomy() *schema.Taxonomy
	Version() string
	Start(ctx context.Context) (Snapshot, error)
	Get(ctx context.Context, id string) (Snapshot, error)
	SetLocation(ctx context.Context, id string, loc schema.Location) (Snapshot, error)
	Answer(ctx context.Context, id, questionID string, raw json.RawMessage) (Snapshot, error)
	Submit(ctx context.Context, id string) (*SubmitResult, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type locationRequest struct {
	Comarca   string `json:"comarca"`
	Municipio string `json:"municipio"`
}

type answerRequest struct {
	Value json.RawMessage `json:"value"`
}

type surveyDefinition struct {
	Version  string           `json:"version"`
	Sections []schema.Section `json:"sections"`
}

type validationPayload struct {
	Reason string   `json:"reason"`
	Fields []string `json:"fields,omitempty"`
}

func NewHandler(svc surveyService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Definition(w http.ResponseWriter, r *http.Request) {
	sv := h.svc.Survey()
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: surveyDefinition{Version: h.svc.Version(), Sections: sv.Sections}})
}

func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.svc.Taxonomy().Comarcas})
}

func (h *Handler) Municipios(w http.ResponseWriter, r *http.Request) {
	comarcaID := strings.TrimSpace(chi.URLParam(r, "comarca"))
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.svc.Taxonomy().Municipios(comarcaID)})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Start(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: snap})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: snap})
}

func (h *Handler) SetLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	snap, err := h.svc.SetLocation(r.Context(), chi.URLParam(r, "id"), schema.Location{
		Comarca:   req.Comarca,
		Municipio: req.Municipio,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: snap})
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	questionID := strings.TrimSpace(chi.URLParam(r, "questionID"))
	if questionID == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "question id is required"})
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	snap, err := h.svc.Answer(r.Context(), chi.URLParam(r, "id"), questionID, req.Value)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: snap})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: result})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		apiresp.WriteErrorDetail(w, r, http.StatusUnprocessableEntity, verr.Error(), validationPayload{Reason: verr.Reason, Fields: verr.Fields})
	case errors.Is(err, schema.ErrUnknownQuestion):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSubmissionInFlight), errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrSessionCompleted):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
	case errors.Is(err, store.ErrWrite):
		writeJSON(w, r, http.StatusServiceUnavailable, response{OK: false, Error: "response could not be saved, please retry"})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
