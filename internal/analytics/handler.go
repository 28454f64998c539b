package analytics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"agrosurvey/internal/app/apiresp"
	"agrosurvey/internal/store"
)

type Handler struct {
	svc dashboardService
}

type dashboardService interface {
	Dashboard(ctx context.Context, f Filters) (*DashboardView, error)
	Responses(ctx context.Context, f Filters, limit int) (*ResponseList, error)
}

func NewHandler(svc dashboardService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Dashboard(r.Context(), filtersFromQuery(r))
	if err != nil {
		writeReadError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view)
}

func (h *Handler) Responses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.svc.Responses(r.Context(), filtersFromQuery(r), limit)
	if err != nil {
		writeReadError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, list)
}

func filtersFromQuery(r *http.Request) Filters {
	q := r.URL.Query()
	return Filters{
		Comarca: strings.TrimSpace(q.Get("comarca")),
		Sector:  strings.TrimSpace(q.Get("sector")),
	}
}

func writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrRead) {
		apiresp.WriteError(w, r, http.StatusServiceUnavailable, "responses are temporarily unavailable")
		return
	}
	apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
}
