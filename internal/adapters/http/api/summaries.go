package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/pkg/errkind"
	"github.com/okian/see1right/pkg/logger"
)

// maxBodyBytes bounds a single submitted payload.
const maxBodyBytes = 1 << 20

// SummariesHandler serves the ingestion gateway and the recent-events query.
type SummariesHandler struct {
	deps Dependencies
}

// NewSummariesHandler creates a new summaries handler.
func NewSummariesHandler(deps Dependencies) *SummariesHandler {
	return &SummariesHandler{deps: deps}
}

// HandleSummaries dispatches GET and POST /dashboard/summaries.
func (h *SummariesHandler) HandleSummaries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleSubmit(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (h *SummariesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_summaries"
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", errkind.Wrap(op, ErrBadRequest, err))
			return
		}
		limit = n
	}

	events, err := h.deps.Recent(r.Context(), limit)
	if err != nil {
		logger.Get().Error(r.Context(), "listing events failed", logger.Error(errkind.Wrap(op, ErrInternal, err)))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *SummariesHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_summary"
	var payload model.RawItem
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errkind.Wrap(op, ErrBadRequest, err))
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request",
			errkind.Wrap(op, ErrBadRequest, errors.New("body must hold a single JSON object")))
		return
	}
	if payload == nil {
		writeError(w, http.StatusBadRequest, "bad_request",
			errkind.Wrap(op, ErrBadRequest, errors.New("body must be a JSON object")))
		return
	}

	receipt, err := h.deps.Submit(r.Context(), payload)
	if err != nil {
		logger.Get().Error(r.Context(), "storing event failed", logger.Error(errkind.Wrap(op, ErrInternal, err)))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: receipt.Status})
}
