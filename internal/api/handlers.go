package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/savegress/medledger/internal/viewstate"
	"github.com/savegress/medledger/pkg/models"
)

// Handlers exposes the caller-facing operations over HTTP. Every
// response body is the ViewState snapshot; failures are carried in its
// lastError field with a matching status code.
type Handlers struct {
	sync *viewstate.Synchronizer
}

// NewHandlers creates a Handlers instance
func NewHandlers(sync *viewstate.Synchronizer) *Handlers {
	return &Handlers{sync: sync}
}

// HandleState handles GET /state
func (h *Handlers) HandleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondViewState(w, h.sync.State())
	}
}

// HandleConnect handles POST /connect
func (h *Handlers) HandleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondViewState(w, h.sync.Connect(r.Context()))
	}
}

// HandleFetchRecords handles GET /records/{patientID}
func (h *Handlers) HandleFetchRecords() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "patientID")
		respondViewState(w, h.sync.FetchRecords(r.Context(), patientID))
	}
}

// HandleSubmitRecord handles POST /records
func (h *Handlers) HandleSubmitRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields models.RecordFields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		respondViewState(w, h.sync.SubmitRecord(r.Context(), &fields))
	}
}

// HandleAuthorizeProvider handles POST /providers/{address}/authorize
func (h *Handlers) HandleAuthorizeProvider() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := chi.URLParam(r, "address")
		respondViewState(w, h.sync.AuthorizeProvider(r.Context(), address))
	}
}

// HandleRevokeProvider handles POST /providers/{address}/revoke
func (h *Handlers) HandleRevokeProvider() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := chi.URLParam(r, "address")
		respondViewState(w, h.sync.RevokeProvider(r.Context(), address))
	}
}

// HandleRecheck handles POST /operations/recheck
func (h *Handlers) HandleRecheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondViewState(w, h.sync.Recheck(r.Context()))
	}
}

// respondViewState writes the snapshot with a status derived from its
// error classification.
func respondViewState(w http.ResponseWriter, vs models.ViewState) {
	respondJSON(w, statusForError(vs.LastError), vs)
}

func statusForError(info *models.ErrorInfo) int {
	if info == nil {
		return http.StatusOK
	}

	switch info.Code {
	case models.CodeInvalidAddress, models.CodeMissingField:
		return http.StatusBadRequest
	case models.CodeUnauthorized, models.CodeUserRejected:
		return http.StatusForbidden
	case models.CodeOperationInProgress:
		return http.StatusConflict
	case models.CodeLedgerRejected:
		return http.StatusUnprocessableEntity
	case models.CodeSignerUnavailable:
		return http.StatusServiceUnavailable
	case models.CodeLedgerUnreachable:
		return http.StatusBadGateway
	case models.CodeConfirmationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
