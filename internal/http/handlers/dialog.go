// Package handlers holds the HTTP handlers that wrap the dialog service.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/consultly/dialog-engine/internal/dialog"
	"github.com/consultly/dialog-engine/pkg/logging"
)

const maxMessageBody = 64 * 1024

// DialogHandler exposes the processMessage contract over HTTP.
type DialogHandler struct {
	svc    *dialog.Service
	logger *logging.Logger
}

// NewDialogHandler creates the handler.
func NewDialogHandler(svc *dialog.Service, logger *logging.Logger) *DialogHandler {
	if svc == nil {
		panic("handlers: dialog service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DialogHandler{svc: svc, logger: logger}
}

// HandleMessage is POST /v1/dialog/message.
func (h *DialogHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req dialog.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.svc.ProcessMessage(r.Context(), req)
	if err != nil {
		var ue *dialog.UpstreamError
		switch {
		case errors.Is(err, dialog.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "text is required")
			return
		case errors.As(err, &ue):
			// The service already composed an apology reply; the error is
			// for alerting only.
			h.logger.Error("dialog upstream failure", "op", ue.Op, "error", ue.Err)
		default:
			h.logger.Error("dialog processing failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck is GET /healthz.
func (h *DialogHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
