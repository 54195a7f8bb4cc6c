package api

import (
	"encoding/json"
	"net/http"

	"shiftwatch/internal/requestctx"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the body of every ops API response. RequestID echoes the
// X-Request-ID header so log lines and responses can be joined.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, payload Envelope) {
	payload.RequestID = requestctx.GetRequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		requestctx.Logger(r.Context()).Warn("write json failed", "err", err)
	}
}

func Success(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, r, http.StatusOK, Envelope{Success: true, Data: data})
}

func Accepted(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, r, http.StatusAccepted, Envelope{Success: true, Data: data})
}

func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, r, status, Envelope{Error: &Error{Code: code, Message: message}})
}
