package http

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	ierrors "clinical-intake/internal/errors"
)

var errBadRequest = stderrors.New("malformed request")

type errorBody struct {
	Error       string   `json:"error"`
	Code        string   `json:"code,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// statusFor maps an error code to the HTTP status returned for it.
func statusFor(code ierrors.ErrorCode) int {
	switch code {
	case ierrors.ErrCodeInvalidQueue, ierrors.ErrCodeRecordEmpty:
		return http.StatusBadRequest
	case ierrors.ErrCodeKeyCollision:
		return http.StatusUnprocessableEntity
	case ierrors.ErrCodeOutOfRangeStep:
		return http.StatusConflict
	case ierrors.ErrCodeSessionNotFound, ierrors.ErrCodeRecordNotFound:
		return http.StatusNotFound
	case ierrors.ErrCodeGenerationFailed:
		return http.StatusBadGateway
	case ierrors.ErrCodeGenerationTimedOut:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError renders err as JSON. Coded errors keep their code, message and
// suggestions; anything else is logged and reported as a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, errBadRequest) {
		writeBadRequest(w, err.Error())
		return
	}
	var ie *ierrors.IntakeError
	if !stderrors.As(err, &ie) {
		s.Logger.WithError(err).ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	status := statusFor(ie.Code)
	s.Metrics.Error(string(ie.Code))
	if status >= http.StatusInternalServerError {
		s.Logger.WithError(err).ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path)
	}
	writeJSON(w, status, errorBody{Error: ie.Message, Code: string(ie.Code), Suggestions: ie.Suggestions})
}
