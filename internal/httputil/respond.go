package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/strata-social/story_layer/internal/logging"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteJSONResponse writes v as a JSON response with the given status.
func WriteJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteErrorResponse writes a structured error response carrying the request
// trace ID when one is present.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	body := errorBody{Error: errorDetail{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if r != nil {
		body.Error.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSONResponse(w, status, body)
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteErrorResponse(w, nil, http.StatusUnauthorized, "unauthorized", message, nil)
}
