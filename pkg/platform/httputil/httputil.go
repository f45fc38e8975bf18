package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
)

// ErrorResponse is the JSON envelope for every error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a domain error into a status and a safe envelope.
// Credential failures collapse to one response so callers cannot tell a bad
// signature from an unknown key or a revoked subject.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := ToHTTPStatus(code)

	resp := ErrorResponse{Error: string(code)}
	switch code {
	case dErrors.CodeMalformedToken, dErrors.CodeInvalidCredential, dErrors.CodeUnauthorized:
		resp.Error = string(dErrors.CodeUnauthorized)
	case dErrors.CodeInternal, dErrors.CodeConflict, dErrors.CodeTimeout:
	default:
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, status, resp)
}

// ToHTTPStatus maps a domain error code onto an HTTP status.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeIllegalAction:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeMalformedToken, dErrors.CodeInvalidCredential:
		return http.StatusUnauthorized
	case dErrors.CodeNotEnough:
		return http.StatusUnprocessableEntity
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
