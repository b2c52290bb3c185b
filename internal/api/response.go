package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// Machine-readable error codes carried in the error envelope. Dashboard
// and automation clients branch on the code; the message text is for
// humans and may change.
const (
	CodeValidation          = "validation_error"
	CodeAlreadyAcknowledged = "already_acknowledged"
	CodeInvalidTransition   = "invalid_transition"
	CodeResolutionRequired  = "resolution_required"
	CodePolicyScopeInvalid  = "policy_scope_invalid"
	CodePolicyDuplicate     = "policy_duplicate"
)

// ErrorResponse is the error envelope shared by every endpoint. Details
// is only populated for validation failures, keyed by field name.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// RespondJSON writes data as JSON with the given status. Nil data writes
// the status line only.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// RespondError writes an error envelope with a message but no code.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode writes an error envelope carrying one of the
// Code* constants.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes per-field validation failures as a 422.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    CodeValidation,
		Details: fieldErrors,
	})
}

// RespondNoContent writes a bare 204.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
