package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, http.StatusCreated, map[string]string{"uuid": "abc"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["uuid"] != "abc" {
		t.Errorf("body = %v", body)
	}
}

func TestRespondJSONNilData(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, http.StatusOK, nil)
	if w.Body.Len() != 0 {
		t.Errorf("expected an empty body, got %q", w.Body.String())
	}
}

func TestRespondErrorWithCode(t *testing.T) {
	w := httptest.NewRecorder()
	RespondErrorWithCode(w, http.StatusConflict, CodeAlreadyAcknowledged, "alert is already acknowledged")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Code != CodeAlreadyAcknowledged {
		t.Errorf("code = %q, want %q", body.Code, CodeAlreadyAcknowledged)
	}
	if body.Error == "" {
		t.Error("expected a message alongside the code")
	}
}

func TestRespondErrorOmitsEmptyCode(t *testing.T) {
	w := httptest.NewRecorder()
	RespondError(w, http.StatusNotFound, "Policy not found")

	var raw map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if _, present := raw["code"]; present {
		t.Error("code field should be omitted when empty")
	}
	if _, present := raw["details"]; present {
		t.Error("details field should be omitted when empty")
	}
}

func TestRespondValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	RespondValidationError(w, map[string]string{"alert_type": "is required"})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Code != CodeValidation {
		t.Errorf("code = %q, want %q", body.Code, CodeValidation)
	}
	if body.Details["alert_type"] != "is required" {
		t.Errorf("details = %v", body.Details)
	}
}

func TestRespondNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	RespondNoContent(w)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected no body, got %q", w.Body.String())
	}
}
