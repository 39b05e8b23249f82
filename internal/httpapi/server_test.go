package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/browseragent/control-plane/internal/tools"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Options{Tools: tools.NewRegistry()})
}

func TestCreateTaskRejectsMissingGoal(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/v1/tasks", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body["errorCode"] != "INVALID_PARAMETER" {
		t.Fatalf("errorCode = %v, want INVALID_PARAMETER", body["errorCode"])
	}
}

func TestGetUnknownTaskIs404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/v1/tasks/not-a-task", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

// The tool protocol always answers 200 with isError toggled inside the
// envelope, unknown tool included.
func TestCallUnknownToolReturns200Envelope(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/v1/tools/no_such_tool", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var env struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if !env.IsError || len(env.Content) != 1 || env.Content[0].Type != "text" {
		t.Fatalf("envelope = %+v, want isError with one text block", env)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
