package testutil

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// mockTestingT records failures instead of failing the enclosing test.
type mockTestingT struct {
	failed   bool
	errorMsg string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...any) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...any) {
	m.Errorf(format, args...)
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if mockT.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v", mockT.failed, tt.shouldFail)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name       string
		jsonBody   string
		shouldFail bool
	}{
		{"matching status", `{"status":"ok","result":"test"}`, false},
		{"different status", `{"status":"error","message":"test"}`, true},
		{"invalid JSON", `{"status":}`, true},
		{"missing status field", `{"result":"test"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)
			response := AssertJSONResponse(mockT, rr, "ok")
			if mockT.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v (%s)", mockT.failed, tt.shouldFail, mockT.errorMsg)
			}
			if !tt.shouldFail && response == nil {
				t.Error("Expected response map to be returned")
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, "POST", "/chat", map[string]string{"from": "919876543210", "message": "hi"})
	if req.Method != "POST" || req.URL.Path != "/chat" || req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected request %s %s %v", req.Method, req.URL.Path, req.Header)
	}
	var body map[string]string
	buf := make([]byte, req.ContentLength)
	if _, err := req.Body.Read(buf); err != nil {
		t.Fatalf("read body: %v", err)
	}
	MustUnmarshalJSON(t, buf, &body)
	if body["message"] != "hi" {
		t.Errorf("unexpected body %v", body)
	}

	get := CreateHTTPRequest(t, "GET", "/health", nil)
	if get.ContentLength != 0 {
		t.Errorf("expected empty body, got %d bytes", get.ContentLength)
	}
}

func TestAssertReplyOptions(t *testing.T) {
	reply := &models.Reply{Message: "Pick", Options: []string{"Yes", "No"}}

	mockT := &mockTestingT{}
	AssertReplyOptions(mockT, reply, []string{"Yes", "No"}, "same")
	if mockT.failed {
		t.Errorf("unexpected failure: %s", mockT.errorMsg)
	}

	mockT = &mockTestingT{}
	AssertReplyOptions(mockT, reply, []string{"No", "Yes"}, "order")
	if !mockT.failed {
		t.Error("expected order mismatch to fail")
	}

	mockT = &mockTestingT{}
	AssertReplyOptions(mockT, nil, nil, "nil reply")
	if !mockT.failed {
		t.Error("expected nil reply to fail")
	}
}
