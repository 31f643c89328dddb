package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireAuthAllowAnyKey(t *testing.T) {
	s := &Server{cfg: Config{AllowAnyKey: true}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	if _, ok := s.requireAuth(rr, req); !ok {
		t.Fatal("expected allow-any-key to pass auth")
	}
}

func TestRequireAuthMissingKey(t *testing.T) {
	s := &Server{cfg: Config{}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	if _, ok := s.requireAuth(rr, req); ok {
		t.Fatal("expected missing auth to fail")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.handleHealth(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %q", body["status"])
	}
}

func TestHandlePricingDisabled(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/pricing", nil)
	s.handlePricing(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "disabled" {
		t.Errorf("status = %v, want disabled", body["status"])
	}
}

func TestAllowRequestUnauthorized(t *testing.T) {
	s := &Server{limiters: NewLimiterStore("60/m", 10)}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	ok, reason := s.allowRequest(rr, req, nil)
	if ok || reason != "unauthorized" {
		t.Errorf("allowRequest = %v, %q", ok, reason)
	}
}

func TestHandleChatCompletionsRequiresModel(t *testing.T) {
	s := &Server{cfg: Config{AllowAnyKey: true}, limiters: NewLimiterStore("60/m", 10)}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	s.handleChatCompletions(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
