package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{name: "enabled_with_url", cfg: Config{Enabled: true, TokenMeterURL: "http://localhost:9900"}, want: true},
		{name: "disabled", cfg: Config{Enabled: false, TokenMeterURL: "http://localhost:9900"}, want: false},
		{name: "enabled_no_url", cfg: Config{Enabled: true, TokenMeterURL: ""}, want: false},
		{name: "enabled_whitespace_url", cfg: Config{Enabled: true, TokenMeterURL: "   "}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewTokenMeterGateway(tt.cfg)
			if got := gw.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnabledNilGateway(t *testing.T) {
	var gw *TokenMeterGateway
	if gw.Enabled() {
		t.Error("nil gateway should not be enabled")
	}
}

func TestChallengeDisabled(t *testing.T) {
	gw := NewTokenMeterGateway(Config{Enabled: false})

	status, headers, body, err := gw.Challenge(context.Background(), "topup", "key_123", "claude-sonnet-4-6", "")
	if err == nil {
		t.Error("expected error for disabled gateway")
	}
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", status, http.StatusUnauthorized)
	}
	if headers != nil || body != nil {
		t.Error("expected nil headers and body")
	}
}

func TestChallengeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/l402/challenge" || r.Method != http.MethodPost {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["purpose"] != "topup" || payload["key_id"] != "key_123" {
			t.Errorf("unexpected payload: %+v", payload)
		}
		w.Header().Set("WWW-Authenticate", `L402 token="abc", invoice="lnbc..."`)
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"invoice":"lnbc..."}`))
	}))
	defer server.Close()

	gw := NewTokenMeterGateway(Config{Enabled: true, TokenMeterURL: server.URL})
	status, headers, body, err := gw.Challenge(context.Background(), "topup", "key_123", "claude-sonnet-4-6", "")
	if err != nil {
		t.Fatalf("Challenge error: %v", err)
	}
	if status != http.StatusPaymentRequired {
		t.Errorf("status = %d", status)
	}
	if headers["WWW-Authenticate"] == "" {
		t.Error("expected WWW-Authenticate header")
	}
	if len(body) == 0 {
		t.Error("expected body")
	}
}

func TestRedeemSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/l402/redeem" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["auth_header"] != "L402 token:preimage" {
			t.Errorf("auth_header = %q", payload["auth_header"])
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"api_key":"gxk_test","tokens":10000}`))
	}))
	defer server.Close()

	gw := NewTokenMeterGateway(Config{Enabled: true, TokenMeterURL: server.URL})
	status, body, err := gw.Redeem(context.Background(), "L402 token:preimage")
	if err != nil {
		t.Fatalf("Redeem error: %v", err)
	}
	if status != http.StatusOK || len(body) == 0 {
		t.Errorf("status=%d body=%q", status, body)
	}
}

func TestPricingDisabled(t *testing.T) {
	gw := NewTokenMeterGateway(Config{Enabled: false})
	status, body, err := gw.Pricing(context.Background())
	if err == nil {
		t.Error("expected error for disabled gateway")
	}
	if status != http.StatusServiceUnavailable || body != nil {
		t.Errorf("status=%d body=%q", status, body)
	}
}

func TestPricingSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pricing" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"claude-sonnet-4-6":{"input":3,"output":15}}`))
	}))
	defer server.Close()

	gw := NewTokenMeterGateway(Config{Enabled: true, TokenMeterURL: server.URL})
	status, body, err := gw.Pricing(context.Background())
	if err != nil {
		t.Fatalf("Pricing error: %v", err)
	}
	if status != http.StatusOK || len(body) == 0 {
		t.Errorf("status=%d body=%q", status, body)
	}
}
