package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codeforge/codeforge/internal/ratelimit"
)

// highThroughputRateLimit avoids the default per-host ceiling slowing
// down tests that issue many requests against one httptest.Server host.
func highThroughputRateLimit() ratelimit.Config {
	return ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000}
}

func TestNew_FillsDefaults(t *testing.T) {
	c := New(Config{})
	transport := c.http.Transport
	if transport == nil {
		t.Fatal("expected a configured transport")
	}
	if c.http.Timeout != 60*time.Second {
		t.Fatalf("got timeout %v, want 60s", c.http.Timeout)
	}
}

func TestDo_IssuesRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(Config{RateLimit: highThroughputRateLimit()})
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
}
