package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	keys, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))
	srv := New("/tmp/test.sock", keys)
	if srv == nil {
		t.Fatal("New returned nil")
	}
	if srv.socketPath != "/tmp/test.sock" {
		t.Errorf("socketPath = %q, want %q", srv.socketPath, "/tmp/test.sock")
	}
}

func TestStartWithNilKeystore(t *testing.T) {
	srv := New("/tmp/test.sock", nil)
	if err := srv.Start(context.Background()); err == nil {
		t.Error("expected error for nil keystore")
	}
}

func TestStartWithEmptyPath(t *testing.T) {
	keys, _ := LoadKeyStore(filepath.Join(t.TempDir(), "keys.json"))
	srv := New("", keys)
	if err := srv.Start(context.Background()); err == nil {
		t.Error("expected error for empty socket path")
	}
}

func TestServerIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "admin.sock")
	keys, _ := LoadKeyStore(filepath.Join(tmpDir, "keys.json"))

	srv := New(socketPath, keys)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}

	var keyID string

	t.Run("create_key", func(t *testing.T) {
		resp, err := client.Post("http://unix/admin/keys", "application/json", nil)
		if err != nil {
			t.Fatalf("POST /admin/keys failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var result map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if result["key_id"] == nil || result["api_key"] == nil {
			t.Errorf("missing key_id/api_key in response: %+v", result)
		}
		keyID, _ = result["key_id"].(string)
	})

	t.Run("set_policy", func(t *testing.T) {
		payload := `{"token_allowance": 1000, "allowance_duration": "24h"}`
		resp, err := client.Post("http://unix/admin/keys/"+keyID+"/policy",
			"application/json", bytes.NewBufferString(payload))
		if err != nil {
			t.Fatalf("POST policy failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		if result["token_allowance"] != float64(1000) {
			t.Errorf("token_allowance = %v, want 1000", result["token_allowance"])
		}
	})

	t.Run("add_tokens", func(t *testing.T) {
		payload := `{"tokens": 500}`
		resp, err := client.Post("http://unix/admin/keys/"+keyID+"/add-tokens",
			"application/json", bytes.NewBufferString(payload))
		if err != nil {
			t.Fatalf("POST add-tokens failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		if result["token_balance"] != float64(1500) {
			t.Errorf("token_balance = %v, want 1500", result["token_balance"])
		}
	})

	t.Run("method_not_allowed", func(t *testing.T) {
		resp, err := client.Get("http://unix/admin/keys")
		if err != nil {
			t.Fatalf("GET /admin/keys failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		resp, err := client.Post("http://unix/admin/keys/"+keyID+"/invalid", "application/json", nil)
		if err != nil {
			t.Fatalf("POST invalid action failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("key_not_found", func(t *testing.T) {
		payload := `{"tokens": 100}`
		resp, err := client.Post("http://unix/admin/keys/nonexistent/add-tokens",
			"application/json", bytes.NewBufferString(payload))
		if err != nil {
			t.Fatalf("POST add-tokens failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	cancel()
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/.codeforge/admin.sock", home + "/.codeforge/admin.sock"},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
