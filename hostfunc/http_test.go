package hostfunc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPRejected(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		args    map[string]any
		want    string
	}{
		{"disabled", nil, map[string]any{"url": "https://example.com"}, "http not enabled"},
		{"unallowed host", []string{"allowed.com"}, map[string]any{"url": "https://evil.com"}, "host not allowed: evil.com"},
		{"query bypass", []string{"allowed.com"}, map[string]any{"url": "https://evil.com/?x=allowed.com"}, "host not allowed: evil.com"},
		{"suffix bypass", []string{"allowed.com"}, map[string]any{"url": "https://allowed.com.evil.com/"}, "host not allowed: allowed.com.evil.com"},
		{"missing url", []string{"example.com"}, map[string]any{}, "url required"},
		{"invalid url", []string{"example.com"}, map[string]any{"url": "://invalid"}, "invalid url"},
		{"bad scheme", []string{"example.com"}, map[string]any{"url": "ftp://example.com"}, "scheme must be http or https"},
		{"long url", []string{"example.com"}, map[string]any{"url": "https://example.com/" + strings.Repeat("a", 10*1024)}, "url exceeds max length"},
		{"bad method", []string{"example.com"}, map[string]any{"url": "https://example.com", "method": "TRACE"}, "unsupported method: TRACE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHTTP(HTTPConfig{AllowedHosts: tt.allowed})
			_, err := h.Request(context.Background(), tt.args)
			if err == nil || err.Error() != tt.want {
				t.Errorf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestHTTPRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Token", r.Header.Get("X-Token"))
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}))
	defer server.Close()

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"127.0.0.1"}})
	result, err := h.Request(context.Background(), map[string]any{
		"method":  "post",
		"url":     server.URL,
		"body":    `{"ok": true}`,
		"headers": map[string]any{"X-Token": "secret"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := result.(map[string]any)
	if data["status"].(int) != http.StatusCreated {
		t.Errorf("expected status 201, got %v", data["status"])
	}
	if data["body"] != `{"ok": true}` {
		t.Errorf("expected echoed body, got %v", data["body"])
	}
	headers := data["headers"].(map[string]string)
	if headers["X-Method"] != "POST" || headers["X-Token"] != "secret" {
		t.Errorf("unexpected headers %v", headers)
	}
}

func TestHTTPGetTruncatesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"127.0.0.1"}, MaxBodySize: 10})
	result, err := h.Get(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := result.(map[string]any)["body"].(string); len(body) != 10 {
		t.Errorf("expected body truncated to 10 bytes, got %d", len(body))
	}
}

func TestHTTPHostMatching(t *testing.T) {
	tests := []struct {
		allowed string
		host    string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "api.example.com", true},
		{"example.com", "badexample.com", false},
		{"::1", "::1", true},
		{"::1", "0:0:0:0:0:0:0:1", true},
		{"::1", "::2", false},
		{"example.com", "127.0.0.1", false},
		{"example.com", "2001:db8::1", false},
		{"192.168.1.1", "192.168.1.1", true},
		{"192.168.1.1", "192.168.1.2", false},
		{"1.1", "8.1.1.1", false},
	}
	for _, tt := range tests {
		h := NewHTTP(HTTPConfig{AllowedHosts: []string{tt.allowed}})
		if got := h.isHostAllowed(tt.host); got != tt.want {
			t.Errorf("isHostAllowed(%q) with %q = %v, want %v", tt.host, tt.allowed, got, tt.want)
		}
	}
}
