package hostfunc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

// HTTPConfig restricts outbound requests. An empty AllowedHosts disables
// the module's network access entirely.
type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Register installs the http module functions into r.
func (h *HTTP) Register(r *Registry) {
	r.Register("http.request", h.Request, "method", "url", "body", "headers")
	r.Register("http.get", h.Get, "url", "headers")
}

var methods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// Request performs an HTTP request and returns a dict with status, body
// and headers.
func (h *HTTP) Request(ctx context.Context, args map[string]any) (any, error) {
	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)
	if !slices.Contains(methods, method) {
		return nil, fmt.Errorf("unsupported method: %s", method)
	}

	rawURL, err := h.checkURL(args["url"])
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if s, ok := args["body"].(string); ok && s != "" {
		if int64(len(s)) > h.cfg.MaxBodySize {
			return nil, fmt.Errorf("request body exceeds max size")
		}
		body = strings.NewReader(s)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if vs, ok := v.(string); ok {
				req.Header.Set(k, vs)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"body":    string(respBody),
		"headers": respHeaders,
	}, nil
}

// Get is Request with method GET.
func (h *HTTP) Get(ctx context.Context, args map[string]any) (any, error) {
	req := map[string]any{"method": http.MethodGet, "url": args["url"]}
	if headers, ok := args["headers"]; ok {
		req["headers"] = headers
	}
	return h.Request(ctx, req)
}

func (h *HTTP) checkURL(v any) (string, error) {
	rawURL, ok := v.(string)
	if !ok || rawURL == "" {
		return "", fmt.Errorf("url required")
	}
	if len(rawURL) > h.cfg.MaxURLLength {
		return "", fmt.Errorf("url exceeds max length")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("scheme must be http or https")
	}
	if len(h.cfg.AllowedHosts) == 0 {
		return "", fmt.Errorf("http not enabled")
	}
	if host := parsed.Hostname(); !h.isHostAllowed(host) {
		return "", fmt.Errorf("host not allowed: %s", host)
	}
	return rawURL, nil
}

// isHostAllowed matches host against the allowlist. IP addresses compare
// by value and never match a domain suffix.
func (h *HTTP) isHostAllowed(host string) bool {
	ip, ipErr := netip.ParseAddr(host)
	for _, allowed := range h.cfg.AllowedHosts {
		if ipErr == nil {
			if a, err := netip.ParseAddr(allowed); err == nil && a == ip {
				return true
			}
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
