package model

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
)

const (
	// LevelTrace is a custom log level for detailed HTTP traffic.
	LevelTrace = slog.Level(-8)
)

// LoggingTransport dumps requests and responses when trace logging is enabled.
// The Authorization header is redacted and streaming bodies are never read.
type LoggingTransport struct {
	Base http.RoundTripper
	Name string
}

// NewHTTPClient returns an http.Client that logs through a LoggingTransport.
func NewHTTPClient(name string) *http.Client {
	return &http.Client{Transport: &LoggingTransport{Base: http.DefaultTransport, Name: name}}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if !slog.Default().Enabled(req.Context(), LevelTrace) {
		return base.RoundTrip(req)
	}

	redacted := req.Clone(req.Context())
	if redacted.Header.Get("Authorization") != "" {
		redacted.Header.Set("Authorization", "Bearer [redacted]")
	}
	redacted.Header.Del("x-goog-api-key")
	if reqDump, err := httputil.DumpRequestOut(redacted, false); err != nil {
		slog.Debug("Failed to dump request", "provider", t.Name, "error", err)
	} else {
		slog.Log(req.Context(), LevelTrace, "REST Request", "provider", t.Name, "url", req.URL.Redacted(), "dump", string(reqDump))
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// For streaming, don't dump body to avoid consuming it.
	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")

	respDump, err := httputil.DumpResponse(resp, !isStream)
	if err != nil {
		slog.Debug("Failed to dump response", "provider", t.Name, "error", err)
	} else {
		slog.Log(req.Context(), LevelTrace, "REST Response", "provider", t.Name, "isStream", isStream, "dump", string(respDump))
	}

	return resp, nil
}
