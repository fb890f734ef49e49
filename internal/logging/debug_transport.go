package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs method, URL, status and latency of every request.
// Header values are never logged; Range is the only header echoed.
type DebugTransport struct {
	base   http.RoundTripper
	logger Logger
}

func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, logger: logger}
}

// Wrap returns a copy of t that sends requests through base
func (t *DebugTransport) Wrap(base http.RoundTripper) *DebugTransport {
	return NewDebugTransport(base, t.logger)
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	fields := []Field{
		F("method", req.Method),
		F("url", Redact(req.URL.Redacted())),
	}
	if r := req.Header.Get("Range"); r != "" {
		fields = append(fields, F("range", r))
	}
	t.logger.WithContext(req.Context()).Debug("http request", fields...)

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.logger.WithContext(req.Context()).Debug("http request failed",
			append(fields, F("error", err.Error()), F("elapsed", elapsed.String()))...)
		return nil, err
	}
	t.logger.WithContext(req.Context()).Debug("http response",
		append(fields, F("status", resp.StatusCode), F("elapsed", elapsed.String()))...)
	return resp, nil
}
