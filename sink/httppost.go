package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// HTTPPostSink forwards record envelopes to an external HTTP endpoint.
// Server errors and network failures are transient; client errors mean the
// endpoint rejects the record permanently.
type HTTPPostSink struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPPostSink creates an HTTP sink with the given per-request timeout.
func NewHTTPPostSink(name, url string, timeout time.Duration) (*HTTPPostSink, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "HTTPPostSink", "NewHTTPPostSink", "url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPostSink{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Name implements Sink.
func (s *HTTPPostSink) Name() string { return s.name }

// Write implements Sink.
func (s *HTTPPostSink) Write(ctx context.Context, rec event.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return errors.WrapInvalid(err, "HTTPPostSink", "Write", "marshal record")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.WrapInvalid(err, "HTTPPostSink", "Write", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "HTTPPostSink", "Write", "post "+s.url)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.WrapTransient(errors.ErrSinkUnavailable, "HTTPPostSink", "Write",
			"post "+s.url+" status "+resp.Status)
	default:
		return errors.WrapInvalid(errors.ErrSinkUnavailable, "HTTPPostSink", "Write",
			"post "+s.url+" status "+resp.Status)
	}
}

// Close implements Sink.
func (s *HTTPPostSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
