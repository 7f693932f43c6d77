// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/cgscrape/internal/logging"
	"github.com/raysh454/cgscrape/internal/tracker"
	"github.com/raysh454/cgscrape/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns how many warnings were recorded.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// By default it returns body "ok:<url>" with status 200.
// Set Body/StatusCode/Headers to override, or Err to force a failure.
type DummyWebClient struct {
	Body       []byte
	StatusCode int
	Headers    http.Header
	Err        error

	ResponseDelay time.Duration

	mu       sync.Mutex
	Requests []*webclient.Request
	closed   bool
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if req == nil {
		return nil, webclient.ErrNilRequest
	}
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}

	body := d.Body
	if body == nil {
		body = []byte("ok:" + req.URL)
	}
	status := d.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	headers := d.Headers
	if headers == nil {
		headers = http.Header{"Content-Type": {"text/html; charset=utf-8"}}
	}

	return &webclient.Response{
		Request:    req,
		Headers:    headers.Clone(),
		Body:       body,
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// RequestCount returns the number of requests seen so far.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// Closed reports whether Close was called.
func (d *DummyWebClient) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ─── Tracker ───────────────────────────────────────────────────────────

// DummyTracker implements tracker.Tracker with in-memory recording.
// Only Commit records anything; the read methods report ErrVersionNotFound.
type DummyTracker struct {
	CommitErr error

	mu        sync.Mutex
	Snapshots []*tracker.Snapshot
	Messages  []string
}

func (t *DummyTracker) Commit(_ context.Context, snap *tracker.Snapshot, message string) (*tracker.CommitResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.CommitErr != nil {
		return nil, t.CommitErr
	}
	t.Snapshots = append(t.Snapshots, snap)
	t.Messages = append(t.Messages, message)
	return &tracker.CommitResult{
		Version: tracker.Version{
			ID:         "v-dummy",
			URL:        snap.URL,
			StatusCode: snap.StatusCode,
			Size:       int64(len(snap.Body)),
			Message:    message,
			Timestamp:  time.Now(),
		},
		Changed: true,
	}, nil
}

func (t *DummyTracker) GetVersion(context.Context, string) (*tracker.Version, error) {
	return nil, tracker.ErrVersionNotFound
}

func (t *DummyTracker) Get(context.Context, string) (*tracker.Snapshot, error) {
	return nil, tracker.ErrVersionNotFound
}

func (t *DummyTracker) Latest(context.Context, string) (*tracker.Version, error) {
	return nil, tracker.ErrVersionNotFound
}

func (t *DummyTracker) ListVersions(context.Context, string, int) ([]*tracker.Version, error) {
	return nil, nil
}

func (t *DummyTracker) Diff(context.Context, string, string) (*tracker.BodyDiff, error) {
	return nil, tracker.ErrVersionNotFound
}

func (t *DummyTracker) Close() error { return nil }

// ErrDummyNetwork is a convenience error for DummyWebClient.Err.
var ErrDummyNetwork = errors.New("dummy network failure")
