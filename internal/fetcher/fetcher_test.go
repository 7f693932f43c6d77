package fetcher_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raysh454/cgscrape/internal/fetcher"
	"github.com/raysh454/cgscrape/internal/logging"
	"github.com/raysh454/cgscrape/internal/testutil"
	"github.com/raysh454/cgscrape/internal/tracker"
	"github.com/raysh454/cgscrape/internal/webclient"
)

const tablePath = "/CGS/database_tables/sample1.html"

const tableHTML = "<html><body><table>\n<tr><th>Name</th><th>RA</th></tr>\n<tr><td>NGC 1087</td><td>02:46:25</td></tr>\n</table></body></html>"

func newNetHTTP(t *testing.T) webclient.WebClient {
	t.Helper()
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.NewNopLogger(), nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { wc.Close() })
	return wc
}

func newFetcher(t *testing.T, cfg fetcher.Config, wc webclient.WebClient, tr tracker.Tracker) *fetcher.Fetcher {
	t.Helper()
	f, err := fetcher.New(cfg, wc, tr, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("fetcher.New: %v", err)
	}
	return f
}

func TestFetch_WritesBodyVerbatimWithSingleGET(t *testing.T) {
	t.Parallel()

	var hits, gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method == http.MethodGet && r.URL.Path == tablePath && r.URL.RawQuery == "" {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, tableHTML)
	}))
	defer srv.Close()

	f := newFetcher(t, fetcher.Config{URL: srv.URL + tablePath}, newNetHTTP(t), nil)

	var out bytes.Buffer
	res, err := f.Fetch(context.Background(), &out)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if out.String() != tableHTML {
		t.Fatalf("output mismatch:\n got %q\nwant %q", out.String(), tableHTML)
	}
	if hits.Load() != 1 || gets.Load() != 1 {
		t.Fatalf("expected exactly one GET to %s, got hits=%d gets=%d", tablePath, hits.Load(), gets.Load())
	}
	if res.Response.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.Response.StatusCode)
	}
	if res.Commit != nil || res.CommitErr != nil {
		t.Errorf("nothing should be archived without a tracker")
	}
}

func TestFetch_EmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	}))
	defer srv.Close()

	var out bytes.Buffer
	if _, err := newFetcher(t, fetcher.Config{URL: srv.URL}, newNetHTTP(t), nil).Fetch(context.Background(), &out); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty output, got %q", out.String())
	}
}

func TestFetch_DecodesDeclaredCharset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("caf\xe9"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if _, err := newFetcher(t, fetcher.Config{URL: srv.URL}, newNetHTTP(t), nil).Fetch(context.Background(), &out); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if out.String() != "café" {
		t.Fatalf("got %q, want %q", out.String(), "café")
	}
}

func TestFetch_RawSkipsDecoding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("caf\xe9"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if _, err := newFetcher(t, fetcher.Config{URL: srv.URL, Raw: true}, newNetHTTP(t), nil).Fetch(context.Background(), &out); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(out.Bytes(), []byte("caf\xe9")) {
		t.Fatalf("raw output altered: %q", out.Bytes())
	}
}

func TestFetch_NonOKStatusStillWritesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "<h1>Not Found</h1>")
	}))
	defer srv.Close()

	logger := &testutil.DummyLogger{}
	f, err := fetcher.New(fetcher.Config{URL: srv.URL}, newNetHTTP(t), nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	res, err := f.Fetch(context.Background(), &out)
	if err != nil {
		t.Fatalf("non-2xx must not be an error by default: %v", err)
	}
	if out.String() != "<h1>Not Found</h1>" {
		t.Errorf("body = %q", out.String())
	}
	if res.Response.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", res.Response.StatusCode)
	}
	if logger.WarnCount() != 1 {
		t.Errorf("expected one warning, got %v", logger.Warns)
	}
}

func TestFetch_FailOnStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "down")
	}))
	defer srv.Close()

	var out bytes.Buffer
	_, err := newFetcher(t, fetcher.Config{URL: srv.URL, FailOnStatus: true}, newNetHTTP(t), nil).Fetch(context.Background(), &out)

	var statusErr *fetcher.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
	if out.String() != "down" {
		t.Errorf("body should be written before the status error, got %q", out.String())
	}
}

func TestFetch_NetworkErrorWritesNothing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var out bytes.Buffer
	res, err := newFetcher(t, fetcher.Config{URL: url}, newNetHTTP(t), nil).Fetch(context.Background(), &out)
	if err == nil {
		t.Fatal("expected an error for a closed server")
	}
	if res != nil {
		t.Errorf("result should be nil on failure")
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be written on failure, got %q", out.String())
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	t.Parallel()

	wc := &testutil.DummyWebClient{}
	for _, raw := range []string{"", "ftp://example.com/x", "http://"} {
		var out bytes.Buffer
		if _, err := newFetcher(t, fetcher.Config{URL: raw}, wc, nil).Fetch(context.Background(), &out); err == nil {
			t.Errorf("Fetch(%q): expected error", raw)
		}
	}
	if wc.RequestCount() != 0 {
		t.Errorf("no request should be sent for an invalid URL")
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wc := &testutil.DummyWebClient{ResponseDelay: time.Hour}
	_, err := newFetcher(t, fetcher.Config{URL: "https://example.com"}, wc, nil).Fetch(ctx, io.Discard)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetch_ArchivesRawResponse(t *testing.T) {
	t.Parallel()

	tr, err := tracker.NewSQLiteTracker(logging.NewNopLogger(), &tracker.Config{StoragePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewSQLiteTracker: %v", err)
	}
	defer tr.Close()

	wc := &testutil.DummyWebClient{
		Body:    []byte("caf\xe9"),
		Headers: http.Header{"Content-Type": {"text/html; charset=iso-8859-1"}},
	}
	f := newFetcher(t, fetcher.Config{URL: "https://cgs.obs.carnegiescience.edu" + tablePath}, wc, tr)

	var out bytes.Buffer
	res, err := f.Fetch(context.Background(), &out)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.CommitErr != nil || res.Commit == nil {
		t.Fatalf("expected a commit, got err=%v", res.CommitErr)
	}
	if res.Commit.Version.Message != fetcher.DefaultCommitMessage {
		t.Errorf("message = %q", res.Commit.Version.Message)
	}

	snap, err := tr.Get(context.Background(), res.Commit.Version.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(snap.Body, []byte("caf\xe9")) {
		t.Errorf("archive should hold raw bytes, got %q", snap.Body)
	}
	if out.String() != "café" {
		t.Errorf("output = %q", out.String())
	}
}

func TestFetch_ArchiveFailureDoesNotFailFetch(t *testing.T) {
	t.Parallel()

	tr := &testutil.DummyTracker{CommitErr: errors.New("disk full")}
	logger := &testutil.DummyLogger{}
	f, err := fetcher.New(fetcher.Config{URL: "https://example.com"}, &testutil.DummyWebClient{Body: []byte("ok")}, tr, logger)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	res, err := f.Fetch(context.Background(), &out)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.CommitErr == nil {
		t.Error("expected CommitErr to be reported")
	}
	if out.String() != "ok" {
		t.Errorf("output = %q", out.String())
	}
	if len(logger.Errors) != 1 {
		t.Errorf("expected one error log, got %v", logger.Errors)
	}
}

func TestNew_RequiresWebClient(t *testing.T) {
	if _, err := fetcher.New(fetcher.Config{}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil webclient")
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        []byte
	}{
		{"utf-8 passthrough", []byte("héllo"), "text/html; charset=utf-8", []byte("héllo")},
		{"latin-1 header", []byte("\xe9t\xe9"), "text/plain; charset=ISO-8859-1", []byte("été")},
		{"meta sniffed", []byte(`<meta charset="windows-1252"><p>caf` + "\xe9"), "text/html", []byte(`<meta charset="windows-1252"><p>café`)},
		{"binary untouched", []byte{0xff, 0x00, 0xfe}, "application/octet-stream", []byte{0xff, 0x00, 0xfe}},
		{"no content type utf-8", []byte("plain"), "", []byte("plain")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fetcher.DecodeBody(tc.body, tc.contentType)
			if err != nil {
				t.Fatalf("DecodeBody: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("DecodeBody = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeBody_LongUTF8WithoutCharset(t *testing.T) {
	body := []byte("<html><body>" + strings.Repeat("<!-- pad -->", 100) +
		"<table><tr><td>Ångström NGC 1087</td></tr></table></body></html>")
	if len(body) <= 1024 {
		t.Fatalf("body must exceed the sniff window, got %d bytes", len(body))
	}

	for _, contentType := range []string{"", "text/html"} {
		got, err := fetcher.DecodeBody(body, contentType)
		if err != nil {
			t.Fatalf("DecodeBody(%q): %v", contentType, err)
		}
		if !bytes.Equal(got, body) {
			t.Errorf("DecodeBody(%q) altered utf-8 body, tail %q", contentType, got[len(got)-60:])
		}
	}
}

func TestFetch_LongUTF8BodyWithBareContentType(t *testing.T) {
	t.Parallel()

	body := "<html>" + strings.Repeat("<!-- pad -->", 100) + "<td>Ångström</td></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, body)
	}))
	defer srv.Close()

	var out bytes.Buffer
	if _, err := newFetcher(t, fetcher.Config{URL: srv.URL}, newNetHTTP(t), nil).Fetch(context.Background(), &out); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if out.String() != body {
		t.Errorf("stdout altered, tail %q", out.String()[out.Len()-30:])
	}
}
