package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/raysh454/cgscrape/internal/logging"
	"github.com/raysh454/cgscrape/internal/tracker"
	"github.com/raysh454/cgscrape/internal/utils"
	"github.com/raysh454/cgscrape/internal/webclient"
)

// StatusError is returned when FailOnStatus is set and the server answered
// with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Result describes one completed fetch.
type Result struct {
	Response *webclient.Response

	// Text is what was written to the output.
	Text []byte

	// Commit is set when the response was archived.
	Commit *tracker.CommitResult

	// CommitErr is set when archiving failed. The body was still written.
	CommitErr error
}

// Module: fetcher
// Gets one page and writes its body out, optionally archiving it.
type Fetcher struct {
	cfg     Config
	wc      webclient.WebClient
	tracker tracker.Tracker
	logger  logging.Logger
}

// New creates a Fetcher. tr may be nil, in which case nothing is archived.
func New(cfg Config, wc webclient.WebClient, tr tracker.Tracker, logger logging.Logger) (*Fetcher, error) {
	if wc == nil {
		return nil, errors.New("fetcher: webclient is nil")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Fetcher{
		cfg:     cfg,
		wc:      wc,
		tracker: tr,
		logger:  logger.With(logging.Field{Key: "component", Value: "fetcher"}),
	}, nil
}

// Fetch issues a single GET to the configured URL and writes the body to out.
// Nothing is written when the request or decoding fails.
func (f *Fetcher) Fetch(ctx context.Context, out io.Writer) (*Result, error) {
	if _, err := utils.ValidateTarget(f.cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	target := strings.TrimSpace(f.cfg.URL)

	start := time.Now()
	resp, err := f.wc.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("error GETting %s: %w", target, err)
	}

	f.logger.Info("fetched page",
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "bytes", Value: len(resp.Body)},
		logging.Field{Key: "elapsed", Value: time.Since(start).String()})

	text := resp.Body
	if !f.cfg.Raw {
		text, err = DecodeBody(resp.Body, resp.ContentType())
		if err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
	}

	if _, err := out.Write(text); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}

	result := &Result{Response: resp, Text: text}

	if f.tracker != nil {
		result.Commit, result.CommitErr = CommitResponse(ctx, f.tracker, resp, f.cfg.commitMessage())
		if result.CommitErr != nil {
			f.logger.Error("failed to archive response", logging.Field{Key: "error", Value: result.CommitErr.Error()})
		} else {
			f.logger.Info("archived response",
				logging.Field{Key: "version_id", Value: result.Commit.Version.ID},
				logging.Field{Key: "changed", Value: result.Commit.Changed})
		}
	}

	if !resp.OK() {
		f.logger.Warn("non-2xx response",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "status", Value: resp.StatusCode})
		if f.cfg.FailOnStatus {
			return result, &StatusError{StatusCode: resp.StatusCode, URL: target}
		}
	}

	return result, nil
}

// DecodeBody converts body to UTF-8 using the charset in contentType, or one
// sniffed from the document when the header names none. Non-text bodies are
// returned unchanged, as are bodies that are valid UTF-8 and carry no
// authoritative charset.
func DecodeBody(body []byte, contentType string) ([]byte, error) {
	return BodyDecoder(body, contentType)(body)
}

// BodyDecoder picks the encoding for the whole of body and returns a function
// that applies it to any line-aligned piece of that body.
func BodyDecoder(body []byte, contentType string) func([]byte) ([]byte, error) {
	if !isTextual(contentType) {
		return passthrough
	}
	// Sniffing only sees the first 1024 bytes.
	enc, _, certain := charset.DetermineEncoding(body, contentType)
	if !certain && utf8.Valid(body) {
		return passthrough
	}
	return func(b []byte) ([]byte, error) {
		return enc.NewDecoder().Bytes(b)
	}
}

func passthrough(b []byte) ([]byte, error) { return b, nil }

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if _, ok := params["charset"]; ok {
		return true
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/xhtml+xml",
		mediaType == "application/xml":
		return true
	}
	return false
}
