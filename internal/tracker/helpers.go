package tracker

import (
	"database/sql"
	"embed"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

//go:embed schema.sql
var schemaFS embed.FS

// applySchema applies the SQLite schema to the database and sets pragmas.
func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}

	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// computeLineDiff diffs base against head line by line.
func computeLineDiff(baseID, headID string, base, head []byte) *BodyDiff {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(string(base), string(head))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	result := &BodyDiff{
		BaseID: baseID,
		HeadID: headID,
		Chunks: make([]DiffChunk, 0),
	}

	baseLine, headLine := 0, 0
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			baseLine += n
			headLine += n
		case diffmatchpatch.DiffDelete:
			result.Chunks = append(result.Chunks, DiffChunk{Type: "removed", Line: baseLine + 1, Content: d.Text})
			result.Removed += n
			baseLine += n
		case diffmatchpatch.DiffInsert:
			result.Chunks = append(result.Chunks, DiffChunk{Type: "added", Line: headLine + 1, Content: d.Text})
			result.Added += n
			headLine += n
		}
	}

	return result
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// storedDiff is the diff_json form of a BodyDiff. Chunk content is kept as
// bytes so bodies that are not UTF-8 survive the round trip.
type storedDiff struct {
	BaseID  string        `json:"base_id,omitempty"`
	HeadID  string        `json:"head_id"`
	Chunks  []storedChunk `json:"chunks"`
	Added   int           `json:"added"`
	Removed int           `json:"removed"`
}

type storedChunk struct {
	Type    string `json:"type"`
	Line    int    `json:"line"`
	Content []byte `json:"content"`
}

func toStoredDiff(d *BodyDiff) *storedDiff {
	out := &storedDiff{BaseID: d.BaseID, HeadID: d.HeadID, Added: d.Added, Removed: d.Removed}
	out.Chunks = make([]storedChunk, len(d.Chunks))
	for i, c := range d.Chunks {
		out.Chunks[i] = storedChunk{Type: c.Type, Line: c.Line, Content: []byte(c.Content)}
	}
	return out
}

func (d *storedDiff) bodyDiff() *BodyDiff {
	out := &BodyDiff{BaseID: d.BaseID, HeadID: d.HeadID, Added: d.Added, Removed: d.Removed}
	out.Chunks = make([]DiffChunk, len(d.Chunks))
	for i, c := range d.Chunks {
		out.Chunks[i] = DiffChunk{Type: c.Type, Line: c.Line, Content: string(c.Content)}
	}
	return out
}

var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"Set-Cookie":          {},
}

const redacted = "[REDACTED]"

// normalizeHeaders canonicalizes header names and optionally redacts
// credential-bearing values. The input is not modified.
func normalizeHeaders(headers map[string][]string, redact bool) map[string][]string {
	out := make(map[string][]string, len(headers))
	for k, vs := range headers {
		key := http.CanonicalHeaderKey(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if _, ok := sensitiveHeaders[key]; ok && redact {
			out[key] = []string{redacted}
			continue
		}
		out[key] = append(out[key], vs...)
	}
	return out
}

// AtomicWriteFile writes data to a temp file in the target directory, syncs
// it and renames it into place, so readers never see a partial file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tmpFile = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{
		String: s,
		Valid:  s != "",
	}
}
