package tracker

import (
	"time"

	"github.com/raysh454/cgscrape/internal/webclient"
)

// Snapshot represents one captured response.
type Snapshot struct {
	// ID is assigned by the tracker.
	ID string `json:"id,omitempty"`

	URL        string              `json:"url"`
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers,omitempty"`

	// Body contains the raw response bytes.
	Body []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Version represents an entry in the archive history.
type Version struct {
	ID         string    `json:"id"`
	Parent     string    `json:"parent,omitempty"`
	SnapshotID string    `json:"snapshot_id"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	BlobID     string    `json:"blob_id"`
	Size       int64     `json:"size"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CommitResult is returned by Commit.
type CommitResult struct {
	Version Version `json:"version"`

	// Changed is false when the body is byte-identical to the parent's.
	// A first version is always Changed.
	Changed bool `json:"changed"`

	// Diff against the parent, nil for a first version.
	Diff *BodyDiff `json:"diff,omitempty"`
}

// DiffChunk is one run of added or removed lines.
type DiffChunk struct {
	Type    string `json:"type"` // "added" or "removed"
	Line    int    `json:"line"` // 1-based; head line for added, base line for removed
	Content string `json:"content"`
}

// BodyDiff represents the structured body diff.
type BodyDiff struct {
	BaseID  string      `json:"base_id,omitempty"`
	HeadID  string      `json:"head_id"`
	Chunks  []DiffChunk `json:"chunks"`
	Added   int         `json:"added"`
	Removed int         `json:"removed"`
}

// Empty reports whether the two versions had identical bodies.
func (d *BodyDiff) Empty() bool {
	return d == nil || len(d.Chunks) == 0
}

// NewSnapshotFromResponse converts a webclient.Response to a Snapshot.
func NewSnapshotFromResponse(resp *webclient.Response) *Snapshot {
	if resp == nil {
		return nil
	}

	snap := &Snapshot{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Headers:    resp.Headers,
		CreatedAt:  resp.FetchedAt,
	}
	if resp.Request != nil {
		snap.URL = resp.Request.URL
	}
	return snap
}
