package tracker

import (
	"context"
	"errors"
)

var ErrVersionNotFound = errors.New("version not found")

// Tracker is the contract for versioning fetched page snapshots.
// Implementations should be safe for concurrent use.
type Tracker interface {
	// Commit stores a snapshot and returns the version record it created.
	// The parent is the latest version for the same canonical URL.
	Commit(ctx context.Context, snapshot *Snapshot, message string) (*CommitResult, error)

	// GetVersion returns version metadata without loading the body.
	GetVersion(ctx context.Context, versionID string) (*Version, error)

	// Get returns the snapshot (with body) a version points at.
	Get(ctx context.Context, versionID string) (*Snapshot, error)

	// Latest returns the newest version recorded for url.
	Latest(ctx context.Context, url string) (*Version, error)

	// ListVersions returns versions newest first. An empty url lists every URL.
	ListVersions(ctx context.Context, url string, limit int) ([]*Version, error)

	// Diff computes the line delta between two versions.
	// If baseID == "" the base is an empty document.
	Diff(ctx context.Context, baseID, headID string) (*BodyDiff, error)

	Close() error
}
