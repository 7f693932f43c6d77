package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/raysh454/cgscrape/internal/logging"
	"github.com/raysh454/cgscrape/internal/utils"
)

const versionColumns = `
	v.id, v.parent_id, v.snapshot_id, v.url, v.message, v.timestamp,
	s.status_code, s.blob_id, s.size`

// SQLiteTracker implements Tracker using SQLite for metadata storage
// and a content-addressed blob store for bodies.
type SQLiteTracker struct {
	db     *sql.DB
	store  *FSStore
	logger logging.Logger
	config *Config
}

// NewSQLiteTracker opens (or creates) the archive under config.StoragePath.
func NewSQLiteTracker(logger logging.Logger, config *Config) (*SQLiteTracker, error) {
	if logger == nil {
		return nil, errors.New("tracker: nil logger provided")
	}
	if config == nil || config.StoragePath == "" {
		return nil, errors.New("tracker: storage path is required")
	}

	if err := os.MkdirAll(config.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	dbPath := filepath.Join(config.StoragePath, DatabaseFile)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per-connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	store, err := NewFSStore(filepath.Join(config.StoragePath, "blobs"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create FSStore: %w", err)
	}

	logger.Info("SQLiteTracker initialized", logging.Field{Key: "storage_path", Value: config.StoragePath})

	return &SQLiteTracker{
		db:     db,
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

func (t *SQLiteTracker) Commit(ctx context.Context, snapshot *Snapshot, message string) (*CommitResult, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot cannot be nil")
	}
	if message == "" {
		return nil, errors.New("commit message cannot be empty")
	}

	canonical, err := utils.Canonicalize(snapshot.URL, utils.DefaultCanonicalizeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize snapshot URL: %w", err)
	}

	t.logger.Debug("Starting commit",
		logging.Field{Key: "url", Value: canonical},
		logging.Field{Key: "message", Value: message})

	blobID, err := t.store.Put(snapshot.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to store snapshot body: %w", err)
	}

	headersJSON, err := json.Marshal(normalizeHeaders(snapshot.Headers, t.config.redact()))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal headers: %w", err)
	}

	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	snapshotID := uuid.New().String()
	versionID := uuid.New().String()
	timestamp := time.Now().Unix()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			t.logger.Warn("Failed to rollback transaction", logging.Field{Key: "error", Value: rbErr.Error()})
		}
	}()

	var parentID, parentBlob string
	err = tx.QueryRowContext(ctx, `
		SELECT v.id, s.blob_id
		FROM versions v JOIN snapshots s ON s.id = v.snapshot_id
		WHERE v.url = ?
		ORDER BY v.seq DESC
		LIMIT 1
	`, canonical).Scan(&parentID, &parentBlob)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up parent version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, url, status_code, headers, blob_id, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snapshotID, canonical, snapshot.StatusCode, string(headersJSON), blobID, len(snapshot.Body), createdAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (id, parent_id, snapshot_id, url, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, versionID, nullableString(parentID), snapshotID, canonical, message, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	var diff *BodyDiff
	if parentID != "" {
		diff, err = t.diffAgainstParent(ctx, tx, parentID, parentBlob, versionID, snapshot.Body)
		if err != nil {
			t.logger.Warn("Failed to compute diff, continuing", logging.Field{Key: "error", Value: err.Error()})
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	changed := parentID == "" || parentBlob != blobID

	t.logger.Info("Commit successful",
		logging.Field{Key: "version_id", Value: versionID},
		logging.Field{Key: "parent_id", Value: parentID},
		logging.Field{Key: "changed", Value: changed})

	return &CommitResult{
		Version: Version{
			ID:         versionID,
			Parent:     parentID,
			SnapshotID: snapshotID,
			URL:        canonical,
			StatusCode: snapshot.StatusCode,
			BlobID:     blobID,
			Size:       int64(len(snapshot.Body)),
			Message:    message,
			Timestamp:  time.Unix(timestamp, 0),
		},
		Changed: changed,
		Diff:    diff,
	}, nil
}

func (t *SQLiteTracker) diffAgainstParent(ctx context.Context, tx *sql.Tx, parentID, parentBlob, headID string, headBody []byte) (*BodyDiff, error) {
	parentBody, err := t.store.Get(parentBlob)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent body: %w", err)
	}
	diff := computeLineDiff(parentID, headID, parentBody, headBody)
	if err := t.storeDiff(ctx, tx, diff); err != nil {
		return diff, err
	}
	return diff, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (t *SQLiteTracker) storeDiff(ctx context.Context, ex execer, diff *BodyDiff) error {
	diffJSON, err := json.Marshal(toStoredDiff(diff))
	if err != nil {
		return fmt.Errorf("failed to marshal diff: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT OR IGNORE INTO diffs (id, base_version_id, head_version_id, diff_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), diff.BaseID, diff.HeadID, string(diffJSON), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store diff: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*Version, error) {
	var v Version
	var parentID, message sql.NullString
	var timestamp int64

	if err := row.Scan(&v.ID, &parentID, &v.SnapshotID, &v.URL, &message, &timestamp,
		&v.StatusCode, &v.BlobID, &v.Size); err != nil {
		return nil, err
	}
	v.Parent = parentID.String
	v.Message = message.String
	v.Timestamp = time.Unix(timestamp, 0)
	return &v, nil
}

func (t *SQLiteTracker) GetVersion(ctx context.Context, versionID string) (*Version, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions v JOIN snapshots s ON s.id = v.snapshot_id
		WHERE v.id = ?
	`, versionID)

	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query version: %w", err)
	}
	return v, nil
}

func (t *SQLiteTracker) Get(ctx context.Context, versionID string) (*Snapshot, error) {
	var snap Snapshot
	var headersJSON sql.NullString
	var blobID string
	var createdAt int64

	err := t.db.QueryRowContext(ctx, `
		SELECT s.id, s.url, s.status_code, s.headers, s.blob_id, s.created_at
		FROM versions v JOIN snapshots s ON s.id = v.snapshot_id
		WHERE v.id = ?
	`, versionID).Scan(&snap.ID, &snap.URL, &snap.StatusCode, &headersJSON, &blobID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	if headersJSON.Valid && headersJSON.String != "" {
		if err := json.Unmarshal([]byte(headersJSON.String), &snap.Headers); err != nil {
			t.logger.Warn("Failed to parse stored headers", logging.Field{Key: "error", Value: err.Error()})
		}
	}
	snap.CreatedAt = time.Unix(createdAt, 0)

	body, err := t.store.Get(blobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot body: %w", err)
	}
	snap.Body = body

	return &snap, nil
}

func (t *SQLiteTracker) Latest(ctx context.Context, url string) (*Version, error) {
	canonical, err := utils.Canonicalize(url, utils.DefaultCanonicalizeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize URL: %w", err)
	}

	row := t.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions v JOIN snapshots s ON s.id = v.snapshot_id
		WHERE v.url = ?
		ORDER BY v.seq DESC
		LIMIT 1
	`, canonical)

	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no versions for %s", ErrVersionNotFound, canonical)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest version: %w", err)
	}
	return v, nil
}

func (t *SQLiteTracker) ListVersions(ctx context.Context, url string, limit int) ([]*Version, error) {
	t.logger.Debug("Listing versions", logging.Field{Key: "url", Value: url}, logging.Field{Key: "limit", Value: limit})

	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + versionColumns + `
		FROM versions v JOIN snapshots s ON s.id = v.snapshot_id`
	args := []any{}
	if url != "" {
		canonical, err := utils.Canonicalize(url, utils.DefaultCanonicalizeOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to canonicalize URL: %w", err)
		}
		query += ` WHERE v.url = ?`
		args = append(args, canonical)
	}
	query += ` ORDER BY v.seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

func (t *SQLiteTracker) Diff(ctx context.Context, baseID, headID string) (*BodyDiff, error) {
	if headID == "" {
		return nil, errors.New("head version id is required")
	}

	var diffJSON string
	err := t.db.QueryRowContext(ctx, `
		SELECT diff_json FROM diffs WHERE base_version_id = ? AND head_version_id = ?
	`, baseID, headID).Scan(&diffJSON)
	switch {
	case err == nil:
		var cached storedDiff
		if err := json.Unmarshal([]byte(diffJSON), &cached); err == nil {
			return cached.bodyDiff(), nil
		}
		t.logger.Warn("Discarding unreadable cached diff", logging.Field{Key: "head_id", Value: headID})
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to query diff: %w", err)
	}

	var baseBody []byte
	if baseID != "" {
		base, err := t.Get(ctx, baseID)
		if err != nil {
			return nil, err
		}
		baseBody = base.Body
	}
	head, err := t.Get(ctx, headID)
	if err != nil {
		return nil, err
	}

	diff := computeLineDiff(baseID, headID, baseBody, head.Body)
	if err := t.storeDiff(ctx, t.db, diff); err != nil {
		t.logger.Warn("Failed to cache diff", logging.Field{Key: "error", Value: err.Error()})
	}
	return diff, nil
}

func (t *SQLiteTracker) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}
