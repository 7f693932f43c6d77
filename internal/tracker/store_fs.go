package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore implements content-addressed blob storage on the filesystem.
// Blobs are named by their SHA-256 hash; the first two characters of the
// hash form a subdirectory to avoid too many files in one directory.
type FSStore struct {
	blobsDir string
}

// NewFSStore creates a new FSStore rooted at the given blobs directory.
func NewFSStore(blobsDir string) (*FSStore, error) {
	if err := os.MkdirAll(blobsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}
	return &FSStore{blobsDir: blobsDir}, nil
}

// Put stores content and returns its content-addressed ID (SHA-256 hex).
// If the content already exists, it returns the existing ID without rewriting.
func (fs *FSStore) Put(data []byte) (string, error) {
	hash := sha256.Sum256(data)
	hashStr := hex.EncodeToString(hash[:])

	blobPath := fs.blobPath(hashStr)
	if _, err := os.Stat(blobPath); err == nil {
		return hashStr, nil
	}

	if err := AtomicWriteFile(blobPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return hashStr, nil
}

// Get retrieves content by its content-addressed ID and verifies its hash.
func (fs *FSStore) Get(blobID string) ([]byte, error) {
	data, err := os.ReadFile(fs.blobPath(blobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", blobID)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	hash := sha256.Sum256(data)
	if hashStr := hex.EncodeToString(hash[:]); hashStr != blobID {
		return nil, fmt.Errorf("blob integrity check failed: expected %s, got %s", blobID, hashStr)
	}

	return data, nil
}

// Exists checks if a blob with the given ID exists.
func (fs *FSStore) Exists(blobID string) bool {
	_, err := os.Stat(fs.blobPath(blobID))
	return err == nil
}

// blobPath returns blobsDir/{first2chars}/{fullhash}.
func (fs *FSStore) blobPath(blobID string) string {
	// IDs are hex; anything else must not escape blobsDir.
	if len(blobID) < 2 || !isHex(blobID) {
		return filepath.Join(fs.blobsDir, "__invalid__", filepath.Base(blobID))
	}
	return filepath.Join(fs.blobsDir, blobID[:2], blobID)
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
