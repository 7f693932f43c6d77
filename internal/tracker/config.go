package tracker

import (
	"os"
	"path/filepath"
)

// DatabaseFile is the SQLite file name inside the archive directory.
const DatabaseFile = "cgscrape.db"

// Config controls where and how the tracker stores snapshots.
type Config struct {
	// StoragePath is the archive directory. It holds cgscrape.db and blobs/.
	StoragePath string `mapstructure:"dir"`

	// RedactSensitiveHeaders replaces credential-bearing header values before
	// storage. Nil means true.
	RedactSensitiveHeaders *bool `mapstructure:"redact_sensitive_headers"`
}

func (c *Config) redact() bool {
	return c.RedactSensitiveHeaders == nil || *c.RedactSensitiveHeaders
}

// Exists reports whether dir already holds an archive database.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, DatabaseFile))
	return err == nil && !info.IsDir()
}
