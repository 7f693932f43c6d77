package server

// DefaultAddr is where `cgscrape serve` listens when no address is configured.
const DefaultAddr = "127.0.0.1:8080"

type Config struct {
	// Addr is the HTTP listen address for the archive API.
	Addr string `mapstructure:"addr"`

	// DefaultLimit bounds /versions when no limit is given.
	DefaultLimit int `mapstructure:"default_limit"`
}
