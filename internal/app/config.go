package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/raysh454/cgscrape/internal/fetcher"
	"github.com/raysh454/cgscrape/internal/logging"
	"github.com/raysh454/cgscrape/internal/server"
	"github.com/raysh454/cgscrape/internal/tracker"
	"github.com/raysh454/cgscrape/internal/utils"
	"github.com/raysh454/cgscrape/internal/webclient"
)

// DefaultCGSURL is the Carnegie-Irvine Galaxy Survey sample table.
const DefaultCGSURL = "https://cgs.obs.carnegiescience.edu/CGS/database_tables/sample1.html"

const (
	EnvPrefix      = "CGSCRAPE"
	configName     = "cgscrape"
	defaultArchive = "~/.config/cgscrape/archive"
)

// Config is the full runtime configuration. It is populated from defaults,
// an optional YAML file, CGSCRAPE_* environment variables and bound flags,
// in increasing order of precedence.
type Config struct {
	URL string `mapstructure:"url"`

	WebClient webclient.Config `mapstructure:"webclient"`
	Archive   ArchiveConfig    `mapstructure:"archive"`
	Server    server.Config    `mapstructure:"server"`
	Log       LogConfig        `mapstructure:"log"`
	Fetch     FetchConfig      `mapstructure:"fetch"`
}

type ArchiveConfig struct {
	// Enabled makes every fetch record a snapshot.
	Enabled bool `mapstructure:"enabled"`

	// Dir holds the archive. history, show, diff and serve read from it
	// whether or not Enabled is set.
	Dir string `mapstructure:"dir"`

	RedactSensitiveHeaders bool `mapstructure:"redact_sensitive_headers"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Verbosity int    `mapstructure:"verbosity"`
}

type FetchConfig struct {
	Raw           bool   `mapstructure:"raw"`
	FailOnStatus  bool   `mapstructure:"fail_on_status"`
	CommitMessage string `mapstructure:"commit_message"`
}

// SetDefaults registers every known key on v. Keys must be known to viper
// for AutomaticEnv to apply to them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("url", DefaultCGSURL)

	v.SetDefault("webclient.backend", string(webclient.ClientNetHTTP))
	v.SetDefault("webclient.timeout", webclient.DefaultTimeout)
	v.SetDefault("webclient.show_browser", false)
	v.SetDefault("webclient.idle_after", webclient.DefaultIdleAfter)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dir", defaultArchive)
	v.SetDefault("archive.redact_sensitive_headers", true)

	v.SetDefault("server.addr", server.DefaultAddr)
	v.SetDefault("server.default_limit", 50)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.verbosity", 0)

	v.SetDefault("fetch.raw", false)
	v.SetDefault("fetch.fail_on_status", false)
	v.SetDefault("fetch.commit_message", fetcher.DefaultCommitMessage)
}

// LoadConfig reads configuration into a Config. If path is empty, cgscrape.yaml
// is looked up in the working directory and ~/.config/cgscrape, and a missing
// file is not an error. An explicit path must exist.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cgscrape")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	dir, err := utils.ExpandPath(cfg.Archive.Dir)
	if err != nil {
		return nil, fmt.Errorf("archive dir: %w", err)
	}
	cfg.Archive.Dir = dir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("config: url must not be empty")
	}
	if c.WebClient.Timeout < 0 {
		return fmt.Errorf("config: webclient.timeout must not be negative, got %s", c.WebClient.Timeout)
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		return errors.New("config: archive.enabled requires archive.dir")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	if err := logging.ValidateLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// FetcherConfig returns the fetcher settings for this configuration.
func (c *Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		URL:           c.URL,
		Raw:           c.Fetch.Raw,
		FailOnStatus:  c.Fetch.FailOnStatus,
		CommitMessage: c.Fetch.CommitMessage,
	}
}

// TrackerConfig returns the archive settings for this configuration.
func (c *Config) TrackerConfig() *tracker.Config {
	redact := c.Archive.RedactSensitiveHeaders
	return &tracker.Config{
		StoragePath:            c.Archive.Dir,
		RedactSensitiveHeaders: &redact,
	}
}

// LoggerOptions returns the logging options for this configuration.
func (c *Config) LoggerOptions() logging.Options {
	return logging.Options{
		Level:     c.Log.Level,
		Verbosity: c.Log.Verbosity,
		Format:    c.Log.Format,
	}
}
