package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/raysh454/cgscrape/internal/fetcher"
	"github.com/raysh454/cgscrape/internal/logging"
	"github.com/raysh454/cgscrape/internal/server"
	"github.com/raysh454/cgscrape/internal/tracker"
	"github.com/raysh454/cgscrape/internal/webclient"
)

// ErrNoArchive is returned by read-only archive commands when there is no
// archive to read.
var ErrNoArchive = errors.New("no archive")

// Application is the runtime state container shared by the commands.
// Components are built on first use; `history` never builds a webclient and
// a plain fetch never opens the archive.
type Application struct {
	Config *Config
	Logger logging.Logger

	mu sync.Mutex
	wc webclient.WebClient
	tr tracker.Tracker
}

// NewApplication constructs an Application. A nil logger is replaced by one
// built from cfg.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("application: config is nil")
	}
	if logger == nil {
		logger = logging.NewLogger("cgscrape", cfg.LoggerOptions())
	}
	return &Application{Config: cfg, Logger: logger}, nil
}

// WebClient returns the configured fetch backend.
func (a *Application) WebClient() (webclient.WebClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.wc != nil {
		return a.wc, nil
	}
	wc, err := webclient.NewWebClient(a.Config.WebClient, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("new webclient: %w", err)
	}
	a.wc = wc
	return wc, nil
}

// Tracker opens the archive. It is created only when archive.enabled is set;
// otherwise an archive that was never written yields ErrNoArchive.
func (a *Application) Tracker() (tracker.Tracker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tr != nil {
		return a.tr, nil
	}
	dir := a.Config.Archive.Dir
	if dir == "" {
		return nil, fmt.Errorf("%w: archive.dir is not set", ErrNoArchive)
	}
	if !a.Config.Archive.Enabled && !tracker.Exists(dir) {
		return nil, fmt.Errorf("%w in %s, fetch with --archive first", ErrNoArchive, dir)
	}
	tr, err := tracker.NewSQLiteTracker(a.Logger.With(logging.Field{Key: "component", Value: "tracker"}), a.Config.TrackerConfig())
	if err != nil {
		return nil, fmt.Errorf("new tracker: %w", err)
	}
	a.tr = tr
	return tr, nil
}

// Fetcher builds a fetcher. It archives only when archive.enabled is set.
func (a *Application) Fetcher() (*fetcher.Fetcher, error) {
	wc, err := a.WebClient()
	if err != nil {
		return nil, err
	}

	var tr tracker.Tracker
	if a.Config.Archive.Enabled {
		if tr, err = a.Tracker(); err != nil {
			return nil, err
		}
	}

	f, err := fetcher.New(a.Config.FetcherConfig(), wc, tr, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("new fetcher: %w", err)
	}
	return f, nil
}

// Server builds the archive API over the configured archive.
func (a *Application) Server() (*server.Server, error) {
	tr, err := a.Tracker()
	if err != nil {
		return nil, err
	}
	return server.NewServer(a.Config.Server, tr, a.Logger)
}

// Close releases whatever components were built.
func (a *Application) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	if a.wc != nil {
		if err := a.wc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close webclient: %w", err)
		}
		a.wc = nil
	}
	if a.tr != nil {
		if err := a.tr.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close tracker: %w", err)
		}
		a.tr = nil
	}
	return firstErr
}
