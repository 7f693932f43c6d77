package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultIdleAfter = 2 * time.Second
)

// Config selects and tunes a WebClient backend.
type Config struct {
	Client Client `mapstructure:"backend"`

	// Timeout bounds a whole request. Zero means DefaultTimeout.
	Timeout time.Duration `mapstructure:"timeout"`

	// ShowBrowser and IdleAfter only apply to the chromedp backend.
	ShowBrowser bool          `mapstructure:"show_browser"`
	IdleAfter   time.Duration `mapstructure:"idle_after"`
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) idleAfter() time.Duration {
	if c.IdleAfter <= 0 {
		return DefaultIdleAfter
	}
	return c.IdleAfter
}
