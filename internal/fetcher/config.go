package fetcher

// DefaultCommitMessage is recorded on archived versions when none is set.
const DefaultCommitMessage = "fetch"

type Config struct {
	// URL is the page to GET.
	URL string `mapstructure:"url"`

	// Raw writes the response bytes without charset decoding.
	Raw bool `mapstructure:"raw"`

	// FailOnStatus turns a non-2xx response into a *StatusError after the
	// body has been written.
	FailOnStatus bool `mapstructure:"fail_on_status"`

	CommitMessage string `mapstructure:"commit_message"`
}

func (c Config) commitMessage() string {
	if c.CommitMessage == "" {
		return DefaultCommitMessage
	}
	return c.CommitMessage
}
