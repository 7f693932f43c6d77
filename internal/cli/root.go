// Package cli implements the cgscrape command tree.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/raysh454/cgscrape/internal/app"
	"github.com/raysh454/cgscrape/internal/logging"
)

// state is shared by every command of one invocation.
type state struct {
	v          *viper.Viper
	configPath string
	app        *app.Application
}

// Execute runs cgscrape with args. Fetched content goes to stdout; logs and
// errors go to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, st := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	defer func() {
		if st.app != nil {
			if err := st.app.Close(); err != nil {
				st.app.Logger.Warn("closing application", logging.Field{Key: "error", Value: err.Error()})
			}
		}
	}()

	return root.ExecuteContext(ctx)
}

// NewRootCommand returns the root command.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *state) {
	st := &state{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "cgscrape",
		Short: "Fetch the Carnegie-Irvine Galaxy Survey sample table",
		Long: `cgscrape issues a single GET for the CGS sample table (or any --url) and
writes the response body to standard output.

With --archive every fetch is also stored as a versioned snapshot that the
history, show, diff and serve commands read back.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, st)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&st.configPath, "config", "c", "", "path to a YAML config file (default ./cgscrape.yaml or ~/.config/cgscrape/cgscrape.yaml)")
	pf.String("log-level", "", "log level: error, warn, info, debug, trace")
	pf.String("log-format", "", "log format: json or text")
	pf.CountP("verbose", "v", "raise log level by one step per use")
	pf.Bool("archive", false, "record the fetch in the snapshot archive")
	pf.String("archive-dir", "", "archive directory (default ~/.config/cgscrape/archive)")

	pf.String("url", "", "page to fetch (default "+app.DefaultCGSURL+")")
	pf.String("backend", "", "fetch backend: nethttp or chromedp")
	pf.Duration("timeout", 0, "request timeout (default 30s)")
	pf.Bool("show-browser", false, "run Chrome with a visible window (chromedp backend)")
	pf.Bool("raw", false, "write bytes as received, without charset decoding")
	pf.Bool("fail", false, "exit non-zero on a non-2xx status (the body is still written)")

	st.bind(pf, map[string]string{
		"log.level":              "log-level",
		"log.format":             "log-format",
		"log.verbosity":          "verbose",
		"archive.enabled":        "archive",
		"archive.dir":            "archive-dir",
		"url":                    "url",
		"webclient.backend":      "backend",
		"webclient.timeout":      "timeout",
		"webclient.show_browser": "show-browser",
		"fetch.raw":              "raw",
		"fetch.fail_on_status":   "fail",
	})

	cmd.AddCommand(
		fetchCmd(st),
		historyCmd(st),
		showCmd(st),
		diffCmd(st),
		serveCmd(st),
	)

	return cmd, st
}

// bind maps config keys to flags on fs.
func (st *state) bind(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = st.v.BindPFlag(key, fs.Lookup(name))
	}
}

func (st *state) setup(cmd *cobra.Command) error {
	cfg, err := app.LoadConfig(st.v, st.configPath)
	if err != nil {
		return err
	}

	opts := cfg.LoggerOptions()
	opts.Output = cmd.ErrOrStderr()
	logger := logging.NewLogger("cgscrape", opts)

	a, err := app.NewApplication(cfg, logger)
	if err != nil {
		return err
	}
	st.app = a

	logger.Debug("configuration loaded",
		logging.Field{Key: "url", Value: cfg.URL},
		logging.Field{Key: "backend", Value: string(cfg.WebClient.Client)},
		logging.Field{Key: "archive", Value: cfg.Archive.Enabled})
	return nil
}
