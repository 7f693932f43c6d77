package cli

import (
	"github.com/spf13/cobra"
)

func fetchCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "GET the page and write its body to stdout (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, st)
		},
	}
	return cmd
}

func runFetch(cmd *cobra.Command, st *state) error {
	f, err := st.app.Fetcher()
	if err != nil {
		return err
	}
	_, err = f.Fetch(cmd.Context(), cmd.OutOrStdout())
	return err
}
