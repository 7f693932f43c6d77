package cli

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/raysh454/cgscrape/internal/fetcher"
)

func showCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <version>",
		Short: "Write an archived body to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := st.app.Tracker()
			if err != nil {
				return err
			}
			snap, err := tr.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			body := snap.Body
			if !st.app.Config.Fetch.Raw {
				body, err = fetcher.DecodeBody(snap.Body, http.Header(snap.Headers).Get("Content-Type"))
				if err != nil {
					return err
				}
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	return cmd
}
