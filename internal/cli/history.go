package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func historyCmd(st *state) *cobra.Command {
	var (
		limit  int
		forURL string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived versions, newest first",
		Long: `List archived versions, newest first, one per line:

	<version-id> <parent-id|-> <status> <bytes> <timestamp> <url>

Fields are tab-separated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := st.app.Tracker()
			if err != nil {
				return err
			}
			versions, err := tr.ListVersions(cmd.Context(), forURL, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, v := range versions {
				parent := v.Parent
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(out, "%s\t%s\t%d\t%d\t%s\t%s\n",
					v.ID, parent, v.StatusCode, v.Size, v.Timestamp.UTC().Format(time.RFC3339), v.URL)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of versions to list")
	cmd.Flags().StringVar(&forURL, "for", "", "only list versions of this URL")
	return cmd
}
