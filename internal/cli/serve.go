package cli

import (
	"github.com/spf13/cobra"
)

func serveCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the archive over a read-only HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := st.app.Server()
			if err != nil {
				return err
			}
			return s.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8080)")
	st.bind(cmd.Flags(), map[string]string{"server.addr": "addr"})
	return cmd
}
