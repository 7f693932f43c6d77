package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raysh454/cgscrape/internal/fetcher"
	"github.com/raysh454/cgscrape/internal/tracker"
)

type decodeFunc func([]byte) ([]byte, error)

func diffCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [<base>] [<head>]",
		Short: "Show changed lines between two archived versions",
		Long: `Show changed lines between two archived versions.

With no arguments the latest version of --url is compared with its parent.
With one argument that version is compared with its parent. A version
without a parent is compared with an empty document. Lines are decoded with
each version's stored charset unless --raw is set.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := st.app.Tracker()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var baseID, headID string
			switch len(args) {
			case 2:
				baseID, headID = args[0], args[1]
			case 1:
				head, err := tr.GetVersion(ctx, args[0])
				if err != nil {
					return err
				}
				baseID, headID = head.Parent, head.ID
			default:
				head, err := tr.Latest(ctx, st.app.Config.URL)
				if err != nil {
					return err
				}
				baseID, headID = head.Parent, head.ID
			}

			diff, err := tr.Diff(ctx, baseID, headID)
			if err != nil {
				return err
			}

			decodeBase, decodeHead := decodeFunc(passthrough), decodeFunc(passthrough)
			if !st.app.Config.Fetch.Raw {
				if decodeBase, err = versionDecoder(ctx, tr, baseID); err != nil {
					return err
				}
				if decodeHead, err = versionDecoder(ctx, tr, headID); err != nil {
					return err
				}
			}
			return writeDiff(cmd.OutOrStdout(), diff, decodeBase, decodeHead)
		},
	}
	return cmd
}

func passthrough(b []byte) ([]byte, error) { return b, nil }

// versionDecoder returns the decoder for an archived body. The empty id is
// the empty document.
func versionDecoder(ctx context.Context, tr tracker.Tracker, id string) (decodeFunc, error) {
	if id == "" {
		return passthrough, nil
	}
	snap, err := tr.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return fetcher.BodyDecoder(snap.Body, http.Header(snap.Headers).Get("Content-Type")), nil
}

// writeDiff prints each changed line prefixed with "+" or "-". Removed lines
// are decoded as base content, added lines as head content.
func writeDiff(w io.Writer, diff *tracker.BodyDiff, decodeBase, decodeHead decodeFunc) error {
	for _, chunk := range diff.Chunks {
		prefix, decode := "+", decodeHead
		if chunk.Type == "removed" {
			prefix, decode = "-", decodeBase
		}
		content, err := decode([]byte(chunk.Content))
		if err != nil {
			return err
		}
		for _, line := range strings.SplitAfter(string(content), "\n") {
			if line == "" {
				continue
			}
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			fmt.Fprint(w, prefix+line)
		}
	}
	return nil
}
