package fetcher

import (
	"context"
	"fmt"

	"github.com/raysh454/cgscrape/internal/tracker"
	"github.com/raysh454/cgscrape/internal/webclient"
)

// CommitResponse archives a webclient response as a snapshot.
// This bridges the fetcher (which works with webclient.Response) and the
// tracker (which works with tracker.Snapshot).
//
// The raw body is stored, not the decoded text, so `show --raw` returns
// exactly what the server sent.
func CommitResponse(ctx context.Context, tr tracker.Tracker, resp *webclient.Response, message string) (*tracker.CommitResult, error) {
	if tr == nil {
		return nil, fmt.Errorf("tracker cannot be nil")
	}
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	snapshot := tracker.NewSnapshotFromResponse(resp)
	if snapshot.URL == "" {
		return nil, fmt.Errorf("response has no request URL")
	}
	if message == "" {
		message = fmt.Sprintf("Fetched %s", snapshot.URL)
	}

	result, err := tr.Commit(ctx, snapshot, message)
	if err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return result, nil
}
