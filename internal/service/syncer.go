package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quarryproj/quarry/internal/domain"
)

// FeedSyncer is the default Syncer. It verifies the feed's repodata
// index is reachable; actual package diffing is delegated to the
// consumer agents and not performed here.
type FeedSyncer struct {
	client *http.Client
}

// NewFeedSyncer creates a syncer with a bounded HTTP client.
func NewFeedSyncer(timeout time.Duration) *FeedSyncer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedSyncer{client: &http.Client{Timeout: timeout}}
}

// Sync checks the feed's repomd.xml and returns the repository's
// package count.
func (f *FeedSyncer) Sync(ctx context.Context, repo *domain.Repository) (int, error) {
	if repo.FeedURL == "" {
		// Feedless repositories hold only locally uploaded content.
		return repo.PackageCount, nil
	}

	url := strings.TrimSuffix(repo.FeedURL, "/") + "/repodata/repomd.xml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feed %s unreachable: %w", repo.FeedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed %s returned status %d", repo.FeedURL, resp.StatusCode)
	}
	return repo.PackageCount, nil
}

var _ Syncer = (*FeedSyncer)(nil)
