package common

import (
	"context"

	"github.com/streamsieve/streamsieve/internal/indexer/fetch"
)

// Getter is the page-retrieval surface drivers depend on. The protected
// fetcher satisfies it; tests substitute canned responses.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}
