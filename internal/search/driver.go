// Package search implements the aggregated search dispatcher: indexer
// selection, tiered fan-out, relevance filtering and deduplication.
package search

import (
	"context"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

// Driver is one per-indexer search implementation. Hand-coded drivers and
// the generic template-driven driver share this surface.
//
// Search never returns an error: a driver that fails for any reason
// contributes an empty list. Errors are a dispatcher-level concept here;
// per-driver failures are accounted in the health store, not surfaced to
// callers.
type Driver interface {
	Name() string
	Supports(ct types.ContentType) bool
	// RequiresSolver reports whether the driver's indexer has been observed
	// to need challenge-solver assistance. Decides fast/slow tier placement.
	RequiresSolver() bool
	Search(ctx context.Context, q types.Query) []types.Result
}
