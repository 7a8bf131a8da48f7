package definition

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

// HealthSeeder receives parsed capability metadata during a sync so the
// search dispatcher can read it from the health store without re-parsing
// definitions.
type HealthSeeder interface {
	SeedCapabilities(ctx context.Context, row *types.HealthRow) error
}

// Store is the definition store: a local cache of upstream definitions plus
// the sync task that refreshes it.
type Store struct {
	cache  *Cache
	repo   *Repository
	seeder HealthSeeder
	logger zerolog.Logger
}

// NewStore creates a definition store.
func NewStore(cache *Cache, repo *Repository, seeder HealthSeeder, logger zerolog.Logger) *Store {
	return &Store{
		cache:  cache,
		repo:   repo,
		seeder: seeder,
		logger: logger.With().Str("component", "definition-store").Logger(),
	}
}

// GetDefinition returns the cached definition for id.
func (s *Store) GetDefinition(id string) (*Definition, error) {
	return s.cache.Get(id)
}

// GetDomains returns the mirror base URLs for id, in preference order.
func (s *Store) GetDomains(id string) ([]string, error) {
	def, err := s.cache.Get(id)
	if err != nil {
		return nil, err
	}
	return def.Domains(), nil
}

// ListAll returns the ids of all cached definitions.
func (s *Store) ListAll() ([]string, error) {
	return s.cache.List()
}

// LastSyncAt returns when the store was last refreshed from upstream.
func (s *Store) LastSyncAt() time.Time {
	idx, err := s.cache.ReadIndex()
	if err != nil {
		return time.Time{}
	}
	return idx.LastSyncAt
}

// Sync refreshes the store from the upstream repository: fetches each
// definition, writes it to the local cache, records the summary index, and
// seeds the parsed capability metadata into the health store. Per-id
// failures are logged and skipped; they do not abort the sync.
func (s *Store) Sync(ctx context.Context) error {
	list, err := s.repo.FetchList(ctx)
	if err != nil {
		return err
	}

	synced := make([]string, 0, len(list))
	for _, meta := range list {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := s.repo.FetchDefinition(ctx, meta.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", meta.ID).Msg("Failed to fetch definition, skipping")
			continue
		}

		def, err := Parse(raw)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", meta.ID).Msg("Failed to parse definition, skipping")
			continue
		}

		if err := s.cache.Put(def.ID, raw, def); err != nil {
			s.logger.Warn().Err(err).Str("id", def.ID).Msg("Failed to cache definition, skipping")
			continue
		}

		if s.seeder != nil {
			row := &types.HealthRow{
				ID:           def.ID,
				DisplayName:  def.Name,
				Language:     def.Language,
				IsPublic:     def.IsPublic(),
				Domains:      def.Domains(),
				SearchPaths:  def.SearchPaths(),
				ContentTypes: def.ContentTypes(),
			}
			if err := s.seeder.SeedCapabilities(ctx, row); err != nil {
				s.logger.Warn().Err(err).Str("id", def.ID).Msg("Failed to seed capability metadata")
			}
		}

		synced = append(synced, def.ID)
	}

	if err := s.cache.WriteIndex(Index{LastSyncAt: time.Now(), IDs: synced}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write definition index")
	}

	s.logger.Info().Int("synced", len(synced)).Int("total", len(list)).Msg("Definition sync complete")
	return nil
}
