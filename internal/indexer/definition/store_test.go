package definition

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

type recordingSeeder struct {
	mu   sync.Mutex
	rows []*types.HealthRow
}

func (s *recordingSeeder) SeedCapabilities(ctx context.Context, row *types.HealthRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func newUpstream(t *testing.T, definitions map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/definitions/v11/index.json" {
			fmt.Fprint(w, `[`)
			first := true
			for id := range definitions {
				if !first {
					fmt.Fprint(w, ",")
				}
				first = false
				fmt.Fprintf(w, `{"id": %q, "name": %q, "type": "public", "language": "en-US"}`, id, id)
			}
			fmt.Fprint(w, `]`)
			return
		}
		for id, doc := range definitions {
			if r.URL.Path == "/definitions/v11/"+id+".yml" {
				fmt.Fprint(w, doc)
				return
			}
		}
		http.NotFound(w, r)
	}))
}

func TestStoreSync(t *testing.T) {
	broken := "id: broken\nsearch: [not, a, mapping]"
	upstream := newUpstream(t, map[string]string{
		"example": sampleYAML,
		"broken":  broken,
	})
	defer upstream.Close()

	cache := newTestCache(t)
	repo := NewRepository(RepositoryConfig{BaseURL: upstream.URL}, zerolog.Nop())
	seeder := &recordingSeeder{}
	store := NewStore(cache, repo, seeder, zerolog.Nop())

	assert.True(t, store.LastSyncAt().IsZero())
	require.NoError(t, store.Sync(context.Background()))

	// The parseable definition landed; the broken one was skipped.
	def, err := store.GetDefinition("example")
	require.NoError(t, err)
	assert.Equal(t, "Example", def.Name)
	_, err = store.GetDefinition("broken")
	assert.Error(t, err)

	require.Len(t, seeder.rows, 1)
	row := seeder.rows[0]
	assert.Equal(t, "example", row.ID)
	assert.True(t, row.IsPublic)
	assert.Equal(t, []string{"https://example.to/", "https://example.gg/", "https://old.example.net/"}, row.Domains)
	assert.Equal(t, []types.ContentType{types.ContentMovie, types.ContentSeries}, row.ContentTypes)

	assert.False(t, store.LastSyncAt().IsZero())

	domains, err := store.GetDomains("example")
	require.NoError(t, err)
	assert.Len(t, domains, 3)
}

func TestStoreSyncUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	cache := newTestCache(t)
	repo := NewRepository(RepositoryConfig{BaseURL: upstream.URL}, zerolog.Nop())
	store := NewStore(cache, repo, nil, zerolog.Nop())

	assert.Error(t, store.Sync(context.Background()))
}
