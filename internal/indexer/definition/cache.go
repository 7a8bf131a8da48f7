package definition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const indexFileName = "index.json"

// Cache manages local disk caching of indexer definitions, keyed by id.
type Cache struct {
	dir         string
	memoryCache map[string]*Definition
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// Index is the summary written next to the cached definitions.
type Index struct {
	LastSyncAt time.Time `json:"lastSyncAt"`
	IDs        []string  `json:"ids"`
}

// NewCache creates a definition cache rooted at dir.
func NewCache(dir string, logger zerolog.Logger) (*Cache, error) {
	if dir == "" {
		dir = "./data/definitions"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create definitions directory: %w", err)
	}
	return &Cache{
		dir:         dir,
		memoryCache: make(map[string]*Definition),
		logger:      logger.With().Str("component", "definition-cache").Logger(),
	}, nil
}

func (c *Cache) filePath(id string) string {
	return filepath.Join(c.dir, id+".yml")
}

// Get retrieves a definition by id, first from memory, then from disk.
func (c *Cache) Get(id string) (*Definition, error) {
	c.mu.RLock()
	if def, ok := c.memoryCache[id]; ok {
		c.mu.RUnlock()
		return def, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(c.filePath(id))
	if err != nil {
		return nil, fmt.Errorf("definition %q not cached: %w", id, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.memoryCache[id] = def
	c.mu.Unlock()

	return def, nil
}

// Put writes raw definition bytes to disk and caches the parsed form.
func (c *Cache) Put(id string, raw []byte, def *Definition) error {
	if err := os.WriteFile(c.filePath(id), raw, 0o640); err != nil {
		return fmt.Errorf("failed to write definition %q: %w", id, err)
	}
	c.mu.Lock()
	c.memoryCache[id] = def
	c.mu.Unlock()
	return nil
}

// List returns the ids of all cached definitions, sorted.
func (c *Cache) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".yml"))
	}
	sort.Strings(ids)
	return ids, nil
}

// WriteIndex persists the summary index with the sync timestamp.
func (c *Cache) WriteIndex(idx Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, indexFileName), data, 0o640)
}

// ReadIndex loads the summary index. A missing index returns a zero value.
func (c *Cache) ReadIndex() (Index, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return Index{}, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, err
	}
	return idx, nil
}
