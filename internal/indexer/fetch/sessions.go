// Package fetch performs HTTP retrieval against indexer sites, reusing
// solved challenge sessions and escalating to the solver when a block is
// detected.
package fetch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

const (
	// defaultSessionTTL caps how long a solved session is reused when the
	// clearance cookie does not carry a shorter expiry.
	defaultSessionTTL = 30 * time.Minute
	// expiryMargin is shaved off the clearance cookie's own expiry so a
	// session is never used in its final moments.
	expiryMargin = time.Minute

	clearanceCookie = "cf_clearance"
)

// SessionStore caches solved challenge sessions per host, in memory with a
// write-through to the cf_sessions table so sessions survive restarts.
type SessionStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	cache  map[string]*types.Session
	logger zerolog.Logger
}

// NewSessionStore creates a session store backed by db.
func NewSessionStore(db *sql.DB, logger zerolog.Logger) *SessionStore {
	return &SessionStore{
		db:     db,
		cache:  make(map[string]*types.Session),
		logger: logger.With().Str("component", "session-store").Logger(),
	}
}

// SessionTTL derives the usable lifetime for a set of solved cookies: the
// clearance cookie's expiry minus a safety margin, capped at the default.
func SessionTTL(cookies []types.Cookie, now time.Time) time.Duration {
	ttl := defaultSessionTTL
	for _, ck := range cookies {
		if ck.Name != clearanceCookie || ck.Expires.IsZero() {
			continue
		}
		if remaining := ck.Expires.Sub(now) - expiryMargin; remaining < ttl {
			ttl = remaining
		}
	}
	if ttl < 0 {
		ttl = 0
	}
	return ttl
}

// Get returns the cached session for host, or nil if absent or expired.
func (s *SessionStore) Get(ctx context.Context, host string) *types.Session {
	now := time.Now()

	s.mu.RLock()
	sess, ok := s.cache[host]
	s.mu.RUnlock()
	if ok {
		if sess.Expired(now) {
			s.Delete(ctx, host)
			return nil
		}
		return sess
	}

	sess, err := s.load(ctx, host)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn().Err(err).Str("host", host).Msg("Failed to load session")
		}
		return nil
	}
	if sess.Expired(now) {
		s.Delete(ctx, host)
		return nil
	}

	s.mu.Lock()
	s.cache[host] = sess
	s.mu.Unlock()
	return sess
}

// Put stores a solved session for host. Sessions with no cookies are not
// stored; an empty solve outcome is worthless.
func (s *SessionStore) Put(ctx context.Context, sess *types.Session) error {
	if len(sess.Cookies) == 0 {
		return nil
	}

	cookies, err := json.Marshal(sess.Cookies)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cf_sessions (host, cookies, user_agent, expires_at, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (host) DO UPDATE SET
			cookies = excluded.cookies,
			user_agent = excluded.user_agent,
			expires_at = excluded.expires_at,
			created_at = CURRENT_TIMESTAMP`,
		sess.Host, string(cookies), sess.UserAgent, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store session for %q: %w", sess.Host, err)
	}

	s.mu.Lock()
	s.cache[sess.Host] = sess
	s.mu.Unlock()

	s.logger.Debug().
		Str("host", sess.Host).
		Time("expiresAt", sess.ExpiresAt).
		Msg("Stored challenge session")
	return nil
}

// Delete drops the session for host from memory and disk.
func (s *SessionStore) Delete(ctx context.Context, host string) {
	s.mu.Lock()
	delete(s.cache, host)
	s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cf_sessions WHERE host = ?`, host); err != nil {
		s.logger.Warn().Err(err).Str("host", host).Msg("Failed to delete session")
	}
}

// PruneExpired removes expired rows from disk. Run periodically.
func (s *SessionStore) PruneExpired(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cf_sessions WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug().Int64("pruned", n).Msg("Pruned expired sessions")
	}
	return nil
}

func (s *SessionStore) load(ctx context.Context, host string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT host, cookies, user_agent, expires_at
		FROM cf_sessions WHERE host = ?`, host)

	var (
		sess    types.Session
		cookies string
	)
	if err := row.Scan(&sess.Host, &cookies, &sess.UserAgent, &sess.ExpiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cookies), &sess.Cookies); err != nil {
		return nil, fmt.Errorf("corrupt session cookies for %q: %w", host, err)
	}
	return &sess, nil
}
