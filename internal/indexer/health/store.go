// Package health tracks per-indexer health metrics and runs the periodic
// probe loop that keeps them current.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

var ErrRowNotFound = errors.New("indexer health row not found")

// BreakerConfig defines the circuit-breaker policy for failing indexers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure streak that trips the breaker.
	FailureThreshold int
	// Cooldown is how long a tripped indexer stays disabled.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default circuit-breaker policy.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         2 * time.Hour,
	}
}

// Store persists indexer health rows in the indexer_health table.
type Store struct {
	db      *sql.DB
	breaker BreakerConfig
	logger  zerolog.Logger
}

// NewStore creates a health store with the default breaker policy.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return NewStoreWithConfig(db, DefaultBreakerConfig(), logger)
}

// NewStoreWithConfig creates a health store with a custom breaker policy.
func NewStoreWithConfig(db *sql.DB, breaker BreakerConfig, logger zerolog.Logger) *Store {
	if breaker.FailureThreshold <= 0 {
		breaker.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if breaker.Cooldown <= 0 {
		breaker.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Store{
		db:      db,
		breaker: breaker,
		logger:  logger.With().Str("component", "indexer-health").Logger(),
	}
}

// Breaker returns the active circuit-breaker policy.
func (s *Store) Breaker() BreakerConfig {
	return s.breaker
}

// CheckResult is the outcome of a single probe or search against an indexer.
type CheckResult struct {
	Success       bool
	ResponseMs    int64
	WorkingDomain string
	UsedSolver    bool
	Err           string
}

// Priority derives the dispatch-ordering score for a row after a check.
func Priority(successRate float64, responseMs int64, success bool, solver types.SolverNeed) float64 {
	speed := 0.0
	if success {
		speed = 100 - float64(responseMs)/100
		if speed < 0 {
			speed = 0
		}
	}
	base := 0.4*successRate + 0.4*speed
	if success {
		base += 20
	}
	if solver == types.SolverNo {
		base += 20
	}
	if base > 100 {
		base = 100
	}
	return base
}

// SeedCapabilities upserts the static capability metadata parsed from a
// definition without touching any health counters.
func (s *Store) SeedCapabilities(ctx context.Context, row *types.HealthRow) error {
	domains, err := json.Marshal(row.Domains)
	if err != nil {
		return err
	}
	paths, err := json.Marshal(row.SearchPaths)
	if err != nil {
		return err
	}
	contentTypes, err := json.Marshal(row.ContentTypes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO indexer_health (id, display_name, language, is_public, domains, search_paths, content_types, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			language = excluded.language,
			is_public = excluded.is_public,
			domains = excluded.domains,
			search_paths = excluded.search_paths,
			content_types = excluded.content_types,
			updated_at = CURRENT_TIMESTAMP`,
		row.ID, row.DisplayName, row.Language, boolToInt(row.IsPublic),
		string(domains), string(paths), string(contentTypes))
	if err != nil {
		return fmt.Errorf("failed to seed capabilities for %q: %w", row.ID, err)
	}
	return nil
}

// Get retrieves one health row by indexer id.
func (s *Store) Get(ctx context.Context, id string) (*types.HealthRow, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM indexer_health WHERE id = ?`, id)
	hr, err := scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRowNotFound
		}
		return nil, fmt.Errorf("failed to get health row: %w", err)
	}
	return hr, nil
}

// ListIDsByLastChecked returns all indexer ids ordered by last_checked_at
// ascending, never-checked rows first.
func (s *Store) ListIDsByLastChecked(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM indexer_health
		ORDER BY last_checked_at ASC NULLS FIRST, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexer ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListCandidates returns up to limit public rows ordered by priority
// descending with success_rate at or above minRate and the breaker cleared.
// The breaker check runs here rather than in SQL so time comparison uses one
// clock.
func (s *Store) ListCandidates(ctx context.Context, minRate float64, limit int) ([]*types.HealthRow, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM indexer_health
		WHERE is_public = 1
		  AND success_rate >= ?
		ORDER BY priority DESC`, minRate)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var out []*types.HealthRow
	for rows.Next() {
		hr, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		if hr.IsDisabled(now) {
			continue
		}
		out = append(out, hr)
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// RecordCheck applies one check outcome to the row: counters, rolling
// average, streak, solver flag, priority and the circuit breaker. The row is
// committed before RecordCheck returns.
func (s *Store) RecordCheck(ctx context.Context, id string, result CheckResult) error {
	row, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	row.LastCheckedAt = now
	row.TotalChecks++

	if result.Success {
		row.TotalSuccesses++
		row.LastSucceededAt = now
		row.ConsecutiveFailures = 0
		row.DisabledUntil = nil
		row.Enabled = true
		row.LastError = ""
		if result.WorkingDomain != "" {
			row.WorkingDomain = result.WorkingDomain
		}
		// Rolling average over successes only.
		if row.AvgResponseMs == 0 {
			row.AvgResponseMs = float64(result.ResponseMs)
		} else {
			row.AvgResponseMs = (row.AvgResponseMs*float64(row.TotalSuccesses-1) + float64(result.ResponseMs)) / float64(row.TotalSuccesses)
		}
		if result.UsedSolver {
			row.RequiresSolver = types.SolverYes
		} else {
			row.RequiresSolver = types.SolverNo
		}
	} else {
		row.TotalFailures++
		row.ConsecutiveFailures++
		row.LastError = result.Err
		if row.ConsecutiveFailures >= s.breaker.FailureThreshold {
			until := now.Add(s.breaker.Cooldown)
			row.DisabledUntil = &until
			row.Enabled = false
		}
	}

	row.SuccessRate = float64(row.TotalSuccesses) / float64(row.TotalChecks) * 100
	row.Priority = Priority(row.SuccessRate, result.ResponseMs, result.Success, row.RequiresSolver)

	if err := s.update(ctx, row); err != nil {
		return err
	}

	s.logger.Debug().
		Str("indexer", id).
		Bool("success", result.Success).
		Int64("responseMs", result.ResponseMs).
		Int("streak", row.ConsecutiveFailures).
		Float64("priority", row.Priority).
		Msg("Recorded indexer check")

	return nil
}

func (s *Store) update(ctx context.Context, row *types.HealthRow) error {
	var disabledUntil sql.NullTime
	if row.DisabledUntil != nil {
		disabledUntil = sql.NullTime{Time: *row.DisabledUntil, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE indexer_health SET
			last_checked_at = ?,
			last_succeeded_at = ?,
			total_checks = ?,
			total_successes = ?,
			total_failures = ?,
			success_rate = ?,
			avg_response_ms = ?,
			consecutive_failures = ?,
			disabled_until = ?,
			enabled = ?,
			working_domain = ?,
			last_error = ?,
			requires_solver = ?,
			priority = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		nullTime(row.LastCheckedAt), nullTime(row.LastSucceededAt),
		row.TotalChecks, row.TotalSuccesses, row.TotalFailures,
		row.SuccessRate, row.AvgResponseMs, row.ConsecutiveFailures,
		disabledUntil, boolToInt(row.Enabled), row.WorkingDomain,
		nullString(row.LastError), int(row.RequiresSolver), row.Priority,
		row.ID)
	if err != nil {
		return fmt.Errorf("failed to update health row %q: %w", row.ID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, display_name, language, is_public, domains, search_paths, content_types,
	       last_checked_at, last_succeeded_at, total_checks, total_successes, total_failures,
	       success_rate, avg_response_ms, consecutive_failures, disabled_until, enabled,
	       working_domain, last_error, requires_solver, priority`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (*types.HealthRow, error) {
	var (
		hr             types.HealthRow
		isPublic       int
		domains        string
		paths          string
		contentTypes   string
		lastChecked    sql.NullTime
		lastSucceeded  sql.NullTime
		disabledUntil  sql.NullTime
		enabled        int
		lastError      sql.NullString
		requiresSolver int
	)

	err := r.Scan(&hr.ID, &hr.DisplayName, &hr.Language, &isPublic, &domains, &paths, &contentTypes,
		&lastChecked, &lastSucceeded, &hr.TotalChecks, &hr.TotalSuccesses, &hr.TotalFailures,
		&hr.SuccessRate, &hr.AvgResponseMs, &hr.ConsecutiveFailures, &disabledUntil, &enabled,
		&hr.WorkingDomain, &lastError, &requiresSolver, &hr.Priority)
	if err != nil {
		return nil, err
	}

	hr.IsPublic = isPublic != 0
	hr.Enabled = enabled != 0
	hr.RequiresSolver = types.SolverNeed(requiresSolver)
	if lastChecked.Valid {
		hr.LastCheckedAt = lastChecked.Time
	}
	if lastSucceeded.Valid {
		hr.LastSucceededAt = lastSucceeded.Time
	}
	if disabledUntil.Valid {
		t := disabledUntil.Time
		hr.DisabledUntil = &t
	}
	if lastError.Valid {
		hr.LastError = lastError.String
	}

	if err := json.Unmarshal([]byte(domains), &hr.Domains); err != nil {
		return nil, fmt.Errorf("corrupt domains for %q: %w", hr.ID, err)
	}
	if err := json.Unmarshal([]byte(paths), &hr.SearchPaths); err != nil {
		return nil, fmt.Errorf("corrupt search paths for %q: %w", hr.ID, err)
	}
	if err := json.Unmarshal([]byte(contentTypes), &hr.ContentTypes); err != nil {
		return nil, fmt.Errorf("corrupt content types for %q: %w", hr.ID, err)
	}

	return &hr, nil
}

func scanRows(rows *sql.Rows) (*types.HealthRow, error) {
	return scanRow(rows)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
