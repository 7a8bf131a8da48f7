package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/streamsieve/streamsieve/internal/indexer/challenge"
	"github.com/streamsieve/streamsieve/internal/indexer/solver"
	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxRedirects          = 5
	maxBodyBytes          = 8 << 20
)

// ErrBlocked is returned when a page stays blocked after the solver has had
// its chance (or no solver is available).
var ErrBlocked = errors.New("blocked by anti-bot challenge")

// Response is the outcome of a protected fetch.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
	// Tag is the challenge classification of the final response. TagNone
	// means the body is usable.
	Tag challenge.Tag
	// UsedSolver reports whether the solver ran for this fetch.
	UsedSolver bool
	Elapsed    time.Duration
}

// Blocked reports whether the final response is still a challenge page.
func (r *Response) Blocked() bool {
	return r.Tag.Blocked()
}

// Fetcher performs GETs against indexer sites with session reuse and solver
// escalation.
type Fetcher struct {
	httpClient *http.Client
	sessions   *SessionStore
	solver     *solver.Client
	// solveGroup collapses concurrent solves for the same host into one
	// solver round trip.
	solveGroup singleflight.Group
	logger     zerolog.Logger
}

// NewFetcher creates a protected fetcher. solverClient may be nil; blocked
// pages then fail with ErrBlocked immediately.
func NewFetcher(sessions *SessionStore, solverClient *solver.Client, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		sessions: sessions,
		solver:   solverClient,
		logger:   logger.With().Str("component", "fetcher").Logger(),
	}
}

// Get fetches rawURL. An existing session for the host is attached; if the
// response is a solvable challenge and a solver is configured, the challenge
// is solved once, the session stored, and the fetch retried with it.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	return f.GetWithOptions(ctx, rawURL, true)
}

// GetWithOptions is Get with solver escalation made optional. Callers that
// budget solver attempts themselves pass allowSolver=false once the budget
// is spent.
func (f *Fetcher) GetWithOptions(ctx context.Context, rawURL string, allowSolver bool) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	host := parsed.Hostname()

	sess := f.sessions.Get(ctx, host)
	resp, err := f.do(ctx, rawURL, sess)
	if err != nil {
		return nil, err
	}
	if !resp.Tag.Blocked() {
		return resp, nil
	}

	// A block while holding a session means the session went stale.
	if sess != nil {
		f.sessions.Delete(ctx, host)
	}

	if !allowSolver || f.solver == nil || !resp.Tag.Solvable() {
		resp.UsedSolver = false
		return resp, fmt.Errorf("%w: %s (%s)", ErrBlocked, host, resp.Tag)
	}

	newSess, solveErr := f.solveHost(ctx, host, rawURL)
	if solveErr != nil {
		resp.UsedSolver = true
		return resp, fmt.Errorf("%w: %s (%s): solve failed: %v", ErrBlocked, host, resp.Tag, solveErr)
	}

	retry, err := f.do(ctx, rawURL, newSess)
	if err != nil {
		return nil, err
	}
	retry.UsedSolver = true
	if retry.Tag.Blocked() {
		return retry, fmt.Errorf("%w: %s (%s) after solve", ErrBlocked, host, retry.Tag)
	}
	return retry, nil
}

// solveHost runs the solver for host, collapsing concurrent callers into one
// solve, and stores the resulting session.
func (f *Fetcher) solveHost(ctx context.Context, host, rawURL string) (*types.Session, error) {
	v, err, _ := f.solveGroup.Do(host, func() (any, error) {
		sol, err := f.solver.Solve(ctx, rawURL)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		sess := &types.Session{
			Host:      host,
			Cookies:   sol.Cookies,
			UserAgent: sol.UserAgent,
			ExpiresAt: now.Add(SessionTTL(sol.Cookies, now)),
		}
		if err := f.sessions.Put(ctx, sess); err != nil {
			f.logger.Warn().Err(err).Str("host", host).Msg("Failed to persist solved session")
		}
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Session), nil
}

func (f *Fetcher) do(ctx context.Context, rawURL string, sess *types.Session) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	if sess != nil {
		req.Header.Set("User-Agent", sess.UserAgent)
		for _, ck := range sess.Cookies {
			req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
		}
	} else {
		req.Header.Set("User-Agent", NextUserAgent())
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	httpResp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	elapsed := time.Since(start)

	if httpResp.StatusCode >= http.StatusInternalServerError &&
		httpResp.StatusCode != http.StatusServiceUnavailable {
		return nil, fmt.Errorf("server error: status %d", httpResp.StatusCode)
	}

	text := string(body)
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       text,
		Tag:        challenge.Detect(httpResp.StatusCode, httpResp.Header, text),
		Elapsed:    elapsed,
	}, nil
}

// HostOf extracts the hostname from a base URL. Used by callers that key
// per-host state.
func HostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
