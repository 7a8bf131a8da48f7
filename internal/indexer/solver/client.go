// Package solver is the client for an external browser-based challenge
// solver. All solve requests are serialized through a single queue because
// the solver runs one headless browser and overlapping sessions corrupt each
// other.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
	"github.com/streamsieve/streamsieve/internal/metrics"
)

var (
	// ErrNotConfigured is returned when no solver URL is set.
	ErrNotConfigured = errors.New("challenge solver not configured")
	// ErrQueueFull is returned when the solve queue is at capacity.
	ErrQueueFull = errors.New("challenge solver queue full")
	// ErrUnreachable is returned when no solver endpoint answers the probe.
	ErrUnreachable = errors.New("challenge solver unreachable")
)

const (
	// queueCapacity bounds the number of pending solve requests.
	queueCapacity = 32
	// timeoutMargin is added on top of the solver's own maxTimeout so the
	// HTTP call outlives the solver's internal deadline.
	timeoutMargin = 10 * time.Second
)

// Config controls the solver client.
type Config struct {
	// URL is the solver base address. Empty disables the client.
	URL string
	// MaxTimeout is handed to the solver as its per-request budget.
	MaxTimeout time.Duration
}

// Solution is the outcome of a successful solve.
type Solution struct {
	URL       string
	Status    int
	Body      string
	Cookies   []types.Cookie
	UserAgent string
}

// Client talks to the external solver. A single worker goroutine owns the
// HTTP calls; Solve enqueues and waits.
type Client struct {
	baseURL    string
	maxTimeout time.Duration
	httpClient *http.Client
	logger     zerolog.Logger

	queue chan *solveJob

	// endpoint is resolved once by probing and reused afterwards.
	endpointOnce sync.Once
	endpoint     string
	endpointErr  error

	stopOnce sync.Once
	done     chan struct{}
}

type solveJob struct {
	ctx    context.Context
	url    string
	result chan solveOutcome
}

type solveOutcome struct {
	solution *Solution
	err      error
}

// New creates a solver client and starts its worker. Returns nil if no URL
// is configured; callers treat a nil client as "no solver available".
func New(cfg Config, logger zerolog.Logger) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 60 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/"),
		maxTimeout: cfg.MaxTimeout,
		httpClient: &http.Client{Timeout: cfg.MaxTimeout + timeoutMargin},
		logger:     logger.With().Str("component", "solver").Logger(),
		queue:      make(chan *solveJob, queueCapacity),
		done:       make(chan struct{}),
	}
	go c.worker()
	return c
}

// Close stops the worker. Pending jobs fail with ErrNotConfigured.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Solve asks the solver to fetch url through its browser and waits for the
// outcome. Jobs run strictly one at a time in arrival order.
func (c *Client) Solve(ctx context.Context, url string) (*Solution, error) {
	job := &solveJob{ctx: ctx, url: url, result: make(chan solveOutcome, 1)}

	select {
	case c.queue <- job:
		metrics.SolverQueueDepth.Set(float64(len(c.queue)))
	case <-c.done:
		return nil, ErrNotConfigured
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, ErrQueueFull
	}

	select {
	case out := <-job.result:
		return out.solution, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) worker() {
	for {
		select {
		case <-c.done:
			return
		case job := <-c.queue:
			metrics.SolverQueueDepth.Set(float64(len(c.queue)))
			if err := job.ctx.Err(); err != nil {
				job.result <- solveOutcome{err: err}
				continue
			}
			start := time.Now()
			sol, err := c.solve(job.ctx, job.url)
			metrics.SolverRequestDuration.Observe(time.Since(start).Seconds())
			job.result <- solveOutcome{solution: sol, err: err}
		}
	}
}

// apiRequest is the solver's request.get command body.
type apiRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url"`
	MaxTimeout int64  `json:"maxTimeout"`
}

type apiResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		URL      string `json:"url"`
		Status   int    `json:"status"`
		Response string `json:"response"`
		Cookies  []struct {
			Name    string  `json:"name"`
			Value   string  `json:"value"`
			Domain  string  `json:"domain"`
			Path    string  `json:"path"`
			Expires float64 `json:"expires"`
		} `json:"cookies"`
		UserAgent string `json:"userAgent"`
	} `json:"solution"`
}

func (c *Client) solve(ctx context.Context, targetURL string) (*Solution, error) {
	endpoint, err := c.resolveEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(apiRequest{
		Cmd:        "request.get",
		URL:        targetURL,
		MaxTimeout: c.maxTimeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	// One attempt only. A failed solve is reported to the caller; retrying
	// here would stall every queued job behind a broken target.
	reqCtx, cancel := context.WithTimeout(ctx, c.maxTimeout+timeoutMargin)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solver request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read solver response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode solver response: %w", err)
	}
	if parsed.Status != "ok" {
		return nil, fmt.Errorf("solver returned status %q: %s", parsed.Status, parsed.Message)
	}

	sol := &Solution{
		URL:       parsed.Solution.URL,
		Status:    parsed.Solution.Status,
		Body:      parsed.Solution.Response,
		UserAgent: parsed.Solution.UserAgent,
	}
	for _, ck := range parsed.Solution.Cookies {
		cookie := types.Cookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Domain: ck.Domain,
			Path:   ck.Path,
		}
		if ck.Expires > 0 {
			cookie.Expires = time.Unix(int64(ck.Expires), 0)
		}
		sol.Cookies = append(sol.Cookies, cookie)
	}

	c.logger.Debug().
		Str("url", targetURL).
		Int("status", sol.Status).
		Int("cookies", len(sol.Cookies)).
		Msg("Challenge solved")

	return sol, nil
}

// resolveEndpoint probes the solver's command endpoint once: the base URL
// first, then base/v1. Different solver builds mount the API at either.
func (c *Client) resolveEndpoint(ctx context.Context) (string, error) {
	c.endpointOnce.Do(func() {
		for _, candidate := range []string{c.baseURL, c.baseURL + "/v1"} {
			if c.probeEndpoint(ctx, candidate) {
				c.endpoint = candidate
				c.logger.Info().Str("endpoint", candidate).Msg("Resolved solver endpoint")
				return
			}
		}
		c.endpointErr = ErrUnreachable
	})
	return c.endpoint, c.endpointErr
}

func (c *Client) probeEndpoint(ctx context.Context, endpoint string) bool {
	body, _ := json.Marshal(map[string]string{"cmd": "sessions.list"})

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false
	}
	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return false
	}
	return parsed.Status == "ok"
}
