package minimize

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/robbiethompson18/api-detection-engine/internal/errors"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
	"github.com/robbiethompson18/api-detection-engine/internal/match"
	"github.com/robbiethompson18/api-detection-engine/internal/metrics"
	"github.com/robbiethompson18/api-detection-engine/internal/ratelimit"
)

// MinimizedHeaderSet is the terminal artifact for one matched request: the
// reduced header mapping, the original for audit, and per-header necessity.
type MinimizedHeaderSet struct {
	URL              string            `json:"url"`
	Method           string            `json:"method"`
	MinimizedHeaders map[string]string `json:"minimized_headers"`
	OriginalHeaders  map[string]string `json:"original_headers"`
	Necessity        map[string]bool   `json:"necessity"`
	Justification    string            `json:"justification"`
	UsefulnessScore  int               `json:"usefulness_score"`
	ReplaysIssued    int               `json:"replays_issued"`
	ReplaysFailed    int               `json:"replays_failed"`
}

// Config defines minimizer behavior.
type Config struct {
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	DefaultBackoff time.Duration `json:"default_backoff" yaml:"default_backoff"`
}

// DefaultConfig returns default minimizer configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		DefaultBackoff: 2 * time.Second,
	}
}

// authHeaderMarkers flag headers whose removal likely breaks the request.
// They are tested last so other headers are judged against an intact
// baseline.
var authHeaderMarkers = []string{
	"authorization", "cookie", "x-api-key", "api-key",
	"token", "auth", "session", "csrf",
}

// Minimizer discovers which observed request headers are load-bearing by
// greedy hypothesis-and-replay. Each header is tested exactly once, so the
// cost is linear in the header count; jointly-necessary header pairs whose
// members are individually redundant will not be detected. That is an
// accepted approximation, not a guaranteed minimum.
type Minimizer struct {
	client  Replayer
	config  Config
	limiter *ratelimit.Limiter
	log     *logger.Logger
	metrics *metrics.Collector
}

// New creates a Minimizer.
func New(client Replayer, config Config, log *logger.Logger, collector *metrics.Collector) *Minimizer {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	if config.DefaultBackoff <= 0 {
		config.DefaultBackoff = DefaultConfig().DefaultBackoff
	}
	return &Minimizer{
		client:  client,
		config:  config,
		limiter: ratelimit.NewLimiter(5, 1),
		log:     log.WithComponent("minimize"),
		metrics: collector,
	}
}

// Minimize reduces every matched request's headers. Requests whose
// baseline cannot be established keep their full header set.
func (m *Minimizer) Minimize(ctx context.Context, matched []match.MatchedRequest) ([]MinimizedHeaderSet, error) {
	results := make([]MinimizedHeaderSet, 0, len(matched))
	for _, mr := range matched {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError("", "minimize")
		}
		results = append(results, m.minimizeOne(ctx, mr))
	}
	return results, nil
}

// minimizeOne runs the greedy reduction for one matched request, operating
// on its first exchange.
func (m *Minimizer) minimizeOne(ctx context.Context, mr match.MatchedRequest) MinimizedHeaderSet {
	ex := mr.Exchanges[0]
	log := m.log.WithURL(ex.URL)

	result := MinimizedHeaderSet{
		URL:             ex.URL,
		Method:          ex.Method,
		OriginalHeaders: cloneHeaders(ex.RequestHeaders),
		Necessity:       make(map[string]bool, len(ex.RequestHeaders)),
		Justification:   mr.Endpoint.Justification,
		UsefulnessScore: mr.Endpoint.UsefulnessScore,
	}

	working := cloneHeaders(ex.RequestHeaders)
	pinned := pinnedHeaders(ex.RequestHeaders, ex.RequestBody != "")
	for name := range pinned {
		result.Necessity[name] = true
	}

	// Baseline with the full original header set.
	baselineResp, err := m.replayWithRetry(ctx, &result, ex.Method, ex.URL, working, ex.RequestBody)
	if err != nil {
		log.WithError(err).Warn("Baseline replay failed, keeping full header set")
		for name := range working {
			result.Necessity[name] = true
		}
		result.MinimizedHeaders = working
		return result
	}
	baseline := Fingerprint(baselineResp.StatusCode, baselineResp.ContentType, baselineResp.Body)

	for _, name := range candidateOrder(ex.RequestHeaders, pinned) {
		trial := cloneHeaders(working)
		delete(trial, name)

		resp, err := m.replayWithRetry(ctx, &result, ex.Method, ex.URL, trial, ex.RequestBody)
		if err != nil {
			// Inconclusive evidence never drops a header.
			log.WithField("header", name).WithError(err).Warn("Replay inconclusive, keeping header")
			result.Necessity[name] = true
			if m.metrics != nil {
				m.metrics.RecordHeaderDecision(true)
			}
			continue
		}

		fp := Fingerprint(resp.StatusCode, resp.ContentType, resp.Body)
		necessary := fp != baseline
		result.Necessity[name] = necessary
		if !necessary {
			delete(working, name)
		}
		if m.metrics != nil {
			m.metrics.RecordHeaderDecision(necessary)
		}

		log.ReplayEvent(ex.Method, ex.URL, name, resp.StatusCode, resp.Duration)
	}

	result.MinimizedHeaders = working

	log.Event(logger.InfoLevel).
		Int("original", len(result.OriginalHeaders)).
		Int("minimized", len(working)).
		Int("replays", result.ReplaysIssued).
		Msg("Header minimization complete")

	return result
}

// replayWithRetry issues one replay, retrying transient failures and
// backing off on rate-limit responses.
func (m *Minimizer) replayWithRetry(ctx context.Context, result *MinimizedHeaderSet, method, url string, headers map[string]string, body string) (*ReplayResult, error) {
	var lastErr error
	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, errors.NewCancelledError(url, "replay")
		}

		result.ReplaysIssued++
		if m.metrics != nil {
			m.metrics.RecordReplay()
		}

		resp, err := m.client.Replay(ctx, method, url, headers, body)
		if err != nil {
			result.ReplaysFailed++
			lastErr = err
			if !errors.IsRetryable(err) {
				return nil, err
			}
			if m.metrics != nil {
				m.metrics.RecordReplayRetry()
			}
			delay := errors.BackoffDuration(attempt, 500*time.Millisecond, 10*time.Second, 2.0)
			if err := m.limiter.Backoff(ctx, delay); err != nil {
				return nil, errors.NewCancelledError(url, "replay")
			}
			continue
		}

		// Rate limiting is a repeatable signal about the target, not about
		// the header under test: back off and try again.
		if resp.RetryAfter > 0 || resp.StatusCode == 429 {
			delay := resp.RetryAfter
			if delay <= 0 {
				delay = m.config.DefaultBackoff
			}
			lastErr = errors.NewRateLimitError(url, int(delay/time.Second))
			if m.metrics != nil {
				m.metrics.RecordReplayRetry()
			}
			if err := m.limiter.Backoff(ctx, delay); err != nil {
				return nil, errors.NewCancelledError(url, "replay")
			}
			continue
		}

		return resp, nil
	}
	return nil, lastErr
}

// pinnedHeaders returns the transport headers that are never tested.
func pinnedHeaders(headers map[string]string, hasBody bool) map[string]bool {
	pinned := make(map[string]bool)
	for name := range headers {
		lower := strings.ToLower(name)
		if lower == "host" || lower == "content-length" {
			pinned[name] = true
		}
		if hasBody && lower == "content-type" {
			pinned[name] = true
		}
	}
	return pinned
}

// candidateOrder returns removable headers by ascending suspicion of
// necessity: auth/session headers come last, so earlier decisions are made
// against an unbroken baseline. Ties sort alphabetically for determinism.
func candidateOrder(headers map[string]string, pinned map[string]bool) []string {
	candidates := make([]string, 0, len(headers))
	for name := range headers {
		if !pinned[name] {
			candidates = append(candidates, name)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := suspicion(candidates[i]), suspicion(candidates[j])
		if si != sj {
			return si < sj
		}
		return candidates[i] < candidates[j]
	})
	return candidates
}

func suspicion(name string) int {
	lower := strings.ToLower(name)
	for _, marker := range authHeaderMarkers {
		if strings.Contains(lower, marker) {
			return 1
		}
	}
	return 0
}

func cloneHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}
