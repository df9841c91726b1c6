// Package filter reduces a capture document to the candidate endpoints
// worth scoring: one entry per (method, URL), static assets removed.
package filter

import (
	"net/url"
	"path"
	"strings"

	"github.com/robbiethompson18/api-detection-engine/internal/capture"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
	"github.com/robbiethompson18/api-detection-engine/internal/metrics"
)

// Candidate is a deduplicated endpoint extracted from the capture,
// normalized into the shape the scoring service consumes.
type Candidate struct {
	URL     string              `json:"url"`
	Method  string              `json:"method"`
	Headers map[string]string   `json:"headers,omitempty"`
	Query   map[string][]string `json:"query,omitempty"`
	Body    string              `json:"body,omitempty"`
}

// staticAssetSuffixes lists path suffixes that never carry API data.
var staticAssetSuffixes = []string{
	".js", ".mjs", ".css", ".map",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".avif", ".bmp",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".mp4", ".webm", ".mp3",
}

// Filter walks the capture in arrival order and keeps exchanges matching
// the requested method, discarding static assets and collapsing repeats of
// the same (method, URL) to their first occurrence. An empty result is not
// an error.
type Filter struct {
	log     *logger.Logger
	metrics *metrics.Collector
}

// New creates a Filter.
func New(log *logger.Logger, collector *metrics.Collector) *Filter {
	return &Filter{
		log:     log.WithComponent("filter"),
		metrics: collector,
	}
}

// Filter extracts candidate endpoints from the capture document.
func (f *Filter) Filter(doc *capture.Document, method string) []Candidate {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "GET"
	}

	seen := make(map[string]bool)
	candidates := make([]Candidate, 0)

	for _, ex := range doc.Exchanges {
		if !strings.EqualFold(ex.Method, method) {
			continue
		}

		if IsStaticAsset(ex.URL) {
			if f.metrics != nil {
				f.metrics.RecordAssetDiscarded()
			}
			continue
		}

		key := method + " " + ex.URL
		if seen[key] {
			if f.metrics != nil {
				f.metrics.RecordDuplicateMerged()
			}
			continue
		}
		seen[key] = true

		candidates = append(candidates, Candidate{
			URL:     ex.URL,
			Method:  method,
			Headers: cloneHeaders(ex.RequestHeaders),
			Query:   parseQuery(ex.URL),
			Body:    ex.RequestBody,
		})
		if f.metrics != nil {
			f.metrics.RecordCandidate()
		}
	}

	f.log.Event(logger.InfoLevel).
		Str("method", method).
		Int("exchanges", len(doc.Exchanges)).
		Int("candidates", len(candidates)).
		Msg("Filtered capture")

	return candidates
}

// IsStaticAsset reports whether the URL path ends in a static-asset suffix.
func IsStaticAsset(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, suffix := range staticAssetSuffixes {
		if ext == suffix {
			return true
		}
	}
	return false
}

func cloneHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}

func parseQuery(rawURL string) map[string][]string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return nil
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil
	}
	return values
}
