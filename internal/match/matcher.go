// Package match re-associates scored endpoints with the raw exchanges in
// the capture that produced them.
package match

import (
	"net/url"
	"strings"

	"github.com/robbiethompson18/api-detection-engine/internal/capture"
	"github.com/robbiethompson18/api-detection-engine/internal/judge"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
	"github.com/robbiethompson18/api-detection-engine/internal/metrics"
)

// MatchedRequest pairs a scored endpoint with every raw exchange sharing
// its URL. The minimizer operates on the first exchange; the rest are kept
// for audit and replay comparison.
type MatchedRequest struct {
	Endpoint  judge.ScoredEndpoint `json:"endpoint"`
	Exchanges []capture.Exchange   `json:"exchanges"`
}

// Matcher scans the capture for each scored endpoint's URL.
type Matcher struct {
	log     *logger.Logger
	metrics *metrics.Collector
}

// New creates a Matcher.
func New(log *logger.Logger, collector *metrics.Collector) *Matcher {
	return &Matcher{
		log:     log.WithComponent("match"),
		metrics: collector,
	}
}

// Match resolves each scored endpoint to its raw exchanges. Endpoints with
// no matching exchange are dropped with a warning; output keeps the scored
// order, which reflects the service's value ranking.
func (m *Matcher) Match(doc *capture.Document, scored []judge.ScoredEndpoint) []MatchedRequest {
	// Index exchanges by normalized URL, preserving arrival order per URL.
	byURL := make(map[string][]capture.Exchange, len(doc.Exchanges))
	for _, ex := range doc.Exchanges {
		key := NormalizeURL(ex.URL)
		byURL[key] = append(byURL[key], ex)
	}

	matched := make([]MatchedRequest, 0, len(scored))
	for _, ep := range scored {
		exchanges := byURL[NormalizeURL(ep.URL)]
		if len(exchanges) == 0 {
			m.log.WithURL(ep.URL).Warn("Scored endpoint matches no captured exchange, dropping")
			if m.metrics != nil {
				m.metrics.RecordUnmatched()
			}
			continue
		}
		matched = append(matched, MatchedRequest{
			Endpoint:  ep,
			Exchanges: exchanges,
		})
		if m.metrics != nil {
			m.metrics.RecordMatch()
		}
	}

	m.log.Event(logger.InfoLevel).
		Int("scored", len(scored)).
		Int("matched", len(matched)).
		Msg("Matching complete")

	return matched
}

// NormalizeURL lowercases the scheme and host and leaves path and query
// byte-exact, since query values can be semantically significant.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}
