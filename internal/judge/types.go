// Package judge talks to the external judgment service that scores
// candidate endpoints for data value.
package judge

// ScoredEndpoint is one value judgment returned by the service.
type ScoredEndpoint struct {
	URL             string `json:"url"`
	Justification   string `json:"justification"`
	UsefulnessScore int    `json:"usefulness_score"`
}

// ScoredBatch is the decoded response for one batch call.
type ScoredBatch struct {
	Endpoints []ScoredEndpoint `json:"endpoints"`
}

// ParseOutcome is the explicit result of decoding a service response.
// Exactly one of Batch and Malformed is set: a response either parses into
// a well-typed batch or is carried verbatim for diagnostics.
type ParseOutcome struct {
	Batch     *ScoredBatch
	Malformed string
}

// Parsed reports whether the outcome carries a well-typed batch.
func (o ParseOutcome) Parsed() bool {
	return o.Batch != nil
}

// systemInstruction is the fixed scoring contract sent with every batch.
const systemInstruction = "You are an API analysis assistant. Your task is to identify API endpoints that fetch valuable data. " +
	"These could include:\n" +
	"- User data and metadata\n" +
	"- Analytics and tracking\n" +
	"- Search and recommendation results\n" +
	"- Logs, system events, or behavioral data\n\n" +
	"Please analyze the provided endpoints and determine which ones are likely to contain valuable data. " +
	"For each endpoint you identify:\n" +
	"1. Provide a clear explanation of why it's valuable\n" +
	"2. Assign a usefulness score from 0-100 where:\n" +
	"   - 0-20: Minimal value, mostly static or basic data\n" +
	"   - 21-40: Some value but limited utility\n" +
	"   - 41-60: Moderately useful data\n" +
	"   - 61-80: High-value data with clear utility\n" +
	"   - 81-100: Critical data with significant strategic value\n\n" +
	"If no endpoints are found valuable, include at least one as a potential candidate with a reason why it might be useful " +
	"and a corresponding score.\n\n" +
	"Format the response strictly as a JSON object with an 'endpoints' array containing URL(s), justifications, and usefulness scores. " +
	"Each entry must have the keys \"url\", \"justification\", and \"usefulness_score\"."
