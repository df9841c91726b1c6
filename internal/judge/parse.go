package judge

import (
	"encoding/json"
	"strings"
)

// extractJSON strips markdown code fences that chat models often wrap
// around JSON output.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// Parse decodes a service response body into a ParseOutcome. A response
// that fails to decode, has no endpoints, or contains only out-of-range
// scores is Malformed; individual out-of-range entries are skipped.
func Parse(content string) ParseOutcome {
	raw := extractJSON(content)

	var batch ScoredBatch
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		return ParseOutcome{Malformed: content}
	}
	if len(batch.Endpoints) == 0 {
		return ParseOutcome{Malformed: content}
	}

	valid := make([]ScoredEndpoint, 0, len(batch.Endpoints))
	for _, ep := range batch.Endpoints {
		if ep.URL == "" || ep.UsefulnessScore < 0 || ep.UsefulnessScore > 100 {
			continue
		}
		valid = append(valid, ep)
	}
	if len(valid) == 0 {
		return ParseOutcome{Malformed: content}
	}

	return ParseOutcome{Batch: &ScoredBatch{Endpoints: valid}}
}
