// Package output persists per-stage run artifacts as JSON documents.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robbiethompson18/api-detection-engine/internal/capture"
	"github.com/robbiethompson18/api-detection-engine/internal/filter"
	"github.com/robbiethompson18/api-detection-engine/internal/judge"
	"github.com/robbiethompson18/api-detection-engine/internal/match"
	"github.com/robbiethompson18/api-detection-engine/internal/minimize"
)

// Artifact file names, one per pipeline stage.
const (
	CaptureFile   = "network_traffic.json"
	FilteredFile  = "filtered_requests.json"
	ScoredFile    = "analyzed_endpoints.json"
	MatchedFile   = "matched_requests.json"
	MinimizedFile = "necessary_headers.json"
)

// Store writes stage artifacts into one run directory. A nil Store (or one
// with an empty directory) discards everything, so stages can persist
// unconditionally.
type Store struct {
	dir    string
	pretty bool
}

// NewStore creates an artifact store rooted at dir, creating it if needed.
func NewStore(dir string, pretty bool) (*Store, error) {
	if dir == "" {
		return &Store{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Store{dir: dir, pretty: pretty}, nil
}

// Enabled reports whether artifacts will actually be written.
func (s *Store) Enabled() bool {
	return s != nil && s.dir != ""
}

// Dir returns the run directory, or empty when disabled.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// WriteCapture persists the raw capture document.
func (s *Store) WriteCapture(doc *capture.Document) error {
	return s.write(CaptureFile, doc)
}

// WriteCandidates persists the filtered candidate set.
func (s *Store) WriteCandidates(candidates []filter.Candidate) error {
	return s.write(FilteredFile, map[string]interface{}{"candidates": candidates})
}

// WriteScored persists the merged scoring results as a single document
// with a top-level endpoints array.
func (s *Store) WriteScored(scored []judge.ScoredEndpoint) error {
	return s.write(ScoredFile, judge.ScoredBatch{Endpoints: scored})
}

// WriteMatched persists the matched requests.
func (s *Store) WriteMatched(matched []match.MatchedRequest) error {
	return s.write(MatchedFile, map[string]interface{}{"matched_requests": matched})
}

// WriteMinimized persists the terminal minimized-header artifact.
func (s *Store) WriteMinimized(results []minimize.MinimizedHeaderSet) error {
	return s.write(MinimizedFile, map[string]interface{}{"results": results})
}

func (s *Store) write(name string, v interface{}) error {
	if !s.Enabled() {
		return nil
	}

	var data []byte
	var err error
	if s.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	data = append(data, '\n')

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
