package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/robbiethompson18/api-detection-engine/internal/capture"
	"github.com/robbiethompson18/api-detection-engine/internal/filter"
	"github.com/robbiethompson18/api-detection-engine/internal/judge"
	"github.com/robbiethompson18/api-detection-engine/internal/minimize"
)

// ====== Store Tests ======

func TestStoreDisabled(t *testing.T) {
	store, err := NewStore("", false)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store.Enabled() {
		t.Error("store with empty dir must be disabled")
	}
	if err := store.WriteScored(nil); err != nil {
		t.Errorf("disabled store must discard writes, got %v", err)
	}
}

func TestStoreWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, true)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	doc := &capture.Document{
		Target: "https://example.com",
		Exchanges: []capture.Exchange{
			{Method: "GET", URL: "https://example.com/api/users", Status: 200},
		},
	}
	if err := store.WriteCapture(doc); err != nil {
		t.Fatalf("WriteCapture failed: %v", err)
	}

	if err := store.WriteCandidates([]filter.Candidate{
		{URL: "https://example.com/api/users", Method: "GET"},
	}); err != nil {
		t.Fatalf("WriteCandidates failed: %v", err)
	}

	if err := store.WriteScored([]judge.ScoredEndpoint{
		{URL: "https://example.com/api/users", Justification: "user data", UsefulnessScore: 80},
	}); err != nil {
		t.Fatalf("WriteScored failed: %v", err)
	}

	if err := store.WriteMinimized([]minimize.MinimizedHeaderSet{
		{URL: "https://example.com/api/users", Method: "GET"},
	}); err != nil {
		t.Fatalf("WriteMinimized failed: %v", err)
	}

	for _, name := range []string{CaptureFile, FilteredFile, ScoredFile, MinimizedFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}
}

func TestStoreScoredDocumentShape(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, false)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.WriteScored([]judge.ScoredEndpoint{
		{URL: "/api/a", Justification: "x", UsefulnessScore: 55},
	}); err != nil {
		t.Fatalf("WriteScored failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ScoredFile))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}

	var doc struct {
		Endpoints []judge.ScoredEndpoint `json:"endpoints"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if len(doc.Endpoints) != 1 || doc.Endpoints[0].UsefulnessScore != 55 {
		t.Errorf("unexpected document: %+v", doc)
	}
}
