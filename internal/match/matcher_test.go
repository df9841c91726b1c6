package match

import (
	"testing"

	"github.com/robbiethompson18/api-detection-engine/internal/capture"
	"github.com/robbiethompson18/api-detection-engine/internal/judge"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
)

func testMatcher() *Matcher {
	return New(logger.NewDefault(), nil)
}

// ====== URL Normalization Tests ======

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases host", "https://API.Example.COM/api/users", "https://api.example.com/api/users"},
		{"lowercases scheme", "HTTPS://example.com/a", "https://example.com/a"},
		{"path case preserved", "https://example.com/API/Users", "https://example.com/API/Users"},
		{"query preserved", "https://example.com/api?Token=AbC1", "https://example.com/api?Token=AbC1"},
		{"path-only unchanged", "/api/users?page=1", "/api/users?page=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.input); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ====== Matching Tests ======

func TestMatchAttachesAllExchangesSharingURL(t *testing.T) {
	doc := &capture.Document{
		Exchanges: []capture.Exchange{
			{Method: "GET", URL: "/api/users?page=1", Status: 200},
			{Method: "GET", URL: "/api/other", Status: 200},
			{Method: "GET", URL: "/api/users?page=1", Status: 200},
		},
	}
	scored := []judge.ScoredEndpoint{
		{URL: "/api/users?page=1", Justification: "user data", UsefulnessScore: 75},
	}

	matched := testMatcher().Match(doc, scored)

	if len(matched) != 1 {
		t.Fatalf("expected 1 matched request, got %d", len(matched))
	}
	if len(matched[0].Exchanges) != 2 {
		t.Errorf("expected both exchanges attached, got %d", len(matched[0].Exchanges))
	}
	if matched[0].Endpoint.URL != "/api/users?page=1" {
		t.Errorf("matched URL = %q, want source endpoint URL", matched[0].Endpoint.URL)
	}
}

func TestMatchHostCaseInsensitive(t *testing.T) {
	doc := &capture.Document{
		Exchanges: []capture.Exchange{
			{Method: "GET", URL: "https://API.example.com/api/users"},
		},
	}
	scored := []judge.ScoredEndpoint{
		{URL: "https://api.example.com/api/users", UsefulnessScore: 60},
	}

	matched := testMatcher().Match(doc, scored)
	if len(matched) != 1 {
		t.Fatalf("expected host-case-insensitive match, got %d results", len(matched))
	}
}

func TestMatchQueryByteExact(t *testing.T) {
	doc := &capture.Document{
		Exchanges: []capture.Exchange{
			{Method: "GET", URL: "https://example.com/api/users?page=1"},
		},
	}
	scored := []judge.ScoredEndpoint{
		{URL: "https://example.com/api/users?page=2", UsefulnessScore: 60},
	}

	matched := testMatcher().Match(doc, scored)
	if len(matched) != 0 {
		t.Errorf("different query values must not match, got %d results", len(matched))
	}
}

func TestMatchDropsUnmatchedWithoutFailing(t *testing.T) {
	doc := &capture.Document{
		Exchanges: []capture.Exchange{
			{Method: "GET", URL: "https://example.com/api/a"},
		},
	}
	scored := []judge.ScoredEndpoint{
		{URL: "https://example.com/api/a", UsefulnessScore: 80},
		{URL: "https://example.com/api/gone", UsefulnessScore: 90},
	}

	matched := testMatcher().Match(doc, scored)

	if len(matched) != 1 {
		t.Fatalf("expected 1 matched request, got %d", len(matched))
	}
	if matched[0].Endpoint.URL != "https://example.com/api/a" {
		t.Errorf("wrong endpoint survived: %q", matched[0].Endpoint.URL)
	}
}

func TestMatchPreservesScoredOrder(t *testing.T) {
	doc := &capture.Document{
		Exchanges: []capture.Exchange{
			{Method: "GET", URL: "https://example.com/api/b"},
			{Method: "GET", URL: "https://example.com/api/a"},
		},
	}
	scored := []judge.ScoredEndpoint{
		{URL: "https://example.com/api/a", UsefulnessScore: 90},
		{URL: "https://example.com/api/b", UsefulnessScore: 40},
	}

	matched := testMatcher().Match(doc, scored)

	if len(matched) != 2 {
		t.Fatalf("expected 2 matched requests, got %d", len(matched))
	}
	if matched[0].Endpoint.URL != "https://example.com/api/a" ||
		matched[1].Endpoint.URL != "https://example.com/api/b" {
		t.Errorf("scored order not preserved: %q, %q",
			matched[0].Endpoint.URL, matched[1].Endpoint.URL)
	}
}
