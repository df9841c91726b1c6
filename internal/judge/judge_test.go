package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/robbiethompson18/api-detection-engine/internal/errors"
	"github.com/robbiethompson18/api-detection-engine/internal/filter"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
)

// ====== Parse Tests ======

func TestParseValidBatch(t *testing.T) {
	content := `{"endpoints":[{"url":"/api/users?page=1","justification":"user data","usefulness_score":75}]}`

	outcome := Parse(content)
	if !outcome.Parsed() {
		t.Fatalf("expected parsed outcome, got malformed: %q", outcome.Malformed)
	}
	if len(outcome.Batch.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(outcome.Batch.Endpoints))
	}

	ep := outcome.Batch.Endpoints[0]
	if ep.URL != "/api/users?page=1" || ep.UsefulnessScore != 75 {
		t.Errorf("unexpected endpoint: %+v", ep)
	}
}

func TestParseStripsCodeFences(t *testing.T) {
	content := "```json\n{\"endpoints\":[{\"url\":\"/api/a\",\"justification\":\"x\",\"usefulness_score\":10}]}\n```"

	outcome := Parse(content)
	if !outcome.Parsed() {
		t.Fatalf("expected parsed outcome, got malformed: %q", outcome.Malformed)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "the endpoints look valuable"},
		{"wrong shape", `{"results":[]}`},
		{"empty endpoints", `{"endpoints":[]}`},
		{"all scores out of range", `{"endpoints":[{"url":"/a","usefulness_score":150}]}`},
		{"missing url", `{"endpoints":[{"justification":"x","usefulness_score":50}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Parse(tt.content)
			if outcome.Parsed() {
				t.Errorf("Parse(%q) parsed, want malformed", tt.content)
			}
			if outcome.Malformed != tt.content {
				t.Errorf("Malformed = %q, want raw content", outcome.Malformed)
			}
		})
	}
}

func TestParseSkipsOutOfRangeEntries(t *testing.T) {
	content := `{"endpoints":[
		{"url":"/a","justification":"x","usefulness_score":101},
		{"url":"/b","justification":"y","usefulness_score":55}
	]}`

	outcome := Parse(content)
	if !outcome.Parsed() {
		t.Fatalf("expected parsed outcome, got malformed")
	}
	if len(outcome.Batch.Endpoints) != 1 || outcome.Batch.Endpoints[0].URL != "/b" {
		t.Errorf("expected only /b to survive, got %+v", outcome.Batch.Endpoints)
	}
}

func TestParseScoreBounds(t *testing.T) {
	for _, score := range []int{0, 100} {
		content := `{"endpoints":[{"url":"/a","justification":"x","usefulness_score":` +
			jsonInt(score) + `}]}`
		if !Parse(content).Parsed() {
			t.Errorf("score %d should be valid", score)
		}
	}
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// ====== Client Tests ======

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	reply := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
}

func testClient(endpoint string) *Client {
	return NewClient(Config{
		Endpoint: endpoint,
		Model:    "test-model",
		APIKey:   "test-key",
	}, logger.NewDefault())
}

func TestJudgeBatch(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		chatReply(t, w, `{"endpoints":[{"url":"https://example.com/api/users","justification":"user data","usefulness_score":80}]}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	outcome, err := client.JudgeBatch(context.Background(), map[string]filter.Candidate{
		"https://example.com/api/users": {URL: "https://example.com/api/users", Method: "GET"},
	})
	if err != nil {
		t.Fatalf("JudgeBatch failed: %v", err)
	}

	if !outcome.Parsed() {
		t.Fatalf("expected parsed outcome, got malformed: %q", outcome.Malformed)
	}
	if outcome.Batch.Endpoints[0].UsefulnessScore != 80 {
		t.Errorf("score = %d, want 80", outcome.Batch.Endpoints[0].UsefulnessScore)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("expected system+user messages, got %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, `"endpoints"`) {
		t.Errorf("user message missing endpoints payload: %q", gotReq.Messages[1].Content)
	}
}

func TestJudgeBatchMalformedReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "I could not find any valuable endpoints.")
	}))
	defer server.Close()

	outcome, err := testClient(server.URL).JudgeBatch(context.Background(), map[string]filter.Candidate{
		"https://example.com/api/users": {URL: "https://example.com/api/users", Method: "GET"},
	})
	if err != nil {
		t.Fatalf("JudgeBatch failed: %v", err)
	}
	if outcome.Parsed() {
		t.Error("expected malformed outcome for free-text reply")
	}
}

func TestJudgeBatchAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).JudgeBatch(context.Background(), map[string]filter.Candidate{
		"https://example.com/api/users": {URL: "https://example.com/api/users", Method: "GET"},
	})
	if err == nil {
		t.Fatal("expected error for auth rejection")
	}
	if !errors.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestJudgeBatchCircuitOpen(t *testing.T) {
	client := testClient("http://127.0.0.1:1")
	for i := 0; i < 10; i++ {
		client.breaker.RecordFailure()
	}

	_, err := client.JudgeBatch(context.Background(), map[string]filter.Candidate{
		"https://example.com/api/a": {URL: "https://example.com/api/a", Method: "GET"},
	})
	if err == nil {
		t.Fatal("expected error while circuit is open")
	}
	if !strings.Contains(err.Error(), "circuit open") {
		t.Errorf("unexpected error: %v", err)
	}
}
