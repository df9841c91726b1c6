package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/robbiethompson18/api-detection-engine/internal/errors"
	"github.com/robbiethompson18/api-detection-engine/internal/filter"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
	"github.com/robbiethompson18/api-detection-engine/internal/ratelimit"
)

// Config defines the judgment service connection.
type Config struct {
	Endpoint    string        `json:"endpoint" yaml:"endpoint"`
	Model       string        `json:"model" yaml:"model"`
	APIKey      string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns default judgment service configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:    "https://api.openai.com",
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		MaxTokens:   5000,
		Timeout:     120 * time.Second,
	}
}

// APIKeyFromEnv returns the service API key from the environment.
func APIKeyFromEnv() string {
	if key := os.Getenv("JUDGE_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("OPENAI_API_KEY")
}

// chat completion wire types (OpenAI-compatible).
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Client calls the judgment service over its chat-completions surface.
type Client struct {
	config  Config
	http    *http.Client
	retrier *errors.Retrier
	breaker *errors.CircuitBreaker
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

// NewClient creates a judgment service client.
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultConfig().Endpoint
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if config.APIKey == "" {
		config.APIKey = APIKeyFromEnv()
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		retrier: errors.NewDefaultRetrier(),
		breaker: errors.NewDefaultCircuitBreaker(),
		limiter: ratelimit.NewLimiter(2, 1),
		log:     log.WithComponent("judge"),
	}
}

// JudgeBatch submits one batch of endpoint descriptors and returns the
// parse outcome for the service's reply. Transport errors are retried;
// repeated failures trip the circuit breaker so later batches fail fast.
func (c *Client) JudgeBatch(ctx context.Context, endpoints map[string]filter.Candidate) (ParseOutcome, error) {
	if !c.breaker.Allow() {
		return ParseOutcome{}, errors.NewAnalysisError(errors.Network, c.config.Endpoint,
			"judge batch", "judgment service circuit open", nil)
	}

	payload, err := json.MarshalIndent(map[string]interface{}{"endpoints": endpoints}, "", "  ")
	if err != nil {
		return ParseOutcome{}, errors.NewParseError(c.config.Endpoint, "encode batch", err)
	}

	content, result := errors.DoWithResult(ctx, c.retrier, "judge batch", c.config.Endpoint,
		func(ctx context.Context) (string, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", errors.NewCancelledError(c.config.Endpoint, "judge batch")
			}
			return c.complete(ctx, string(payload))
		})

	if !result.Success {
		c.breaker.RecordFailure()
		return ParseOutcome{}, result.LastError
	}
	c.breaker.RecordSuccess()

	return Parse(content), nil
}

// complete performs one chat-completions call and returns the reply text.
func (c *Client) complete(ctx context.Context, batchJSON string) (string, error) {
	reqPayload := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: "Here is a batch of API endpoints to analyze:\n\n" + batchJSON},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", errors.NewParseError(c.config.Endpoint, "encode request", err)
	}

	url := c.config.Endpoint + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.NewNetworkError(url, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Categorize(err, url)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.NewNetworkError(url, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.CategorizeHTTPStatus(resp.StatusCode, url)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", errors.NewParseError(url, "decode response", err)
	}
	if chatResp.Error != nil {
		return "", errors.NewAnalysisError(errors.ServerError, url, "judge batch",
			chatResp.Error.Message, nil)
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.NewParseError(url, "decode response", fmt.Errorf("no choices in reply"))
	}

	c.log.WithDuration(time.Since(start)).Debug("Judgment service call complete")

	return chatResp.Choices[0].Message.Content, nil
}
