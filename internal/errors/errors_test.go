package errors

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// ErrorType Tests
// =============================================================================

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{Unknown, "unknown"},
		{Network, "network"},
		{Timeout, "timeout"},
		{RateLimit, "rate_limit"},
		{Auth, "auth"},
		{NotFound, "not_found"},
		{ServerError, "server_error"},
		{ClientError, "client_error"},
		{Parse, "parse"},
		{Browser, "browser"},
		{Input, "input"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorType_IsRetryable(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{Network, true},
		{Timeout, true},
		{RateLimit, true},
		{ServerError, true},
		{Auth, false},
		{NotFound, false},
		{ClientError, false},
		{Parse, false},
		{Input, false},
		{Cancelled, false},
		{Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			if got := tt.errType.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

// =============================================================================
// AnalysisError Tests
// =============================================================================

func TestAnalysisError_Error(t *testing.T) {
	err := NewAnalysisError(Network, "https://example.com", "replay", "connection failed", nil)

	errStr := err.Error()
	for _, want := range []string{"network", "replay", "https://example.com", "connection failed"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("Error() = %s, should contain %q", errStr, want)
		}
	}
}

func TestAnalysisError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewAnalysisError(Network, "https://example.com", "replay", "failed", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestAnalysisError_Is(t *testing.T) {
	err1 := NewAnalysisError(Network, "https://example.com", "replay", "failed", nil)
	err2 := NewAnalysisError(Network, "https://other.com", "request", "timeout", nil)
	err3 := NewAnalysisError(Timeout, "https://example.com", "replay", "timeout", nil)

	if !errors.Is(err1, err2) {
		t.Error("Errors with same type should match")
	}
	if errors.Is(err1, err3) {
		t.Error("Errors with different types should not match")
	}
}

func TestNewRateLimitError(t *testing.T) {
	err := NewRateLimitError("https://example.com", 60)

	if err.Type != RateLimit {
		t.Errorf("Type = %v, want RateLimit", err.Type)
	}
	if err.StatusCode != 429 {
		t.Errorf("StatusCode = %d, want 429", err.StatusCode)
	}
	if !err.Retryable {
		t.Error("Rate limit errors should be retryable")
	}
}

func TestNewAuthError(t *testing.T) {
	err := NewAuthError("https://example.com", 401, "unauthorized")

	if err.Type != Auth {
		t.Errorf("Type = %v, want Auth", err.Type)
	}
	if err.Retryable {
		t.Error("Auth errors should not be retryable")
	}
}

func TestNewInputError(t *testing.T) {
	err := NewInputError("", "target URL is required")

	if err.Type != Input {
		t.Errorf("Type = %v, want Input", err.Type)
	}
	if err.Retryable {
		t.Error("Input errors should not be retryable")
	}
	if !IsInputError(err) {
		t.Error("IsInputError should identify input errors")
	}
}

// =============================================================================
// Categorize Tests
// =============================================================================

func TestCategorize_AnalysisError(t *testing.T) {
	original := NewNetworkError("https://example.com", "replay", nil)
	categorized := Categorize(original, "https://example.com")

	if categorized != original {
		t.Error("Should return same AnalysisError")
	}
}

func TestCategorize_Nil(t *testing.T) {
	if Categorize(nil, "https://example.com") != nil {
		t.Error("Should return nil for nil error")
	}
}

func TestCategorize_ContextCanceled(t *testing.T) {
	err := errors.New("context canceled")
	categorized := Categorize(err, "https://example.com")

	if categorized.Type != Cancelled {
		t.Errorf("Type = %v, want Cancelled", categorized.Type)
	}
}

func TestCategorizeHTTPStatus(t *testing.T) {
	tests := []struct {
		status   int
		wantType ErrorType
		wantNil  bool
	}{
		{200, Unknown, true},
		{301, Unknown, true},
		{401, Auth, false},
		{403, Auth, false},
		{404, NotFound, false},
		{429, RateLimit, false},
		{400, ClientError, false},
		{500, ServerError, false},
		{503, ServerError, false},
	}

	for _, tt := range tests {
		err := CategorizeHTTPStatus(tt.status, "https://example.com")
		if tt.wantNil {
			if err != nil {
				t.Errorf("CategorizeHTTPStatus(%d) should return nil", tt.status)
			}
			continue
		}
		if err == nil {
			t.Errorf("CategorizeHTTPStatus(%d) should not return nil", tt.status)
			continue
		}
		if err.Type != tt.wantType {
			t.Errorf("CategorizeHTTPStatus(%d).Type = %v, want %v", tt.status, err.Type, tt.wantType)
		}
	}
}

// =============================================================================
// Retry Tests
// =============================================================================

func TestRetrier_Do_Success(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return nil
	})

	if !result.Success {
		t.Error("Should succeed")
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
}

func TestRetrier_Do_RetryOnError(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     2,
		InitialDelay:   1 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	})

	calls := 0
	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewNetworkError("url", "op", nil)
		}
		return nil
	})

	if !result.Success {
		t.Error("Should succeed after retries")
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestRetrier_Do_NoRetryForNonRetryable(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return NewNotFoundError("url")
	})

	if result.Success {
		t.Error("Should fail")
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1 (no retry)", calls)
	}
}

func TestRetrier_Do_ContextCancellation(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     5,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       1 * time.Second,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	})

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := r.Do(ctx, "test", "url", func(ctx context.Context) error {
		return NewNetworkError("url", "op", nil)
	})

	if result.Success {
		t.Error("Should fail on cancellation")
	}
	if result.LastError == nil {
		t.Error("LastError should be set")
	}
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt    int
		initial    time.Duration
		max        time.Duration
		multiplier float64
		want       time.Duration
	}{
		{0, time.Second, 10 * time.Second, 2.0, time.Second},
		{1, time.Second, 10 * time.Second, 2.0, time.Second},
		{2, time.Second, 10 * time.Second, 2.0, 2 * time.Second},
		{3, time.Second, 10 * time.Second, 2.0, 4 * time.Second},
		{5, time.Second, 10 * time.Second, 2.0, 10 * time.Second}, // Capped at max
	}

	for _, tt := range tests {
		got := BackoffDuration(tt.attempt, tt.initial, tt.max, tt.multiplier)
		if got != tt.want {
			t.Errorf("BackoffDuration(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// =============================================================================
// Circuit Breaker Tests
// =============================================================================

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewDefaultCircuitBreaker()

	if cb.State() != Closed {
		t.Errorf("Initial state = %v, want Closed", cb.State())
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		Timeout:          time.Second,
	})

	for i := 0; i < 3; i++ {
		cb.Allow()
		cb.RecordFailure()
	}

	if cb.State() != Open {
		t.Errorf("State after 3 failures = %v, want Open", cb.State())
	}
}

func TestCircuitBreaker_BlockWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Hour,
	})

	cb.Allow()
	cb.RecordFailure()

	if cb.Allow() {
		t.Error("Should not allow requests when open")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	cb.Allow()
	cb.RecordFailure()

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Error("Should allow request after timeout")
	}
	if cb.State() != HalfOpen {
		t.Errorf("State after timeout = %v, want HalfOpen", cb.State())
	}
}

func TestCircuitBreaker_CloseAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          1 * time.Millisecond,
	})

	cb.Allow()
	cb.RecordFailure()

	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 2; i++ {
		cb.Allow()
		cb.RecordSuccess()
	}

	if cb.State() != Closed {
		t.Errorf("State after successes = %v, want Closed", cb.State())
	}
}

func TestCircuitBreaker_ReopenOnFailureInHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          1 * time.Millisecond,
	})

	cb.Allow()
	cb.RecordFailure()

	time.Sleep(5 * time.Millisecond)

	cb.Allow()
	cb.RecordFailure()

	if cb.State() != Open {
		t.Errorf("State after failure in half-open = %v, want Open", cb.State())
	}
}
