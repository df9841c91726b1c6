// Package minimize reduces each matched request's header set to the
// smallest subset that still reproduces an equivalent response.
package minimize

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robbiethompson18/api-detection-engine/internal/errors"
)

// ReplayResult is the observable outcome of one replay.
type ReplayResult struct {
	StatusCode  int
	ContentType string
	Body        string
	RetryAfter  time.Duration
	Duration    time.Duration
}

// Replayer issues a single request with an exact header set.
type Replayer interface {
	Replay(ctx context.Context, method, targetURL string, headers map[string]string, body string) (*ReplayResult, error)
}

// ReplayClientConfig holds configuration for the replay client.
type ReplayClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxBodySize         int64
	SkipTLSVerify       bool
}

// DefaultReplayClientConfig returns tuned defaults.
func DefaultReplayClientConfig() ReplayClientConfig {
	return ReplayClientConfig{
		Timeout:             15 * time.Second,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		MaxBodySize:         5 * 1024 * 1024,
		SkipTLSVerify:       true,
	}
}

// ReplayClient sends requests with exactly the caller's headers: no
// defaults are merged in, since an implicit header would falsify the
// necessity evidence.
type ReplayClient struct {
	client      *http.Client
	maxBodySize int64
}

// NewReplayClient creates a replay client.
func NewReplayClient(config ReplayClientConfig) *ReplayClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	return &ReplayClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		maxBodySize: config.MaxBodySize,
	}
}

// Replay performs one request carrying exactly the given headers.
func (rc *ReplayClient) Replay(ctx context.Context, method, targetURL string, headers map[string]string, body string) (*ReplayResult, error) {
	start := time.Now()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, bodyReader)
	if err != nil {
		return nil, errors.NewParseError(targetURL, "create replay request", err)
	}

	for k, v := range headers {
		if strings.EqualFold(k, "Host") {
			req.Host = v
			continue
		}
		// Content-Length is computed from the body, not copied.
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, errors.Categorize(err, targetURL)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, rc.maxBodySize))
	if err != nil {
		return nil, errors.NewNetworkError(targetURL, "read replay body", err)
	}

	result := &ReplayResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(respBody),
		Duration:    time.Since(start),
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		result.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}

	return result, nil
}

// Close closes idle connections.
func (rc *ReplayClient) Close() {
	rc.client.CloseIdleConnections()
}

// parseRetryAfter parses a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
