package capture

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/robbiethompson18/api-detection-engine/internal/errors"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
	"github.com/robbiethompson18/api-detection-engine/internal/metrics"
)

// Config defines capture session configuration.
type Config struct {
	Headless          bool          `json:"headless"`
	Timeout           time.Duration `json:"timeout"`
	SettleDelay       time.Duration `json:"settle_delay"`
	UserAgent         string        `json:"user_agent"`
	ViewportWidth     int           `json:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors"`
	MaxBodySize       int64         `json:"max_body_size"`
}

// DefaultConfig returns default capture configuration.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		Timeout:           60 * time.Second,
		SettleDelay:       5 * time.Second,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		IgnoreHTTPSErrors: true,
		MaxBodySize:       2 << 20,
	}
}

// Session wraps a Rod browser instance used for a single capture run.
type Session struct {
	browser *rod.Browser
	config  Config
	client  *http.Client
	log     *logger.Logger
	metrics *metrics.Collector
}

// NewSession launches a headless browser and connects to it.
func NewSession(config Config, log *logger.Logger, collector *metrics.Collector) (*Session, error) {
	l := launcher.New()

	if config.Headless {
		l = l.Headless(true)
	}
	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	url, err := l.Launch()
	if err != nil {
		return nil, errors.NewBrowserError("", "launch", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, errors.NewBrowserError("", "connect", err)
	}

	browser = browser.Timeout(config.Timeout)

	transport := &http.Transport{}
	if config.IgnoreHTTPSErrors {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Session{
		browser: browser,
		config:  config,
		client:  &http.Client{Transport: transport},
		log:     log.WithComponent("capture"),
		metrics: collector,
	}, nil
}

// Capture loads the target URL once and records every network exchange the
// page generates, in arrival order. The page is given SettleDelay after the
// load event so deferred XHR/fetch traffic is included.
func (s *Session) Capture(ctx context.Context, target string, headers map[string]string, cookies []*http.Cookie) (*Document, error) {
	doc := &Document{
		Target:    target,
		StartedAt: time.Now(),
		Exchanges: make([]Exchange, 0),
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, errors.NewBrowserError(target, "create page", err)
	}
	defer page.Close()

	page = page.Context(ctx)

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  s.config.ViewportWidth,
		Height: s.config.ViewportHeight,
	})

	if s.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: s.config.UserAgent,
		}.Call(page)
	}

	if len(headers) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range headers {
			networkHeaders[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
	}

	if len(cookies) > 0 {
		cookieParams := make([]*proto.NetworkCookieParam, 0, len(cookies))
		for _, cookie := range cookies {
			cookieParams = append(cookieParams, &proto.NetworkCookieParam{
				Name:     cookie.Name,
				Value:    cookie.Value,
				Domain:   cookie.Domain,
				Path:     cookie.Path,
				Secure:   cookie.Secure,
				HTTPOnly: cookie.HttpOnly,
			})
		}
		_ = page.SetCookies(cookieParams)
	}

	var mu sync.Mutex
	exchanges := make([]Exchange, 0)

	router := page.HijackRequests()
	err = router.Add("*", "", func(hijack *rod.Hijack) {
		started := time.Now()

		reqHeaders := make(map[string]string)
		for k, vals := range hijack.Request.Req().Header {
			if len(vals) > 0 {
				reqHeaders[k] = vals[0]
			}
		}

		exchange := Exchange{
			Method:         hijack.Request.Method(),
			URL:            hijack.Request.URL().String(),
			RequestHeaders: reqHeaders,
			RequestBody:    hijack.Request.Body(),
			ResourceType:   string(hijack.Request.Type()),
			StartedAt:      started,
		}

		// Fetch the real response so the body and status can be recorded.
		if loadErr := hijack.LoadResponse(s.client, true); loadErr != nil {
			s.log.WithURL(exchange.URL).WithError(loadErr).Debug("Failed to load response")
			hijack.Response.Fail(proto.NetworkErrorReasonFailed)
			return
		}

		payload := hijack.Response.Payload()
		exchange.Status = payload.ResponseCode
		respHeaders := make(map[string]string, len(payload.ResponseHeaders))
		for _, h := range payload.ResponseHeaders {
			respHeaders[h.Name] = h.Value
		}
		exchange.ResponseHeaders = respHeaders

		body := hijack.Response.Body()
		exchange.ResponseSize = int64(len(body))
		if s.config.MaxBodySize > 0 && exchange.ResponseSize > s.config.MaxBodySize {
			body = body[:s.config.MaxBodySize]
		}
		exchange.ResponseBody = body
		exchange.Duration = time.Since(started)

		mu.Lock()
		exchanges = append(exchanges, exchange)
		mu.Unlock()

		if s.metrics != nil {
			s.metrics.RecordExchange(exchange.ResponseSize)
		}
	})
	if err != nil {
		return nil, errors.NewBrowserError(target, "intercept", err)
	}

	go router.Run()
	defer router.Stop()

	s.log.WithURL(target).Info("Loading target page")

	if err := page.Navigate(target); err != nil {
		return nil, errors.NewBrowserError(target, "navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, errors.NewBrowserError(target, "wait load", err)
	}

	// Let deferred XHR/fetch traffic arrive before closing the page.
	if s.config.SettleDelay > 0 {
		select {
		case <-time.After(s.config.SettleDelay):
		case <-ctx.Done():
			return nil, errors.NewCancelledError(target, "capture")
		}
	}

	if info, err := page.Info(); err == nil && info != nil {
		doc.FinalURL = info.URL
	} else {
		doc.FinalURL = target
	}

	mu.Lock()
	doc.Exchanges = append(doc.Exchanges, exchanges...)
	mu.Unlock()

	doc.FinishedAt = time.Now()

	s.log.Event(logger.InfoLevel).
		Str("url", target).
		Int("exchanges", len(doc.Exchanges)).
		Dur("duration", doc.FinishedAt.Sub(doc.StartedAt)).
		Msg("Capture complete")

	return doc, nil
}

// Close closes the browser.
func (s *Session) Close() error {
	return s.browser.Close()
}
