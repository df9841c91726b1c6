package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robbiethompson18/api-detection-engine/internal/capture"
	"github.com/robbiethompson18/api-detection-engine/internal/filter"
	"github.com/robbiethompson18/api-detection-engine/internal/judge"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
	"github.com/robbiethompson18/api-detection-engine/internal/match"
	"github.com/robbiethompson18/api-detection-engine/internal/metrics"
	"github.com/robbiethompson18/api-detection-engine/internal/minimize"
	"github.com/robbiethompson18/api-detection-engine/internal/output"
	"github.com/robbiethompson18/api-detection-engine/internal/score"
)

// Stage names, in execution order.
const (
	StageCapture  = "capture"
	StageFilter   = "filter"
	StageScore    = "score"
	StageMatch    = "match"
	StageMinimize = "minimize"
)

// StageResult records one stage transition.
type StageResult struct {
	Stage       string        `json:"stage"`
	Success     bool          `json:"success"`
	Err         error         `json:"-"`
	Error       string        `json:"error,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// RunResult is the uniform outcome of one pipeline run. On failure no
// partial minimized output is produced.
type RunResult struct {
	Success    bool                          `json:"success"`
	Err        error                         `json:"-"`
	Stages     []StageResult                 `json:"stages"`
	Capture    *capture.Document             `json:"-"`
	Candidates []filter.Candidate            `json:"-"`
	Scored     []judge.ScoredEndpoint        `json:"-"`
	Matched    []match.MatchedRequest        `json:"-"`
	Results    []minimize.MinimizedHeaderSet `json:"results"`
	Metrics    metrics.Snapshot              `json:"metrics"`
	Duration   time.Duration                 `json:"duration"`
}

// Capturer records the traffic of one page load.
type Capturer interface {
	Capture(ctx context.Context, target string, headers map[string]string, cookies []*http.Cookie) (*capture.Document, error)
	Close() error
}

// Pipeline sequences capture, filter, score, match and minimize over one
// target. Stages run strictly in order; a failed stage short-circuits the
// rest. The pipeline owns no retry logic: retries live in the judge client
// and the minimizer.
type Pipeline struct {
	config   *Config
	log      *logger.Logger
	metrics  *metrics.Collector
	capturer Capturer
	judge    score.BatchJudge
	replayer minimize.Replayer
}

// Option is a functional option for configuring the Pipeline.
type Option func(*Pipeline) error

// New creates a Pipeline for the given configuration.
func New(config *Config, opts ...Option) (*Pipeline, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.Clone()
	config.applyDefaults()

	level := logger.InfoLevel
	if config.Verbose {
		level = logger.DebugLevel
	}

	p := &Pipeline{
		config:  config,
		log:     logger.New(logger.Config{Level: level, Pretty: true, Component: "pipeline"}),
		metrics: metrics.New(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Config returns a copy of the effective configuration.
func (p *Pipeline) Config() *Config {
	return p.config.Clone()
}

// Metrics returns the run's metrics collector.
func (p *Pipeline) Metrics() *metrics.Collector {
	return p.metrics
}

// Run executes the pipeline. All stage errors, including panics, are
// converted into the returned RunResult; nothing escapes.
func (p *Pipeline) Run(ctx context.Context) *RunResult {
	start := time.Now()
	result := &RunResult{Stages: make([]StageResult, 0, 5)}
	defer func() {
		result.Duration = time.Since(start)
		result.Metrics = p.metrics.Snapshot()
	}()

	// Input errors surface before any stage runs.
	if err := p.config.Validate(); err != nil {
		result.Err = err
		p.log.WithError(err).Error("Invalid configuration")
		return result
	}

	store, err := output.NewStore(p.config.OutputDir, true)
	if err != nil {
		result.Err = err
		return result
	}

	cookies, _ := capture.ParseCookieString(p.config.Cookies, p.config.Target)

	// Capture
	var doc *capture.Document
	ok := p.runStage(result, StageCapture, func() error {
		capturer := p.capturer
		if capturer == nil {
			session, err := capture.NewSession(p.config.Capture, p.log, p.metrics)
			if err != nil {
				return err
			}
			capturer = session
		}
		defer capturer.Close()

		d, err := capturer.Capture(ctx, p.config.Target, nil, cookies)
		if err != nil {
			return err
		}
		doc = d
		return store.WriteCapture(doc)
	})
	if !ok {
		return result
	}
	result.Capture = doc

	// Filter
	var candidates []filter.Candidate
	ok = p.runStage(result, StageFilter, func() error {
		candidates = filter.New(p.log, p.metrics).Filter(doc, p.config.Method)
		return store.WriteCandidates(candidates)
	})
	if !ok {
		return result
	}
	result.Candidates = candidates

	// Score
	var scored []judge.ScoredEndpoint
	ok = p.runStage(result, StageScore, func() error {
		client := p.judge
		if client == nil {
			client = judge.NewClient(p.config.Judge, p.log)
		}
		var err error
		scored, err = score.New(client, p.config.BatchSize, p.log, p.metrics).Score(ctx, candidates)
		if err != nil {
			return err
		}
		return store.WriteScored(scored)
	})
	if !ok {
		return result
	}
	result.Scored = scored

	// Match
	var matched []match.MatchedRequest
	ok = p.runStage(result, StageMatch, func() error {
		matched = match.New(p.log, p.metrics).Match(doc, scored)
		return store.WriteMatched(matched)
	})
	if !ok {
		return result
	}
	result.Matched = matched

	// Minimize
	var minimized []minimize.MinimizedHeaderSet
	ok = p.runStage(result, StageMinimize, func() error {
		replayer := p.replayer
		if replayer == nil {
			replayer = minimize.NewReplayClient(minimize.DefaultReplayClientConfig())
		}
		var err error
		minimized, err = minimize.New(replayer, p.config.Minimize, p.log, p.metrics).Minimize(ctx, matched)
		if err != nil {
			return err
		}
		return store.WriteMinimized(minimized)
	})
	if !ok {
		return result
	}

	result.Results = minimized
	result.Success = true
	return result
}

// runStage executes one stage, converting errors and panics into a
// StageResult.
func (p *Pipeline) runStage(result *RunResult, stage string, fn func() error) bool {
	start := time.Now()
	sr := StageResult{Stage: stage}

	func() {
		defer func() {
			if r := recover(); r != nil {
				sr.Err = fmt.Errorf("stage panic: %v", r)
			}
		}()
		sr.Err = fn()
	}()

	sr.Duration = time.Since(start)
	sr.Success = sr.Err == nil
	if sr.Err != nil {
		sr.Error = sr.Err.Error()
		p.metrics.RecordError(stage)
	}

	p.log.StageEvent(stage, sr.Success, sr.Duration)
	result.Stages = append(result.Stages, sr)
	return sr.Success
}
