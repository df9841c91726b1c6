package pipeline

import (
	"time"

	"github.com/robbiethompson18/api-detection-engine/internal/minimize"
	"github.com/robbiethompson18/api-detection-engine/internal/score"
)

// WithTarget sets the target URL to analyze.
func WithTarget(url string) Option {
	return func(p *Pipeline) error {
		p.config.Target = url
		return nil
	}
}

// WithMethod sets the HTTP method filter.
func WithMethod(method string) Option {
	return func(p *Pipeline) error {
		if method != "" {
			p.config.Method = method
		}
		return nil
	}
}

// WithCookies sets the cookie string applied to the capture session.
func WithCookies(cookies string) Option {
	return func(p *Pipeline) error {
		p.config.Cookies = cookies
		return nil
	}
}

// WithOutputDir enables per-stage artifact files in the given directory.
func WithOutputDir(dir string) Option {
	return func(p *Pipeline) error {
		p.config.OutputDir = dir
		return nil
	}
}

// WithBatchSize sets the number of candidates per judgment call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.config.BatchSize = n
		return nil
	}
}

// WithSettleDelay sets how long the capture waits after page load.
func WithSettleDelay(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.Capture.SettleDelay = d
		return nil
	}
}

// WithJudgeService sets the judgment service endpoint, model and API key.
func WithJudgeService(endpoint, model, apiKey string) Option {
	return func(p *Pipeline) error {
		if endpoint != "" {
			p.config.Judge.Endpoint = endpoint
		}
		if model != "" {
			p.config.Judge.Model = model
		}
		if apiKey != "" {
			p.config.Judge.APIKey = apiKey
		}
		return nil
	}
}

// WithCapturer replaces the browser capture session. Used by embedders
// that already hold a capture document.
func WithCapturer(c Capturer) Option {
	return func(p *Pipeline) error {
		p.capturer = c
		return nil
	}
}

// WithJudge replaces the judgment service client.
func WithJudge(j score.BatchJudge) Option {
	return func(p *Pipeline) error {
		p.judge = j
		return nil
	}
}

// WithReplayer replaces the header-minimization replay client.
func WithReplayer(r minimize.Replayer) Option {
	return func(p *Pipeline) error {
		p.replayer = r
		return nil
	}
}
