// Package capture records the network traffic generated by a single page
// load in headless Chrome.
package capture

import "time"

// Exchange is one request/response pair observed during the page load.
// An Exchange is immutable once recorded.
type Exchange struct {
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	RequestHeaders  map[string]string `json:"request_headers"`
	RequestBody     string            `json:"request_body,omitempty"`
	Status          int               `json:"status"`
	ResponseHeaders map[string]string `json:"response_headers"`
	ResponseBody    string            `json:"response_body,omitempty"`
	ResponseSize    int64             `json:"response_size"`
	ResourceType    string            `json:"resource_type,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	Duration        time.Duration     `json:"duration"`
}

// Document is the complete record of one capture: every exchange in
// arrival order, plus the target and timing of the run.
type Document struct {
	Target     string     `json:"target"`
	FinalURL   string     `json:"final_url"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Exchanges  []Exchange `json:"exchanges"`
}

// ExchangeCount returns the number of recorded exchanges.
func (d *Document) ExchangeCount() int {
	return len(d.Exchanges)
}
