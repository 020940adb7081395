package rpcpool

import (
	"net/url"
	"strings"
	"time"
)

// Endpoint is one candidate RPC URL and its health record.
// It is only mutated by its owning pool while the pool lock is held.
type Endpoint struct {
	URL      string
	Priority int
	// Label identifies the endpoint in logs, metrics, events and snapshots.
	// It never carries the URL path, query or credentials.
	Label string

	// Latency is the round trip of the last successful call or probe
	Latency time.Duration
	// AverageLatency is an exponential moving average of successful round trips
	AverageLatency      time.Duration
	ConsecutiveFailures int
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	LastError           error

	TotalRequests  uint64
	FailedRequests uint64
}

// NewEndpoint creates a new RPC endpoint
func NewEndpoint(url string, priority int) *Endpoint {
	return &Endpoint{
		URL:      url,
		Priority: priority,
		Label:    RedactURL(url),
	}
}

// RedactURL keeps the scheme and host of an endpoint URL and masks the rest.
// Provider URLs often carry an API key in the path or query.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	out := u.Scheme + "://" + u.Host
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.User != nil {
		out += "/***"
	}
	return out
}

// redact replaces the raw URL in text, typically an error message, with the label.
func (e *Endpoint) redact(text string) string {
	if e.URL == e.Label {
		return text
	}
	return strings.ReplaceAll(text, e.URL, e.Label)
}

// Healthy reports whether the endpoint failed fewer than maxFailures times in a row
func (e *Endpoint) Healthy(maxFailures int) bool {
	return e.ConsecutiveFailures < maxFailures
}

func (e *Endpoint) recordSuccess(latency time.Duration) {
	e.TotalRequests++
	e.ConsecutiveFailures = 0
	e.LastSuccessAt = time.Now()
	e.LastError = nil
	e.Latency = latency

	// Exponential moving average with alpha = 0.1
	if e.AverageLatency == 0 {
		e.AverageLatency = latency
	} else {
		e.AverageLatency = time.Duration(float64(e.AverageLatency)*0.9 + float64(latency)*0.1)
	}
}

func (e *Endpoint) recordFailure(err error) {
	e.TotalRequests++
	e.FailedRequests++
	e.ConsecutiveFailures++
	e.LastFailureAt = time.Now()
	e.LastError = err
}

func (e *Endpoint) status(active bool, maxFailures int) EndpointStatus {
	s := EndpointStatus{
		URL:                 e.Label,
		Priority:            e.Priority,
		Active:              active,
		Healthy:             e.Healthy(maxFailures),
		LatencyMs:           e.Latency.Milliseconds(),
		AverageLatencyMs:    e.AverageLatency.Milliseconds(),
		ConsecutiveFailures: e.ConsecutiveFailures,
		TotalRequests:       e.TotalRequests,
		FailedRequests:      e.FailedRequests,
		LastSuccessAt:       e.LastSuccessAt,
		LastFailureAt:       e.LastFailureAt,
	}
	if e.LastError != nil {
		s.LastError = e.redact(e.LastError.Error())
	}
	return s
}
