package metrics

import (
	"net/http"
	"time"
)

// InstrumentedTransport wraps an http.RoundTripper and records one API call
// metric per request. The api parameter labels the upstream (e.g. "helius", "openai").
// Following the project's pattern, this returns a function that wraps a RoundTripper.
func InstrumentedTransport(m *Metrics, api string) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		if next == nil {
			next = http.DefaultTransport
		}
		return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(r)

			duration := time.Since(start).Seconds()
			status := "error"
			if err == nil {
				status = StatusFromCode(resp.StatusCode)
				if resp.StatusCode == http.StatusTooManyRequests {
					m.RecordRateLimitHit(api)
				}
			}
			m.RecordAPICall(api, r.Method, status, duration)

			return resp, err
		})
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Timer is a helper for timing operations.
// Usage:
//
//	defer Timer(time.Now(), func(duration float64) {
//	    metrics.RecordSomething(duration)
//	})()
func Timer(start time.Time, recordFunc func(float64)) func() {
	return func() {
		recordFunc(time.Since(start).Seconds())
	}
}
