package analysis

import (
	"net/http"
	"time"
)

// newPooledClient builds an http.Client tuned for repeated calls against a
// small set of hosts, grounded on HTTPTaskExecutor's pooled transport.
func newPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
