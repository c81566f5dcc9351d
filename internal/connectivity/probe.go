package connectivity

import (
	"context"
	"net/http"
	"time"
)

// HTTPProbe treats reachability of the remote service's health
// endpoint as the platform connectivity signal.
type HTTPProbe struct {
	url        string
	httpClient *http.Client
}

func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		url:        url,
		httpClient: &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *HTTPProbe) IsConnected(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
