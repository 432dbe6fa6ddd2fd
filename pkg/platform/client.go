package platform

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// HTTPClient is a thin JSON POST client for collaborator calls. No retry
// loop: a failed remote call is terminal for the current task and retry
// policy belongs to the invoking orchestrator.
type HTTPClient struct {
	Client *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// PostJSON sends body as application/json with a bearer token.
func (c *HTTPClient) PostJSON(ctx context.Context, url, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.Client.Do(req)
}
