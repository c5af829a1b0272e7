package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// httpProber checks browser readiness through the DevTools version endpoint.
type httpProber struct {
	client *http.Client
}

func newHTTPProber() *httpProber {
	return &httpProber{client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *httpProber) probe(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL(endpoint), nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("version endpoint returned %s", resp.Status)
	}
	return nil
}

// versionURL maps a DevTools websocket endpoint to its HTTP metadata URL,
// e.g. ws://127.0.0.1:9222 to http://127.0.0.1:9222/json/version.
func versionURL(endpoint string) string {
	url := endpoint
	switch {
	case strings.HasPrefix(url, "wss://"):
		url = "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		url = "http://" + strings.TrimPrefix(url, "ws://")
	}
	url = strings.TrimRight(url, "/")
	if strings.HasSuffix(url, "/json/version") {
		return url
	}
	return url + "/json/version"
}
