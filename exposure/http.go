package exposure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const (
	// ExposuresPath is the directory resource for exposed ids.
	ExposuresPath = "/exposures"
	// DefaultHTTPTimeout bounds each directory request.
	DefaultHTTPTimeout = 15 * time.Second

	maxResponseBytes = 8 << 20
)

// BuildHTTP2Client creates a client that negotiates HTTP/2 over TLS and falls
// back to HTTP/1.1 for plain-text directories.
func BuildHTTP2Client(timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2 transport: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// HTTPDirectory talks to a remote exposure directory.
type HTTPDirectory struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDirectory creates a directory client for baseURL. A nil client uses
// BuildHTTP2Client with the default timeout.
func NewHTTPDirectory(baseURL string, client *http.Client) (*HTTPDirectory, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("exposure directory url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse exposure directory url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported exposure directory scheme %q", parsed.Scheme)
	}

	if client == nil {
		client, err = BuildHTTP2Client(DefaultHTTPTimeout)
		if err != nil {
			return nil, err
		}
	}

	return &HTTPDirectory{
		endpoint: strings.TrimRight(baseURL, "/") + ExposuresPath,
		client:   client,
	}, nil
}

// FetchExposedIDs downloads the full exposed id list.
func (d *HTTPDirectory) FetchExposedIDs(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build exposure request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch exposures: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read exposures: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch exposures: unexpected status %d", resp.StatusCode)
	}

	ids, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	log.Debugf("fetched %d exposed ids from %s", len(ids), d.endpoint)
	return ids, nil
}

// PublishExposedIDs reports contact ids to the directory.
func (d *HTTPDirectory) PublishExposedIDs(ctx context.Context, ids []string) error {
	body, err := json.Marshal(exposureList{IDs: normalizeIDs(ids)})
	if err != nil {
		return fmt.Errorf("marshal exposures: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build exposure request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish exposures: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("publish exposures: unexpected status %d", resp.StatusCode)
	}
	return nil
}
