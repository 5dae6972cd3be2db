package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	connectTimeout = 5 * time.Second
	requestTimeout = 30 * time.Second
)

// Prereq describes one auxiliary installer that must run before a title's
// first launch. Path is relative to the install's first folder.
type Prereq struct {
	Path    string `json:"path"`
	Command string `json:"command"`
}

// Client talks to the catalog service. All endpoints live under a
// per-platform path prefix:
//
//	{base}/{platform}/list.txt
//	{base}/{platform}/executable_paths.json
//	{base}/{platform}/redist_paths.json
//	{base}/{platform}/{gameId}.tar.gz
type Client struct {
	baseURL    string
	platform   Platform
	httpClient *http.Client
}

// NewClient creates a catalog client for the given service base URL and
// platform prefix.
func NewClient(baseURL string, platform Platform) *Client {
	return &Client{
		baseURL:  baseURL,
		platform: platform,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				ResponseHeaderTimeout: requestTimeout,
			},
		},
	}
}

// Platform returns the platform prefix the client fetches under.
func (c *Client) Platform() Platform {
	return c.platform
}

func (c *Client) endpoint(name string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.platform, name)
}

// ArchiveURL returns the download URL for a title's packaged archive.
func (c *Client) ArchiveURL(gameID string) string {
	return c.endpoint(gameID + ".tar.gz")
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return resp, nil
}

// FetchEntries downloads and parses the platform's catalog feed.
func (c *Client) FetchEntries(ctx context.Context) ([]Entry, error) {
	resp, err := c.get(ctx, c.endpoint("list.txt"))
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	entries, err := ParseList(resp.Body, c.platform)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return entries, nil
}

// FetchExecutablePaths downloads the gameId -> relative executable path map.
func (c *Client) FetchExecutablePaths(ctx context.Context) (map[string]string, error) {
	resp, err := c.get(ctx, c.endpoint("executable_paths.json"))
	if err != nil {
		return nil, fmt.Errorf("fetch executable paths: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	paths := make(map[string]string)
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		return nil, fmt.Errorf("fetch executable paths: %w", err)
	}
	return paths, nil
}

// FetchPrereqs downloads the gameId -> prerequisite installers map.
func (c *Client) FetchPrereqs(ctx context.Context) (map[string][]Prereq, error) {
	resp, err := c.get(ctx, c.endpoint("redist_paths.json"))
	if err != nil {
		return nil, fmt.Errorf("fetch prerequisites: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	prereqs := make(map[string][]Prereq)
	if err := json.NewDecoder(resp.Body).Decode(&prereqs); err != nil {
		return nil, fmt.Errorf("fetch prerequisites: %w", err)
	}
	return prereqs, nil
}
