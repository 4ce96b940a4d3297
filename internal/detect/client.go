// Package detect is the HTTP client for the remote theft-detection backend.
// It covers the three endpoints the dashboard consumes: the root health
// check, /generate/{mode} to switch the simulated meter, and /detect for a
// single reading.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to the detection backend. The zero-timeout http.Client is
// intentional: a hung request blocks only its own caller, never the periodic
// schedule, and the backend is expected to be local.
type Client struct {
	base string
	hc   *http.Client
	now  func() time.Time
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{},
		now:  time.Now,
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("backend returned HTTP %d for %s", resp.StatusCode, path)
	}
	return resp, nil
}

// Probe checks backend reachability with a single GET on the root endpoint.
// Any transport error or non-2xx status counts as unreachable. This runs
// once at startup; afterwards reachability is inferred from every fetch.
func (c *Client) Probe(ctx context.Context) bool {
	resp, err := c.get(ctx, "/")
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return true
}

// Generate switches the simulated meter to the named mode ("normal" or
// "theft"). The response body is informational only, but must be parseable
// JSON.
func (c *Client) Generate(ctx context.Context, mode string) error {
	resp, err := c.get(ctx, "/generate/"+mode)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode generate response: %w", err)
	}
	return nil
}

// Detect fetches one reading. The returned event carries a locale
// time-of-day capture timestamp and a fresh ID.
func (c *Client) Detect(ctx context.Context) (Event, error) {
	resp, err := c.get(ctx, "/detect")
	if err != nil {
		return Event{}, err
	}
	defer resp.Body.Close()

	var w wireDetection
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return Event{}, fmt.Errorf("failed to decode detection: %w", err)
	}

	e := w.toEvent()
	e.ID = uuid.New().String()
	e.Timestamp = c.now().Format("15:04:05")
	return e, nil
}
