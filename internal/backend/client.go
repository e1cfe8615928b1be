// Package backend is the HTTP+JSON client for the streaming backend the
// playback core orchestrates over: source listings, subscription records,
// and playback position persistence.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"playback-session/internal/session"
)

// DefaultTimeout bounds every backend call. Source and entitlement queries
// are read-only and cheap; anything slower is treated as a failure by the
// caller's policy.
const DefaultTimeout = 10 * time.Second

// Client implements session.Backend over HTTP+JSON.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
	timeout time.Duration
}

var _ session.Backend = (*Client)(nil)

// New returns a Client for the backend at baseURL. If timeout <= 0,
// DefaultTimeout is used.
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
		timeout: timeout,
	}
}

// SourcesForMovie implements session.Backend.
func (c *Client) SourcesForMovie(ctx context.Context, movieID int64) ([]session.Source, error) {
	var out []session.Source
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/movies/%d/sources", movieID), nil, &out)
	return out, err
}

// SourcesForEpisode implements session.Backend.
func (c *Client) SourcesForEpisode(ctx context.Context, episodeID int64) ([]session.Source, error) {
	var out []session.Source
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/episodes/%d/sources", episodeID), nil, &out)
	return out, err
}

// EntitlementsForViewer implements session.Backend.
func (c *Client) EntitlementsForViewer(ctx context.Context, viewerID int64) ([]session.Entitlement, error) {
	var out []session.Entitlement
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/viewers/%d/subscriptions", viewerID), nil, &out)
	return out, err
}

// createPositionRequest is the body of POST /api/positions.
type createPositionRequest struct {
	ViewerID        int64                    `json:"viewer_id"`
	Content         session.ContentReference `json:"content"`
	SourceID        int64                    `json:"source_id"`
	PositionSeconds float64                  `json:"position_seconds"`
	DurationSeconds float64                  `json:"duration_seconds"`
}

// createPositionResponse carries the server-assigned record id.
type createPositionResponse struct {
	RecordID int64 `json:"record_id"`
}

// updatePositionRequest is the body of PUT /api/positions/{record_id}.
type updatePositionRequest struct {
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// CreatePosition implements session.Backend.
func (c *Client) CreatePosition(ctx context.Context, viewerID int64, ref session.ContentReference, sourceID int64, positionSeconds, durationSeconds float64) (int64, error) {
	req := createPositionRequest{
		ViewerID:        viewerID,
		Content:         ref,
		SourceID:        sourceID,
		PositionSeconds: positionSeconds,
		DurationSeconds: durationSeconds,
	}
	var resp createPositionResponse
	if err := c.do(ctx, http.MethodPost, "/api/positions", req, &resp); err != nil {
		return 0, err
	}
	if resp.RecordID <= 0 {
		return 0, fmt.Errorf("create position: backend returned record id %d", resp.RecordID)
	}
	return resp.RecordID, nil
}

// UpdatePosition implements session.Backend.
func (c *Client) UpdatePosition(ctx context.Context, recordID int64, positionSeconds, durationSeconds float64) error {
	req := updatePositionRequest{
		PositionSeconds: positionSeconds,
		DurationSeconds: durationSeconds,
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/positions/%d", recordID), req, nil)
}

// do performs one backend round trip with the client timeout applied on top
// of the caller's context. A non-2xx status is an error; the response body
// is decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
