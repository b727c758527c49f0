package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/swingdag/internal/api/handlers"
	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/httputil"
)

// ErrBacklogTruncated means the server no longer holds the requested events.
var ErrBacklogTruncated = errors.New("event backlog truncated")

// Client reads a remote swingdag API.
type Client struct {
	base string
	http *httputil.Client
}

// NewClient creates an API client for baseURL (e.g. http://localhost:8080).
func NewClient(baseURL string, hc *httputil.Client) *Client {
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// Sessions lists the remote sessions.
func (c *Client) Sessions(ctx context.Context) ([]handlers.SessionSummary, error) {
	var resp struct {
		Sessions []handlers.SessionSummary `json:"sessions"`
	}
	if err := c.http.GetJSON(ctx, c.base+"/api/sessions", &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Events fetches one page of events after the given sequence.
func (c *Client) Events(ctx context.Context, sessionID string, after uint64, limit int) (handlers.EventsResponse, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := fmt.Sprintf("%s/api/sessions/%s/events?%s", c.base, url.PathEscape(sessionID), q.Encode())

	var resp handlers.EventsResponse
	err := c.http.GetJSON(ctx, u, &resp)
	var se *httputil.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusGone {
		return resp, fmt.Errorf("%w: %s", ErrBacklogTruncated, se.Body)
	}
	return resp, err
}

// Tail polls for events after the given sequence and hands each page to fn
// until ctx is done or fn returns an error.
func (c *Client) Tail(ctx context.Context, sessionID string, after uint64, every time.Duration, fn func([]swing.Event) error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		page, err := c.Events(ctx, sessionID, after, 0)
		if err != nil {
			return err
		}
		if len(page.Events) > 0 {
			if err := fn(page.Events); err != nil {
				return err
			}
			after = page.Events[len(page.Events)-1].Seq
			if after < page.LastSeq {
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
