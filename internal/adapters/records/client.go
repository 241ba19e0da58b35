// Package records talks to the live records API over HTTP.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tasteshift/live/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client implements core.RecordClient against /api/stories.
type Client struct {
	base string
	http *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the API rooted at baseURL, e.g.
// http://localhost:8080/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Fetch(ctx context.Context, id domain.RecordID) (domain.LiveRecord, error) {
	var rec domain.LiveRecord
	err := c.do(ctx, http.MethodGet, c.path(id, ""), nil, &rec)
	return rec, err
}

func (c *Client) List(ctx context.Context) ([]domain.LiveRecord, error) {
	var recs []domain.LiveRecord
	err := c.do(ctx, http.MethodGet, c.base+"/stories", nil, &recs)
	return recs, err
}

func (c *Client) Create(ctx context.Context, rec domain.LiveRecord) (domain.LiveRecord, error) {
	body := map[string]any{
		"userId":    rec.UserID,
		"mediaUrl":  rec.MediaURL,
		"isLive":    rec.IsLive,
		"channelId": rec.ChannelID,
	}
	var out domain.LiveRecord
	err := c.do(ctx, http.MethodPost, c.base+"/stories", body, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id domain.RecordID, owner domain.UserID) error {
	u := c.path(id, "") + "?userId=" + url.QueryEscape(string(owner))
	return c.do(ctx, http.MethodDelete, u, nil, nil)
}

func (c *Client) AppendComment(ctx context.Context, id domain.RecordID, author, text string) error {
	body := map[string]string{"user": author, "text": text}
	return c.do(ctx, http.MethodPost, c.path(id, "/comment"), body, nil)
}

func (c *Client) IncrementLike(ctx context.Context, id domain.RecordID) error {
	return c.do(ctx, http.MethodPost, c.path(id, "/like"), nil, nil)
}

func (c *Client) path(id domain.RecordID, suffix string) string {
	return c.base + "/stories/" + url.PathEscape(string(id)) + suffix
}

func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrRecordNotFound
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, u, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, u, err)
	}
	return nil
}
