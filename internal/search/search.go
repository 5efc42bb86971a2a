// Package search wraps a Serper-style web search/news API. Results are only
// used to pad prompt context when a candidate's tweet corpus is thin.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	logx "optobot/pkg/logx"
)

// Result is one formatted organic/news hit.
type Result struct {
	Title   string
	Link    string
	Snippet string
	// Date and Source are set for news results only.
	Date   time.Time
	Source string
}

type Config struct {
	BaseURL string
	APIKey  string
	Country string // "gl" parameter, e.g. "tw"
}

type Client struct {
	base    string
	apiKey  string
	country string
	http    *http.Client
	log     logx.Logger

	now func() time.Time
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://google.serper.dev"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	return &Client{
		base:    base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		country: cfg.Country,
		http:    rc.StandardClient(),
		log:     log,
		now:     time.Now,
	}
}

// Enabled reports whether the client has credentials to run queries.
func (c *Client) Enabled() bool { return c != nil && c.apiKey != "" }

type queryPayload struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	GL  string `json:"gl,omitempty"`
}

type organicDTO struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type newsDTO struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
	Source  string `json:"source"`
}

// Search runs a plain web search.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	var resp struct {
		Organic []organicDTO `json:"organic"`
	}
	if err := c.post(ctx, "/search", query, &resp); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(resp.Organic))
	for _, o := range resp.Organic {
		out = append(out, Result{Title: o.Title, Link: o.Link, Snippet: o.Snippet})
	}
	return out, nil
}

// News runs a news search and keeps only recent items (anything dated in
// months or years ago is dropped). Relative dates like "2 weeks ago" are
// converted to absolute timestamps.
func (c *Client) News(ctx context.Context, query string) ([]Result, error) {
	var resp struct {
		News []newsDTO `json:"news"`
	}
	if err := c.post(ctx, "/news", query, &resp); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(resp.News))
	for _, n := range resp.News {
		if !isRecent(n.Date) {
			continue
		}
		out = append(out, Result{
			Title:   n.Title,
			Link:    n.Link,
			Snippet: n.Snippet,
			Date:    convertRelativeDate(n.Date, c.now()),
			Source:  n.Source,
		})
	}
	return out, nil
}

// ContextText flattens results into "title snippet" lines for prompt building.
func ContextText(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		line := strings.TrimSpace(r.Title + " " + r.Snippet)
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

func (c *Client) post(ctx context.Context, path, query string, out any) error {
	if !c.Enabled() {
		return fmt.Errorf("search: no api key configured")
	}
	body, err := json.Marshal(queryPayload{Q: query, Num: 11, GL: c.country})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
