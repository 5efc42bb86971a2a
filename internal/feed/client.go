package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	logx "optobot/pkg/logx"
)

// Source reads ranked posts and per-token corpora from the content source.
type Source interface {
	RankedPosts(ctx context.Context) ([]Candidate, error)
	PostsForToken(ctx context.Context, contractAddress string, limit int) ([]string, error)
}

// ClientConfig configures the content-source HTTP client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the trending-posts API.
type Client struct {
	base string
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("feed: base url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	// Transient network errors and 5xx are retried here; this is a read-only
	// API, so retries are safe.
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &Client{base: base, http: rc.StandardClient(), log: log}, nil
}

// wire types for GET /api/v1/tweets
type tweetDTO struct {
	User  userDTO   `json:"user"`
	Text  string    `json:"text"`
	Token *tokenDTO `json:"token,omitempty"`
}

type userDTO struct {
	Name           string `json:"name"`
	FollowersCount int    `json:"followersCount"`
}

type tokenDTO struct {
	Symbol string `json:"symbol,omitempty"`
	Chain  string `json:"chain,omitempty"`
	CA     string `json:"ca,omitempty"`
}

func (c *Client) RankedPosts(ctx context.Context) ([]Candidate, error) {
	var dtos []tweetDTO
	if err := c.getJSON(ctx, c.base+"/api/v1/tweets", &dtos); err != nil {
		return nil, fmt.Errorf("feed: ranked posts: %w", err)
	}
	out := make([]Candidate, 0, len(dtos))
	for _, d := range dtos {
		cand := Candidate{
			AuthorHandle:    d.User.Name,
			EngagementScore: d.User.FollowersCount,
			Excerpt:         d.Text,
		}
		if d.Token != nil && (d.Token.CA != "" || d.Token.Symbol != "") {
			cand.Token = &TokenRef{
				Symbol:          d.Token.Symbol,
				Chain:           d.Token.Chain,
				ContractAddress: d.Token.CA,
			}
		}
		out = append(out, cand)
	}
	return out, nil
}

func (c *Client) PostsForToken(ctx context.Context, contractAddress string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("contractAddress", contractAddress)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("onlyKol", "false")

	var dtos []tweetDTO
	if err := c.getJSON(ctx, c.base+"/api/v1/tweets?"+q.Encode(), &dtos); err != nil {
		return nil, fmt.Errorf("feed: posts for %s: %w", contractAddress, err)
	}
	texts := make([]string, 0, len(dtos))
	for _, d := range dtos {
		texts = append(texts, d.Text)
	}
	return texts, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
