package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEndpoint posts to the external publishing API.
//
// Deliberately a plain http.Client with no retry layer: a failed or
// throttled post must surface as-is, the retry decision belongs upstream.
type HTTPEndpoint struct {
	base  string
	token string
	http  *http.Client
}

type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func NewHTTPEndpoint(cfg HTTPConfig) (*HTTPEndpoint, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("publisher: base url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPEndpoint{
		base:  base,
		token: strings.TrimSpace(cfg.Token),
		http:  &http.Client{Timeout: timeout},
	}, nil
}

type postPayload struct {
	Text string `json:"text"`
}

type errorBody struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (e *HTTPEndpoint) Post(ctx context.Context, text string) error {
	body, err := json.Marshal(postPayload{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/api/v1/post", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrThrottled, readDetail(resp.Body))
	default:
		detail := readDetail(resp.Body)
		// Some endpoints report quota exhaustion with a 403 + message rather
		// than a 429.
		if strings.Contains(strings.ToLower(detail), "quota") || strings.Contains(strings.ToLower(detail), "rate limit") {
			return fmt.Errorf("%w: %s", ErrThrottled, detail)
		}
		return fmt.Errorf("post: status %d: %s", resp.StatusCode, detail)
	}
}

func readDetail(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	var eb errorBody
	if err := json.Unmarshal(b, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Detail != "" {
			return eb.Detail
		}
	}
	return strings.TrimSpace(string(b))
}
