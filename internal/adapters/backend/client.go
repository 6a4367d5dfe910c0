// Package backend is the HTTP client for the conference backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// CreateConference claims a new conference and returns its slug.
func (c *Client) CreateConference(ctx context.Context, name string) (string, error) {
	body, status, err := c.post(ctx, c.baseURL+"/conferences", map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("create conference returned %d, message=%s", status, string(body))
	}
	var resp struct {
		Slug string `json:"slug"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode conference response: %w", err)
	}
	return resp.Slug, nil
}

// CreateParticipant asks the backend to admit a participant to the
// conference named by slug. Any non-2xx response is a JoinRejectedError
// carrying the status and the body text.
func (c *Client) CreateParticipant(ctx context.Context, slug, versionHint string) (*domain.Participant, error) {
	endpoint := fmt.Sprintf("%s/conferences/%s/participants", c.baseURL, url.PathEscape(slug))
	if versionHint != "" {
		endpoint = endpoint + "?version=" + url.QueryEscape(versionHint)
	}

	body, status, err := c.post(ctx, endpoint, map[string]string{"name": ""})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &domain.JoinRejectedError{Status: status, Message: string(body)}
	}

	var p domain.Participant
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode participant response: %w", err)
	}
	log.Info().
		Str("module", "backend").
		Str("slug", slug).
		Str("participant", string(p.ParticipantID)).
		Msg("participant created")
	return &p, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
