package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://slack.com/api"

// Client is a minimal Slack Web API client covering the handful of calls
// the service needs. Responses with ok=false are surfaced as errors with
// the Slack error code; 5xx statuses produce a retryable error.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

// PostMessage sends a message and returns its ts. Blocks may be nil for a
// plain text message.
func (c *Client) PostMessage(ctx context.Context, channel, text string, blocks []Block) (string, error) {
	payload := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}

	var resp apiResponse
	if err := c.post(ctx, "/chat.postMessage", payload, &resp); err != nil {
		return "", err
	}
	return resp.TS, nil
}

// UpdateMessage replaces the text and blocks of an existing message.
func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []Block) error {
	payload := map[string]any{
		"channel": channel,
		"ts":      ts,
		"text":    text,
	}
	// An explicit empty array clears the previous blocks; omitting the
	// key would leave them in place.
	if blocks == nil {
		blocks = []Block{}
	}
	payload["blocks"] = blocks

	var resp apiResponse
	return c.post(ctx, "/chat.update", payload, &resp)
}

type conversationResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

// OpenConversation opens (or reuses) a DM channel with a user.
func (c *Client) OpenConversation(ctx context.Context, userID string) (string, error) {
	payload := map[string]any{"users": userID}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversations.open", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return "", fmt.Errorf("slack api 5xx: %d", httpResp.StatusCode)
	}

	var resp conversationResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("slack api error: %s", resp.Error)
	}
	return resp.Channel.ID, nil
}

// AddReaction adds an emoji reaction. already_reacted is treated as
// success so retried handlers stay quiet.
func (c *Client) AddReaction(ctx context.Context, channel, ts, name string) error {
	payload := map[string]any{
		"channel":   channel,
		"timestamp": ts,
		"name":      name,
	}

	var resp apiResponse
	err := c.post(ctx, "/reactions.add", payload, &resp)
	if err != nil && resp.Error == "already_reacted" {
		return nil
	}
	return err
}

type UserInfo struct {
	ID string
	TZ string
}

type userInfoResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		ID string `json:"id"`
		TZ string `json:"tz"`
	} `json:"user"`
}

// GetUserInfo fetches a user's profile, mainly for the timezone field.
func (c *Client) GetUserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	endpoint := c.baseURL + "/users.info?user=" + url.QueryEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("slack api 5xx: %d", httpResp.StatusCode)
	}

	var resp userInfoResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("slack api error: %s", resp.Error)
	}
	return &UserInfo{ID: resp.User.ID, TZ: resp.User.TZ}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out *apiResponse) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return fmt.Errorf("slack api 5xx: %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack api error: status %d", httpResp.StatusCode)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("slack api error: %s", out.Error)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
}
