package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://open.feishu.cn/open-apis"

// Client wraps the Lark messaging API. Tenant access tokens are cached
// and refreshed a minute before expiry.
type Client struct {
	appID     string
	appSecret string
	baseURL   string
	http      *http.Client
	logger    *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpire time.Time
}

// NewClient creates a Lark client for a self-built app.
func NewClient(appID, appSecret string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 20 * time.Second},
		logger:    logger,
	}
}

// NewClientWithBaseURL creates a client against a custom endpoint.
func NewClientWithBaseURL(appID, appSecret, baseURL string, logger *slog.Logger) *Client {
	c := NewClient(appID, appSecret, logger)
	c.baseURL = baseURL
	return c
}

// ReceiveIDType infers the id type from the Lark id prefix.
func ReceiveIDType(receiveID string) string {
	switch {
	case strings.HasPrefix(receiveID, "oc_"):
		return "chat_id"
	case strings.HasPrefix(receiveID, "ou_"):
		return "open_id"
	default:
		return "user_id"
	}
}

// SendCard delivers an interactive card to a chat or user.
func (c *Client) SendCard(ctx context.Context, receiveID string, card Card) error {
	content, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}
	path := "/im/v1/messages?receive_id_type=" + ReceiveIDType(receiveID)
	return c.post(ctx, path, map[string]any{
		"receive_id": receiveID,
		"msg_type":   "interactive",
		"content":    string(content),
	})
}

// ReplyThread delivers a card as a threaded reply under rootID.
func (c *Client) ReplyThread(ctx context.Context, chatID, rootID string, card Card) error {
	content, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}
	return c.post(ctx, "/im/v1/messages?receive_id_type=chat_id", map[string]any{
		"receive_id":      chatID,
		"msg_type":        "interactive",
		"content":         string(content),
		"reply_in_thread": true,
		"root_id":         rootID,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	token, err := c.tenantToken(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lark request: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return fmt.Errorf("lark request status=%d body=%s", res.StatusCode, string(body))
	}

	var r struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("decode lark response: %w", err)
	}
	if r.Code != 0 {
		return fmt.Errorf("lark api error code=%d msg=%s", r.Code, r.Msg)
	}
	return nil
}

func (c *Client) tenantToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExpire.Add(-time.Minute)) {
		t := c.token
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	data, _ := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/v3/tenant_access_token/internal", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get tenant token: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("get tenant token status=%d body=%s", res.StatusCode, string(body))
	}

	var r struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("decode tenant token: %w", err)
	}
	if r.Code != 0 {
		return "", fmt.Errorf("tenant token api error code=%d msg=%s", r.Code, r.Msg)
	}

	c.mu.Lock()
	c.token = r.TenantAccessToken
	c.tokenExpire = time.Now().Add(time.Duration(r.Expire) * time.Second)
	c.mu.Unlock()
	return r.TenantAccessToken, nil
}
