package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/domain"
)

// Client talks to the directory & document service. Identity and document
// operations go over HTTP; subscriptions (see stream.go) go over the
// websocket stream endpoint. Client implements domain.Directory.
type Client struct {
	serviceURL string
	streamURL  string
	appID      string
	httpClient *http.Client
	logger     *slog.Logger

	// populated after SignIn / Register / ExchangeToken
	mu          sync.RWMutex
	accessToken string
	uid         string
}

// NewClient creates a directory client from the loaded configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		serviceURL: cfg.ServiceURL,
		streamURL:  cfg.StreamURL,
		appID:      cfg.AppID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SignIn authenticates with an email/password credential and stores the
// session token for subsequent calls.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	body := credentialRequest{Email: email, Password: password}

	var resp sessionResponse
	if err := c.post(ctx, "/v1/identity/signIn", body, &resp); err != nil {
		return nil, &domain.AuthError{Reason: err.Error()}
	}

	c.setSession(resp.AccessToken, resp.UID)
	ident := resp.identity()
	return &ident, nil
}

// Register creates a new identity. The service signs the new identity in,
// so the session token is stored just like after SignIn.
func (c *Client) Register(ctx context.Context, email, password string) (*domain.Identity, error) {
	body := credentialRequest{Email: email, Password: password}

	var resp sessionResponse
	if err := c.post(ctx, "/v1/identity/register", body, &resp); err != nil {
		return nil, err
	}

	c.setSession(resp.AccessToken, resp.UID)
	ident := resp.identity()
	return &ident, nil
}

// UpdateIdentity sets display attributes on the signed-in identity.
func (c *Client) UpdateIdentity(ctx context.Context, displayName, avatarURL string) error {
	if c.token() == "" {
		return fmt.Errorf("not authenticated: call SignIn first")
	}

	body := updateIdentityRequest{DisplayName: displayName, AvatarURL: avatarURL}
	if err := c.post(ctx, "/v1/identity/update", body, nil); err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}

// SignOut ends the current session and drops the stored token.
func (c *Client) SignOut(ctx context.Context) error {
	if c.token() == "" {
		return nil
	}
	if err := c.post(ctx, "/v1/identity/signOut", struct{}{}, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	c.setSession("", "")
	return nil
}

// ExchangeToken trades a bootstrap credential for a signed-in identity.
func (c *Client) ExchangeToken(ctx context.Context, token string) (*domain.Identity, error) {
	body := exchangeTokenRequest{Token: token}

	var resp sessionResponse
	if err := c.post(ctx, "/v1/identity/exchangeToken", body, &resp); err != nil {
		return nil, &domain.AuthError{Reason: err.Error()}
	}

	c.setSession(resp.AccessToken, resp.UID)
	ident := resp.identity()
	return &ident, nil
}

// GetProfile reads a user's profile document.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	path := fmt.Sprintf("/v1/apps/%s/users/%s/profile", c.appID, userID)

	var resp wireProfile
	status, err := c.get(ctx, path, &resp)
	if status == http.StatusNotFound {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	profile := resp.profile()
	return &profile, nil
}

// PutProfile creates or replaces a user's profile document.
func (c *Client) PutProfile(ctx context.Context, userID string, profile domain.Profile) error {
	path := fmt.Sprintf("/v1/apps/%s/users/%s/profile", c.appID, userID)
	if err := c.put(ctx, path, toWireProfile(profile)); err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

// AppendPost appends a post to the public posts collection. The document ID
// and creation timestamp in the returned post are server-assigned.
func (c *Client) AppendPost(ctx context.Context, post domain.Post) (string, error) {
	path := fmt.Sprintf("/v1/apps/%s/posts", c.appID)

	var resp appendPostResponse
	if err := c.post(ctx, path, toWirePost(post), &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) setSession(token, uid string) {
	c.mu.Lock()
	c.accessToken = token
	c.uid = uid
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, result)
}

func (c *Client) put(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPut, path, payload, nil)
}

func (c *Client) get(ctx context.Context, path string, result any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.serviceURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

type credentialRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type exchangeTokenRequest struct {
	Token string `json:"token"`
}

type updateIdentityRequest struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

type sessionResponse struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	AccessToken string `json:"accessToken"`
}

func (r sessionResponse) identity() domain.Identity {
	return domain.Identity{
		UID:         r.UID,
		DisplayName: r.DisplayName,
		AvatarURL:   r.AvatarURL,
	}
}

type appendPostResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
