package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Message    string    `json:"message"`
	Token      string    `json:"token"`
	ResetToken string    `json:"resetToken"`
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func kindForStatus(code int) error {
	switch {
	case code == http.StatusBadRequest:
		return ErrRejected
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrLocked
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrServer
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, body any) (*apiResponse, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	out := &apiResponse{}
	_ = json.NewDecoder(resp.Body).Decode(out)

	if resp.StatusCode >= 300 {
		return nil, &APIError{Kind: kindForStatus(resp.StatusCode), Message: out.Message}
	}
	return out, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Register(ctx context.Context, username, password string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": username, "password": password})
	return err
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (string, error) {
	out, err := c.do(ctx, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *HTTPClient) ForgotPassword(ctx context.Context, username string) (string, error) {
	out, err := c.do(ctx, http.MethodPost, "/api/auth/forgot-password", "",
		map[string]string{"username": username})
	if err != nil {
		return "", err
	}
	return out.ResetToken, nil
}

func (c *HTTPClient) ResetPassword(ctx context.Context, token, newPassword string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/auth/reset-password", "",
		map[string]string{"token": token, "newPassword": newPassword})
	return err
}

func (c *HTTPClient) Me(ctx context.Context, token string) (*Identity, error) {
	out, err := c.do(ctx, http.MethodGet, "/api/auth/me", token, nil)
	if err != nil {
		return nil, err
	}
	return &Identity{ID: out.ID, UserName: out.Username, ExpiresAt: out.ExpiresAt}, nil
}
