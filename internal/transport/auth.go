package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ragchat/internal/domain"
)

// TokenResponse is returned by the login and register endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges a username and password for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	return c.tokenCall(ctx, "login", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/auth/token"), strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// Register creates an account and returns its first bearer token.
func (c *Client) Register(ctx context.Context, username, email, password string) (*TokenResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("register: marshal: %w", err)
	}

	return c.tokenCall(ctx, "register", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/auth/register"), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// tokenCall runs an unauthenticated auth request. Here a 401 means bad
// credentials, not an expired session.
func (c *Client) tokenCall(ctx context.Context, op string, build func(ctx context.Context) (*http.Request, error)) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	resp, err := c.send(req, op)
	if err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidCredentials)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if tok.AccessToken == "" {
		return nil, &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("response carried no access token")}
	}
	return &tok, nil
}
