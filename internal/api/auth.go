package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tablepilot/crmsync/internal/models"
)

// LoginResult is the payload of a successful login.
type LoginResult struct {
	Access    string            `json:"access"`
	Refresh   string            `json:"refresh"`
	Principal *models.Principal `json:"user"`
}

// Login posts credentials and returns the issued token pair and principal.
// A success payload missing any of the three parts is ErrInvalidResponse.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login/", nil, body, &result, false); err != nil {
		return nil, err
	}

	if result.Access == "" || result.Refresh == "" || result.Principal == nil {
		return nil, fmt.Errorf("%w: login response missing access, refresh or user", ErrInvalidResponse)
	}

	return &result, nil
}

// Logout notifies the server to revoke the refresh token. The response body
// is ignored.
func (c *Client) Logout(ctx context.Context, refresh string) error {
	body := map[string]string{"refresh": refresh}
	return c.do(ctx, http.MethodPost, "/api/auth/logout/", nil, body, nil, true)
}

// Me fetches the identity behind the current bearer token.
func (c *Client) Me(ctx context.Context) (*models.Principal, error) {
	var principal models.Principal
	if err := c.get(ctx, "/api/auth/me/", nil, &principal); err != nil {
		return nil, err
	}

	if principal.ID == 0 || principal.Username == "" {
		return nil, fmt.Errorf("%w: identity response missing id or username", ErrInvalidResponse)
	}

	return &principal, nil
}
