// Package backend talks to the REST backend that owns the permission data.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atinyakov/PermKeeper/internal/models"
)

// PermissionsPath is the current-user permissions endpoint.
const PermissionsPath = "/api/permissions/me"

var (
	// ErrBackend wraps every failed or unusable backend response.
	ErrBackend = errors.New("backend error")
	// ErrNoCredentials is returned when no bearer token is available.
	ErrNoCredentials = errors.New("no session credentials")
)

// maxErrorBody bounds how much of an error response is kept in the message.
const maxErrorBody = 512

// Client fetches the signed-in user's permissions.
type Client struct {
	http         *http.Client
	baseURL      string
	tokens       TokenSource
	superAdminID string
}

// NewClient builds a Client. superAdminID is used to derive the super-admin
// flag for backends that do not send it explicitly; pass "" to disable.
func NewClient(httpClient *http.Client, baseURL string, tokens TokenSource, superAdminID string) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &Client{
		http:         httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokens:       tokens,
		superAdminID: superAdminID,
	}
}

// FetchPermissions calls the permission endpoint and converts the response.
func (c *Client) FetchPermissions(ctx context.Context) (models.Payload, error) {
	if c.tokens == nil {
		return models.Payload{}, ErrNoCredentials
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return models.Payload{}, err
	}
	if token == "" {
		return models.Payload{}, ErrNoCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PermissionsPath, nil)
	if err != nil {
		return models.Payload{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Payload{}, fmt.Errorf("%w: request failed: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return models.Payload{}, fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var body models.BackendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Payload{}, fmt.Errorf("%w: invalid response: %v", ErrBackend, err)
	}
	if body.Status != models.StatusSuccess {
		return models.Payload{}, fmt.Errorf("%w: status %q: %s", ErrBackend, body.Status, body.Message)
	}
	return body.Data.ToPayload(c.superAdminID), nil
}
