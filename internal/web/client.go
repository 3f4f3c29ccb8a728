package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pawpantry/pawpantry-go/internal/model"
)

// APIError is a non-2xx answer from the auth API.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s: %s", e.Status, e.Code, e.Message)
}

// APIClient calls the auth API on behalf of the web pages.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient returns a client for the API at baseURL. A nil client gets a
// default one with a 10 second timeout.
func NewAPIClient(baseURL string, client *http.Client) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *APIClient) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	var resp model.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", req, &resp)
	return resp, err
}

func (c *APIClient) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	var resp model.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", "", req, &resp)
	return resp, err
}

func (c *APIClient) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) (model.MessageResponse, error) {
	var resp model.MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/forgot-password", "", req, &resp)
	return resp, err
}

func (c *APIClient) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (model.MessageResponse, error) {
	var resp model.MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/reset-password", "", req, &resp)
	return resp, err
}

func (c *APIClient) Me(ctx context.Context, token string) (model.UserResponse, error) {
	var resp model.UserResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", token, nil, &resp)
	return resp, err
}

func (c *APIClient) ChangePassword(ctx context.Context, token string, req model.ChangePasswordRequest) (model.MessageResponse, error) {
	var resp model.MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/change-password", token, req, &resp)
	return resp, err
}

func (c *APIClient) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling auth api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody model.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errBody); err == nil {
			apiErr.Message, apiErr.Code = errBody.Error, errBody.Code
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
