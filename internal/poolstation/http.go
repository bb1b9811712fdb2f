package poolstation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

const DefaultBaseURL = "https://www.poolstation.net"

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// no cookie jar: poolstation.net session cookies must not be replayed
		client: &http.Client{Timeout: timeout},
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (string, error) {
	var res loginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/api/login", "", loginRequest{Email: email, Password: password}, &res); err != nil {
		return "", err
	}
	if res.Token == "" {
		return "", fmt.Errorf("login returned empty token: %w", ErrAuthentication)
	}
	log.Debug().Str("email", email).Msg("Poolstation login succeeded")
	return res.Token, nil
}

func (c *HTTPClient) ListPools(ctx context.Context, token string) ([]model.Pool, error) {
	var pools []model.Pool
	if err := c.do(ctx, "list pools", http.MethodGet, "/api/pools", token, nil, &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

func (c *HTTPClient) FetchPool(ctx context.Context, token, poolID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, "sync info", http.MethodGet, poolPath(poolID), token, nil, &snap); err != nil {
		return nil, err
	}
	snap.FetchedAt = time.Now()
	return &snap, nil
}

func (c *HTTPClient) SetTargetPH(ctx context.Context, token, poolID string, value float64) error {
	return c.setTarget(ctx, token, poolID, "target_ph", value)
}

func (c *HTTPClient) SetTargetORP(ctx context.Context, token, poolID string, value int) error {
	return c.setTarget(ctx, token, poolID, "target_orp", value)
}

func (c *HTTPClient) SetTargetClPPM(ctx context.Context, token, poolID string, value float64) error {
	return c.setTarget(ctx, token, poolID, "target_clppm", value)
}

func (c *HTTPClient) SetTargetElectrolysis(ctx context.Context, token, poolID string, value int) error {
	return c.setTarget(ctx, token, poolID, "target_percentage_electrolysis", value)
}

func (c *HTTPClient) setTarget(ctx context.Context, token, poolID, field string, value any) error {
	body := map[string]any{field: value}
	return c.do(ctx, "set "+field, http.MethodPut, poolPath(poolID)+"/targets", token, body, nil)
}

func poolPath(poolID string) string {
	return "/api/pools/" + url.PathEscape(poolID)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path, token string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &ClientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, ErrAuthentication)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ResponseError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &ResponseError{Op: op, StatusCode: resp.StatusCode, Message: "invalid body: " + err.Error()}
	}
	return nil
}
