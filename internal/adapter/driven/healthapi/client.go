// Package healthapi implements the HealthAPI port against the remote health
// service's HTTP endpoints.
package healthapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/openvitals/vitalsync/internal/domain/model"
	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// DefaultTimeout bounds every outbound call. GetAccessToken sits on the
// ordinary read path, so a hung exchange or refresh must never block it
// indefinitely.
const DefaultTimeout = 30 * time.Second

// Compile-time interface satisfaction check.
var _ driven.HealthAPI = (*Client)(nil)

// Client implements the driven.HealthAPI port. Fetches go through an
// ETag-based conditional request cache so unchanged record pages cost a 304
// instead of a full body.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string) (*Client, error) {
	return newClient(baseURL, &http.Client{
		Timeout:   DefaultTimeout,
		Transport: httpcache.NewMemoryCacheTransport(),
	})
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// Intended for testing against an httptest server.
func NewClientWithHTTPClient(baseURL string, hc *http.Client) (*Client, error) {
	return newClient(baseURL, hc)
}

func newClient(baseURL string, hc *http.Client) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	return &Client{baseURL: baseURL, hc: hc}, nil
}

// ExchangeIdentityToken posts the identity token to the exchange endpoint and
// returns the normalized grant.
func (c *Client) ExchangeIdentityToken(ctx context.Context, provider, identityToken, deviceID, platform string) (driven.TokenGrant, error) {
	body := struct {
		Provider       string `json:"provider"`
		IdentityToken  string `json:"identityToken"`
		DeviceID       string `json:"deviceId"`
		DevicePlatform string `json:"devicePlatform"`
	}{provider, identityToken, deviceID, platform}

	return c.postForGrant(ctx, "/v1/auth/exchange", body)
}

// RefreshToken posts the refresh token to the refresh endpoint and returns
// the normalized grant.
func (c *Client) RefreshToken(ctx context.Context, refreshToken, deviceID, platform string) (driven.TokenGrant, error) {
	body := struct {
		RefreshToken   string `json:"refreshToken"`
		DeviceID       string `json:"deviceId"`
		DevicePlatform string `json:"devicePlatform"`
	}{refreshToken, deviceID, platform}

	return c.postForGrant(ctx, "/v1/auth/refresh", body)
}

// FetchRecentLabResults retrieves the most recent lab results, newest first.
// A 401 response maps to driven.ErrAuthenticationRequired.
func (c *Client) FetchRecentLabResults(ctx context.Context, accessToken string, limit int) ([]model.LabResult, error) {
	u := c.baseURL + "/v1/labs/recent?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch lab results: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, driven.ErrAuthenticationRequired
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch lab results: %s", errorBody(resp))
	}

	var dtos []labResultDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("decode lab results: %w", err)
	}

	results := make([]model.LabResult, 0, len(dtos))
	for _, dto := range dtos {
		r, err := dto.toModel()
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (c *Client) postForGrant(ctx context.Context, path string, body any) (driven.TokenGrant, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return driven.TokenGrant{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return driven.TokenGrant{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return driven.TokenGrant{}, fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return driven.TokenGrant{}, driven.ErrAuthenticationRequired
	}
	if resp.StatusCode != http.StatusOK {
		return driven.TokenGrant{}, fmt.Errorf("post %s: %s", path, errorBody(resp))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return driven.TokenGrant{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return driven.TokenGrant{}, fmt.Errorf("token response missing access token or expiry")
	}

	return driven.TokenGrant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}, nil
}

func errorBody(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return resp.Status
	}
	return body.Error
}
