package healthapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClientWithHTTPClient(srv.URL, srv.Client())
	require.NoError(t, err)
	return client
}

func TestExchangeIdentityToken_CamelCaseResponse(t *testing.T) {
	var gotBody map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/auth/exchange", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "access-1",
			"refreshToken": "refresh-1",
			"expiresIn":    3300,
		})
	}))

	grant, err := client.ExchangeIdentityToken(context.Background(), "apple", "id-token", "device-1", "linux")
	require.NoError(t, err)

	assert.Equal(t, "access-1", grant.AccessToken)
	assert.Equal(t, "refresh-1", grant.RefreshToken)
	assert.Equal(t, 3300, grant.ExpiresIn)

	assert.Equal(t, "apple", gotBody["provider"])
	assert.Equal(t, "id-token", gotBody["identityToken"])
	assert.Equal(t, "device-1", gotBody["deviceId"])
	assert.Equal(t, "linux", gotBody["devicePlatform"])
}

func TestRefreshToken_SnakeCaseResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/refresh", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-1", body["refreshToken"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"expires_in":    600,
		})
	}))

	grant, err := client.RefreshToken(context.Background(), "refresh-1", "device-1", "linux")
	require.NoError(t, err)

	assert.Equal(t, "access-2", grant.AccessToken)
	assert.Equal(t, "refresh-2", grant.RefreshToken)
	assert.Equal(t, 600, grant.ExpiresIn)
}

func TestRefreshToken_Unauthorized(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.RefreshToken(context.Background(), "revoked", "device-1", "linux")
	assert.ErrorIs(t, err, driven.ErrAuthenticationRequired)
}

func TestExchangeIdentityToken_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "upstream identity provider unavailable"})
	}))

	_, err := client.ExchangeIdentityToken(context.Background(), "apple", "id-token", "device-1", "linux")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream identity provider unavailable")
	assert.NotErrorIs(t, err, driven.ErrAuthenticationRequired)
}

func TestExchangeIdentityToken_MissingAccessToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"expiresIn": 3300})
	}))

	_, err := client.ExchangeIdentityToken(context.Background(), "apple", "id-token", "device-1", "linux")
	assert.Error(t, err)
}

func TestFetchRecentLabResults(t *testing.T) {
	takenAt := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/labs/recent", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"publicId": "4f7b2c9e-9f1a-4d3b-8a6e-1c2d3e4f5a6b",
				"takenAt":  takenAt.Format(time.RFC3339),
				"value":    2.8,
				"note":     "fasting",
				"flagged":  true,
				"deleted":  false,
			},
		})
	}))

	results, err := client.FetchRecentLabResults(context.Background(), "access-1", 50)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "4f7b2c9e-9f1a-4d3b-8a6e-1c2d3e4f5a6b", results[0].PublicID)
	assert.True(t, results[0].TakenAt.Equal(takenAt))
	assert.Equal(t, 2.8, results[0].Value)
	assert.Equal(t, "fasting", results[0].Note)
	assert.True(t, results[0].Flagged)
	assert.False(t, results[0].Deleted)
}

func TestFetchRecentLabResults_Unauthorized(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.FetchRecentLabResults(context.Background(), "expired", 50)
	assert.ErrorIs(t, err, driven.ErrAuthenticationRequired)
}

func TestFetchRecentLabResults_MissingPublicID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"takenAt": time.Now().Format(time.RFC3339), "value": 1.0},
		})
	}))

	_, err := client.FetchRecentLabResults(context.Background(), "access-1", 50)
	assert.Error(t, err)
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}
