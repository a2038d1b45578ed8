package driven

import (
	"context"
	"errors"

	"github.com/openvitals/vitalsync/internal/domain/model"
)

// ErrAuthenticationRequired is returned when the remote service rejects the
// presented credential (HTTP 401). It is kept distinct from transient network
// failures so callers can route the user to re-authentication instead of
// silently waiting for the next sync cycle.
var ErrAuthenticationRequired = errors.New("authentication required")

// TokenGrant is the normalized result of a token exchange or refresh.
// RefreshToken is empty when the server did not issue (or rotate) one.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds until the access token expires
}

// HealthAPI defines the driven port for the remote health service.
type HealthAPI interface {
	// ExchangeIdentityToken trades a third-party identity token for internal
	// bearer credentials.
	ExchangeIdentityToken(ctx context.Context, provider, identityToken, deviceID, platform string) (TokenGrant, error)

	// RefreshToken trades a refresh token for a new access token. A rotated
	// refresh token, when present in the grant, replaces the stored one.
	RefreshToken(ctx context.Context, refreshToken, deviceID, platform string) (TokenGrant, error)

	// FetchRecentLabResults returns the most recent lab results for the
	// authenticated user, newest first. Returns ErrAuthenticationRequired
	// when the access token is rejected.
	FetchRecentLabResults(ctx context.Context, accessToken string, limit int) ([]model.LabResult, error)
}
