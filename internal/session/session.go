// Package session manages the authenticated session: the one-time identity
// token exchange, transparent access-token renewal, and sign-out. Credentials
// are mirrored into the secure store so the session survives process restart.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openvitals/vitalsync/internal/domain/model"
	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// RenewalWindow is how close to expiry an access token may get before
// GetAccessToken refreshes it ahead of returning.
const RenewalWindow = 5 * time.Minute

// Secure store keys for persisted credential material.
const (
	accessTokenKey  = "vitalsync_access_token"
	refreshTokenKey = "vitalsync_refresh_token"
	expiresAtKey    = "vitalsync_token_expires_at"
)

// Session holds the bearer credentials for the remote health service.
// All methods are safe for concurrent use; the refresh path is single-flight
// so a rotated (single-use) refresh token is never raced by two callers.
type Session struct {
	api      driven.HealthAPI
	store    driven.SecureStore
	deviceID string
	platform string
	now      func() time.Time

	mu     sync.Mutex
	cred   model.Credential
	loaded bool

	refreshGroup singleflight.Group
}

// New creates a Session. deviceID and platform identify this installation to
// the exchange and refresh endpoints.
func New(api driven.HealthAPI, store driven.SecureStore, deviceID, platform string) *Session {
	return &Session{
		api:      api,
		store:    store,
		deviceID: deviceID,
		platform: platform,
		now:      time.Now,
	}
}

// ExchangeIdentityToken trades a third-party identity token for internal
// credentials and persists them. On any transport or protocol failure the
// prior credentials, in memory and in the secure store, are left untouched.
func (s *Session) ExchangeIdentityToken(ctx context.Context, provider, identityToken string) error {
	grant, err := s.api.ExchangeIdentityToken(ctx, provider, identityToken, s.deviceID, s.platform)
	if err != nil {
		return fmt.Errorf("exchange identity token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyGrant(ctx, grant)
	slog.Info("identity token exchanged", "provider", provider, "expires_at", s.cred.ExpiresAt)
	return nil
}

// GetAccessToken returns a currently valid access token. When the stored
// token is within RenewalWindow of expiry, a refresh is attempted first; on
// refresh success the renewed token is returned. The second return is false
// when no usable token exists and the caller should treat the session as
// needing re-authentication.
func (s *Session) GetAccessToken(ctx context.Context) (string, bool) {
	s.mu.Lock()
	s.ensureLoaded(ctx)
	cred := s.cred
	s.mu.Unlock()

	if cred.AccessToken == "" {
		return "", false
	}

	if cred.ExpiresWithin(s.now(), RenewalWindow) {
		if err := s.RefreshAccessToken(ctx); err != nil {
			slog.Warn("token refresh failed", "error", err)
			// Fall through: the prior token may still be valid for a few
			// more minutes inside the renewal window.
		}
		s.mu.Lock()
		cred = s.cred
		s.mu.Unlock()
	}

	if !cred.Valid(s.now()) {
		return "", false
	}
	return cred.AccessToken, true
}

// RefreshAccessToken renews the access token using the stored refresh token.
// Concurrent callers share a single in-flight network refresh: refresh tokens
// may be single-use, so at most one outstanding refresh call exists at any
// time. On failure the prior credentials are left in place.
func (s *Session) RefreshAccessToken(ctx context.Context) error {
	_, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		s.mu.Lock()
		s.ensureLoaded(ctx)
		refreshToken := s.cred.RefreshToken
		s.mu.Unlock()

		if refreshToken == "" {
			return nil, fmt.Errorf("no refresh token stored")
		}

		// The shared flight must not die with whichever caller arrived
		// first; the API client's own timeout bounds the call.
		callCtx := context.WithoutCancel(ctx)
		grant, err := s.api.RefreshToken(callCtx, refreshToken, s.deviceID, s.platform)
		if err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.applyGrant(callCtx, grant)
		slog.Debug("access token refreshed", "expires_at", s.cred.ExpiresAt)
		return nil, nil
	})
	return err
}

// SignOut discards all credential material, in memory and in the secure store.
func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = model.Credential{}
	s.loaded = true

	for _, key := range []string{accessTokenKey, refreshTokenKey, expiresAtKey} {
		if err := s.store.Remove(ctx, key); err != nil {
			slog.Error("sign out: remove credential failed", "error", err)
		}
	}
	slog.Info("signed out")
}

// applyGrant installs a token grant into memory and the secure store.
// A grant without a refresh token keeps the existing one. Caller holds s.mu.
func (s *Session) applyGrant(ctx context.Context, grant driven.TokenGrant) {
	s.cred.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		s.cred.RefreshToken = grant.RefreshToken
	}
	s.cred.ExpiresAt = s.now().Add(time.Duration(grant.ExpiresIn) * time.Second).UTC()
	s.loaded = true

	if err := s.store.Set(ctx, accessTokenKey, s.cred.AccessToken); err != nil {
		slog.Error("persist access token failed", "error", err)
	}
	if s.cred.RefreshToken != "" {
		if err := s.store.Set(ctx, refreshTokenKey, s.cred.RefreshToken); err != nil {
			slog.Error("persist refresh token failed", "error", err)
		}
	}
	if err := s.store.Set(ctx, expiresAtKey, s.cred.ExpiresAt.Format(time.RFC3339)); err != nil {
		slog.Error("persist token expiry failed", "error", err)
	}
}

// ensureLoaded hydrates the in-memory credential from the secure store once
// per process. Storage failures degrade to an absent credential. Caller
// holds s.mu.
func (s *Session) ensureLoaded(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	access, found, err := s.store.Get(ctx, accessTokenKey)
	if err != nil {
		slog.Error("load access token failed", "error", err)
		return
	}
	if !found {
		return
	}
	s.cred.AccessToken = access

	if refresh, found, err := s.store.Get(ctx, refreshTokenKey); err == nil && found {
		s.cred.RefreshToken = refresh
	}
	if raw, found, err := s.store.Get(ctx, expiresAtKey); err == nil && found {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			s.cred.ExpiresAt = t
		}
	}
}
