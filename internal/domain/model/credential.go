package model

import "time"

// Credential holds the session's bearer credentials. AccessToken authorizes
// API calls until ExpiresAt; RefreshToken, when present, is used to obtain a
// replacement access token and may itself be rotated by the server.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the credential carries an access token that has not
// yet expired at the given instant.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt)
}

// ExpiresWithin reports whether the credential expires strictly within d of
// now. An empty credential always reports true.
func (c Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	return now.Add(d).After(c.ExpiresAt)
}
