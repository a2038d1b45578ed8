package healthapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openvitals/vitalsync/internal/domain/model"
)

// tokenResponse is the normalized token grant. The service has shipped both
// snake_case and camelCase field names over its lifetime; both are accepted
// here, once, at the API boundary, so nothing downstream ever looks at raw
// field names again.
type tokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

func (t *tokenResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		AccessToken       string `json:"accessToken"`
		AccessTokenSnake  string `json:"access_token"`
		RefreshToken      string `json:"refreshToken"`
		RefreshTokenSnake string `json:"refresh_token"`
		ExpiresIn         int    `json:"expiresIn"`
		ExpiresInSnake    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.AccessToken = firstNonEmpty(raw.AccessToken, raw.AccessTokenSnake)
	t.RefreshToken = firstNonEmpty(raw.RefreshToken, raw.RefreshTokenSnake)
	t.ExpiresIn = raw.ExpiresIn
	if t.ExpiresIn == 0 {
		t.ExpiresIn = raw.ExpiresInSnake
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// labResultDTO is the wire shape of a lab result.
type labResultDTO struct {
	PublicID string  `json:"publicId"`
	TakenAt  string  `json:"takenAt"`
	Value    float64 `json:"value"`
	Note     string  `json:"note"`
	Flagged  bool    `json:"flagged"`
	Deleted  bool    `json:"deleted"`
}

func (d labResultDTO) toModel() (model.LabResult, error) {
	if d.PublicID == "" {
		return model.LabResult{}, fmt.Errorf("lab result missing publicId")
	}
	takenAt, err := time.Parse(time.RFC3339, d.TakenAt)
	if err != nil {
		return model.LabResult{}, fmt.Errorf("parse takenAt for %s: %w", d.PublicID, err)
	}
	return model.LabResult{
		PublicID: d.PublicID,
		TakenAt:  takenAt.UTC(),
		Value:    d.Value,
		Note:     d.Note,
		Flagged:  d.Flagged,
		Deleted:  d.Deleted,
	}, nil
}
