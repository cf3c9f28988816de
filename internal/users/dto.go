package users

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/festpos/pkg/db/models"
)

// Profile is what GET /api/v1/me returns.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Verified    bool      `json:"verified"`
}

func profileOf(u *models.User) *Profile {
	if u == nil {
		return nil
	}
	return &Profile{ID: u.ID, DisplayName: u.DisplayName, Verified: u.Verified}
}
