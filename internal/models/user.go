package models

import (
	"strings"
	"time"
)

// User is a profile record from the identity provider, mirrored into the
// store on first sign-in and read with fetch-once semantics.
type User struct {
	// ID is the identity-provider user ID.
	ID string `json:"id"`

	// DisplayName is the human-readable name shown in conversation headers.
	DisplayName string `json:"display_name"`

	// PhotoURL is the avatar location, optional.
	PhotoURL string `json:"photo_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks user fields.
func (u *User) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(u.ID) == "" {
		errs.AddMessage("id", "user id is required")
	}
	if strings.TrimSpace(u.DisplayName) == "" {
		errs.AddMessage("display_name", "display name is required")
	}
	return errs.Err()
}
