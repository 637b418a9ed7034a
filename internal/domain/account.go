package domain

import "time"

// ConnectedAccount is a platform credential owned by a user.
type ConnectedAccount struct {
	ID               string
	UserID           string
	Provider         Platform
	AccessToken      string
	Active           bool
	DefaultChannelID string
	CreatedAt        time.Time
}
