package models

import "time"

// Profile defaults applied at account creation and to guest tickets.
const (
	DefaultIcon   = "👤"
	DefaultBanner = "#3b82f6"
)

// User is an account row, keyed by a unique handle. Elo and the ranked
// win/loss tally only move after ranked sessions; icon and banner are
// cosmetic profile fields echoed into matchmaking tickets.
type User struct {
	Handle       string    `json:"handle"`
	Email        string    `json:"email,omitempty"`
	Password     string    `json:"password,omitempty"`
	Elo          int       `json:"elo"`
	RankedWins   int       `json:"rankedWins"`
	RankedLosses int       `json:"rankedLosses"`
	Icon         string    `json:"icon"`
	Banner       string    `json:"banner"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Sanitized returns a copy safe to send to clients.
func (u User) Sanitized() User {
	u.Password = ""
	return u
}
