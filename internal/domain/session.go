package domain

import "time"

// AuthState is the anti-forgery token tracked between the install redirect
// and the OAuth callback. Consumed exactly once.
type AuthState struct {
	State     string    `json:"state" bson:"state"`
	Shop      string    `json:"shop" bson:"shop"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the state token is past its time-to-live.
func (s *AuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
