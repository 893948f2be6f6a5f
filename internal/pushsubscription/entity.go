package pushsubscription

import "time"

// Subscription is a browser push endpoint. UserID scopes workflow
// notifications to their owner; an empty UserID receives every
// notification.
type Subscription struct {
	ID        string    `yaml:"id"`
	UserID    string    `yaml:"user_id,omitempty"`
	Endpoint  string    `yaml:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key"`
	AuthKey   string    `yaml:"auth_key"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Receives reports whether s should get notifications addressed to userID.
func (s *Subscription) Receives(userID string) bool {
	return s.UserID == "" || userID == "" || s.UserID == userID
}
