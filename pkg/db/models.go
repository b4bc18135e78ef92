package db

import (
	"time"

	"github.com/google/uuid"
)

// ServiceURI is a row in service_uris. SubjectID is empty for shared entries.
type ServiceURI struct {
	ID         uuid.UUID `json:"id"`
	SubjectID  string    `json:"subject_id"`
	ServiceKey string    `json:"service_key"`
	URI        string    `json:"uri"`
	Priority   int       `json:"priority"`
	Version    string    `json:"version"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

// Session is a row in sessions. ThreatLevel is the highest level the session may call.
type Session struct {
	SessionID   string     `json:"session_id"`
	UserID      string     `json:"user_id"`
	ThreatLevel int        `json:"threat_level"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Created     time.Time  `json:"created"`
}

// Expired reports whether the session has an expiry at or before now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// AvatarRow is one name/value pair of an avatar appearance.
type AvatarRow struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Name        string    `json:"name"`
	Value       string    `json:"value"`
}

// UserInfoRow is a row in user_infos.
type UserInfoRow struct {
	UserID          string            `json:"user_id"`
	CurrentRegionID uuid.UUID         `json:"current_region_id"`
	CurrentPosition []float64         `json:"current_position"`
	HomeRegionID    uuid.UUID         `json:"home_region_id"`
	IsOnline        bool              `json:"is_online"`
	LastLogin       *time.Time        `json:"last_login,omitempty"`
	LastLogout      *time.Time        `json:"last_logout,omitempty"`
	Info            map[string]string `json:"info"`
}
