// Package agentinfo is the user-info connector: presence, position and login times of
// users, plus a bulk location query.
package agentinfo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/remote-connectors/pkg/db"
)

// NotOnline is the location reported for users that are offline or unknown.
const NotOnline = "NotOnline"

// UserInfo is the presence record of one user.
type UserInfo struct {
	UserID          string
	CurrentRegionID uuid.UUID
	CurrentPosition [3]float64
	HomeRegionID    uuid.UUID
	IsOnline        bool
	LastLogin       time.Time
	LastLogout      time.Time
	Info            map[string]string
}

// ToWire implements wire.Transferable.
func (u UserInfo) ToWire() (map[string]interface{}, error) {
	info := u.Info
	if info == nil {
		info = map[string]string{}
	}
	return map[string]interface{}{
		"UserID":          u.UserID,
		"CurrentRegionID": u.CurrentRegionID.String(),
		"CurrentPosition": []float64{u.CurrentPosition[0], u.CurrentPosition[1], u.CurrentPosition[2]},
		"HomeRegionID":    u.HomeRegionID.String(),
		"IsOnline":        u.IsOnline,
		"LastLogin":       formatTime(u.LastLogin),
		"LastLogout":      formatTime(u.LastLogout),
		"Info":            info,
	}, nil
}

// FromWire implements wire.Transferable.
func (u *UserInfo) FromWire(m map[string]interface{}) error {
	*u = UserInfo{}
	var err error
	u.UserID, _ = m["UserID"].(string)
	if u.CurrentRegionID, err = parseID(m["CurrentRegionID"]); err != nil {
		return fmt.Errorf("CurrentRegionID: %w", err)
	}
	if u.HomeRegionID, err = parseID(m["HomeRegionID"]); err != nil {
		return fmt.Errorf("HomeRegionID: %w", err)
	}
	if pos, ok := m["CurrentPosition"].([]interface{}); ok {
		for i := 0; i < len(pos) && i < 3; i++ {
			f, _ := pos[i].(float64)
			u.CurrentPosition[i] = f
		}
	}
	u.IsOnline, _ = m["IsOnline"].(bool)
	if u.LastLogin, err = parseTime(m["LastLogin"]); err != nil {
		return fmt.Errorf("LastLogin: %w", err)
	}
	if u.LastLogout, err = parseTime(m["LastLogout"]); err != nil {
		return fmt.Errorf("LastLogout: %w", err)
	}
	if info, ok := m["Info"].(map[string]interface{}); ok {
		u.Info = make(map[string]string, len(info))
		for k, v := range info {
			s, ok := v.(string)
			if !ok {
				s = fmt.Sprint(v)
			}
			u.Info[k] = s
		}
	}
	return nil
}

// MarshalJSON writes the wire form so slices of UserInfo encode like single values.
func (u UserInfo) MarshalJSON() ([]byte, error) {
	m, err := u.ToWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the wire form.
func (u *UserInfo) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	return u.FromWire(m)
}

// Location is the region of an online user, or NotOnline.
func (u *UserInfo) Location() string {
	if u == nil || !u.IsOnline {
		return NotOnline
	}
	return u.CurrentRegionID.String()
}

func fromRow(r db.UserInfoRow) *UserInfo {
	u := &UserInfo{
		UserID:          r.UserID,
		CurrentRegionID: r.CurrentRegionID,
		HomeRegionID:    r.HomeRegionID,
		IsOnline:        r.IsOnline,
		Info:            r.Info,
	}
	copy(u.CurrentPosition[:], r.CurrentPosition)
	if r.LastLogin != nil {
		u.LastLogin = *r.LastLogin
	}
	if r.LastLogout != nil {
		u.LastLogout = *r.LastLogout
	}
	return u
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(v interface{}) (time.Time, error) {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseID(v interface{}) (uuid.UUID, error) {
	s, _ := v.(string)
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
