// Package avatar is the appearance connector: it stores name/value appearance pairs per
// principal and serves them locally or through a remote endpoint.
package avatar

import (
	"fmt"
	"strconv"
)

// DefaultAvatarType is the type reported for every stored appearance.
const DefaultAvatarType = 1

// MaxNameLength bounds appearance entry names; longer names are truncated on store.
const MaxNameLength = 32

// AvatarData is one principal's appearance. On the wire it is a flat object: AvatarType
// plus one key per Data entry.
type AvatarData struct {
	AvatarType int
	Data       map[string]string
}

// ToWire implements wire.Transferable.
func (a AvatarData) ToWire() (map[string]interface{}, error) {
	m := make(map[string]interface{}, len(a.Data)+1)
	for k, v := range a.Data {
		m[k] = v
	}
	m["AvatarType"] = strconv.Itoa(a.AvatarType)
	return m, nil
}

// FromWire implements wire.Transferable.
func (a *AvatarData) FromWire(m map[string]interface{}) error {
	a.Data = make(map[string]string, len(m))
	for k, v := range m {
		if k == "AvatarType" {
			n, err := parseType(v)
			if err != nil {
				return err
			}
			a.AvatarType = n
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		a.Data[k] = s
	}
	return nil
}

func parseType(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("avatar type %q: %w", t, err)
		}
		return n, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("avatar type has unexpected type %T", v)
}

func truncateName(name string) string {
	if len(name) > MaxNameLength {
		return name[:MaxNameLength]
	}
	return name
}
