package methods

import (
	"fmt"
	"strings"
)

// ThreatLevel is the security tier of a method. A caller's session must be trusted at
// least at the method's level to invoke it.
type ThreatLevel int

const (
	ThreatNone ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatFull
)

var threatNames = []string{"None", "Low", "Medium", "High", "Full"}

func (l ThreatLevel) String() string {
	if l < ThreatNone || l > ThreatFull {
		return fmt.Sprintf("ThreatLevel(%d)", int(l))
	}
	return threatNames[l]
}

// ParseThreatLevel parses a level name, case-insensitively.
func ParseThreatLevel(s string) (ThreatLevel, error) {
	for i, name := range threatNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return ThreatLevel(i), nil
		}
	}
	return ThreatNone, fmt.Errorf("unknown threat level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l ThreatLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ThreatLevel) UnmarshalText(text []byte) error {
	v, err := ParseThreatLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
