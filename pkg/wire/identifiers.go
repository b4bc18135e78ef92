package wire

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// RegisterIdentifiers installs decoders for uuid.UUID and []uuid.UUID that accept an empty
// string or null as uuid.Nil, which plain JSON decoding rejects.
func RegisterIdentifiers(c *Codec) {
	RegisterDecoder(c, decodeUUID)
	RegisterDecoder(c, func(raw json.RawMessage) ([]uuid.UUID, error) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		if items == nil {
			return nil, nil
		}
		out := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			id, err := decodeUUID(item)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		return out, nil
	})
}

func decodeUUID(raw json.RawMessage) (uuid.UUID, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return uuid.Nil, err
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(strings.TrimSpace(*s))
}
