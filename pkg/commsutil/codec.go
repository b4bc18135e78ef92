package commsutil

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a message body.
func EncodePayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("commsutil:codec - encode %T: %w", v, err)
	}
	return data, nil
}

// DecodePayload deserializes a message body into a new T.
func DecodePayload[T any](data []byte) (*T, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("commsutil:codec - decode %T: %w", out, err)
	}
	return out, nil
}
