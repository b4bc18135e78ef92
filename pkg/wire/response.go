package wire

import (
	"bytes"
	"encoding/json"
)

// NullValue is the Value sentinel for "no result" (void methods and nil results).
var NullValue = json.RawMessage(`"null"`)

// Response is the reply body of a dispatched call. Only Success discriminates success;
// the HTTP status code is not part of the contract.
type Response struct {
	Success bool            `json:"Success"`
	Value   json.RawMessage `json:"Value,omitempty"`
}

// NewSuccess builds a successful response. A nil value becomes the null sentinel.
func NewSuccess(value json.RawMessage) *Response {
	if len(value) == 0 {
		value = NullValue
	}
	return &Response{Success: true, Value: value}
}

// IsNull reports whether Value is the "null" sentinel.
func (r *Response) IsNull() bool {
	return bytes.Equal(bytes.TrimSpace(r.Value), NullValue)
}

// HasValue reports whether the Value key was present.
func (r *Response) HasValue() bool {
	return len(r.Value) > 0
}

// Encode marshals the response.
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// ParseResponse decodes a reply body. An empty body, an HTML body, unparsable JSON or a
// missing Success flag are all deserialization failures.
func ParseResponse(body []byte) (*Response, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, WrapError(CodeDeserializationFailure, "empty response body", nil)
	}
	if body[0] == '<' {
		return nil, WrapError(CodeDeserializationFailure, "response body is not JSON", nil)
	}

	var raw struct {
		Success *bool           `json:"Success"`
		Value   json.RawMessage `json:"Value"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, WrapError(CodeDeserializationFailure, "response body could not be parsed", err)
	}
	if raw.Success == nil {
		return nil, WrapError(CodeDeserializationFailure, "response has no Success flag", nil)
	}
	return &Response{Success: *raw.Success, Value: raw.Value}, nil
}
