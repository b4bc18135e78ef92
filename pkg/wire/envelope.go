// Package wire defines the HTTP/JSON envelope exchanged between connectors and remote
// dispatchers, the value codec and the error taxonomy shared by both sides.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Reserved envelope keys.
const (
	KeyMethod   = "Method"
	KeyPassword = "Password"
)

// Envelope is the wire form of one call: the method name, an optional password and the
// encoded arguments in declaration order. An argument that was not supplied is absent from
// the envelope, which is different from an argument explicitly encoded as null.
type Envelope struct {
	Method string

	password    string
	hasPassword bool
	hasMethod   bool

	keys []string
	args map[string]json.RawMessage
}

// NewEnvelope creates an empty envelope for method.
func NewEnvelope(method string) *Envelope {
	return &Envelope{
		Method:    method,
		hasMethod: true,
		args:      make(map[string]json.RawMessage),
	}
}

// SetPassword attaches the shared secret to the envelope.
func (e *Envelope) SetPassword(password string) {
	e.password = password
	e.hasPassword = true
}

// Password returns the password and whether one was present.
func (e *Envelope) Password() (string, bool) {
	return e.password, e.hasPassword
}

// HasMethod reports whether the envelope carried a Method key.
func (e *Envelope) HasMethod() bool {
	return e.hasMethod
}

// Set stores an encoded argument. Re-setting a name keeps its original position.
func (e *Envelope) Set(name string, value json.RawMessage) {
	if e.args == nil {
		e.args = make(map[string]json.RawMessage)
	}
	if _, ok := e.args[name]; !ok {
		e.keys = append(e.keys, name)
	}
	e.args[name] = value
}

// Arg returns the encoded argument stored under name.
func (e *Envelope) Arg(name string) (json.RawMessage, bool) {
	v, ok := e.args[name]
	return v, ok
}

// Keys returns the argument names in order.
func (e *Envelope) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// ArgCount is the number of keys other than Method and Password.
func (e *Envelope) ArgCount() int {
	return len(e.keys)
}

// MarshalJSON writes Method, then Password if present, then the arguments in order.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField := func(first bool, key string, value []byte) {
		if !first {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	m, err := json.Marshal(e.Method)
	if err != nil {
		return nil, err
	}
	writeField(true, KeyMethod, m)

	if e.hasPassword {
		p, err := json.Marshal(e.password)
		if err != nil {
			return nil, err
		}
		writeField(false, KeyPassword, p)
	}

	for _, k := range e.keys {
		v := e.args[k]
		if len(v) == 0 {
			v = json.RawMessage("null")
		}
		writeField(false, k, v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an envelope object, preserving argument order.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("envelope must be a JSON object")
	}

	*e = Envelope{args: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("envelope key is not a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		switch key {
		case KeyMethod:
			if err := json.Unmarshal(raw, &e.Method); err != nil {
				return fmt.Errorf("envelope Method must be a string: %w", err)
			}
			e.hasMethod = true
		case KeyPassword:
			if err := json.Unmarshal(raw, &e.password); err != nil {
				return fmt.Errorf("envelope Password must be a string: %w", err)
			}
			e.hasPassword = true
		default:
			e.Set(key, raw)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// ParseEnvelope decodes a request body into an Envelope.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(bytes.TrimSpace(body), &env); err != nil {
		return nil, err
	}
	return &env, nil
}
