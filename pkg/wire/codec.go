package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

const codecLogPrefix = "wire:codec"

// Transferable is implemented by domain objects that describe their own wire form.
// ToWire must use a value receiver so both values and pointers encode the same way;
// FromWire is called on a freshly allocated pointer. Numbers arrive as float64.
type Transferable interface {
	ToWire() (map[string]interface{}, error)
	FromWire(m map[string]interface{}) error
}

// DecodeFunc decodes raw JSON into a value of one registered type.
type DecodeFunc func(raw json.RawMessage) (interface{}, error)

type wireEncoder interface {
	ToWire() (map[string]interface{}, error)
}

var transferableType = reflect.TypeOf((*Transferable)(nil)).Elem()

// Codec encodes values to JSON and decodes JSON back into an expected Go type. Decoding
// consults, in order: the explicit per-type decode table, the Transferable interface, and
// finally generic field-by-field JSON decoding.
type Codec struct {
	mu       sync.RWMutex
	decoders map[reflect.Type]DecodeFunc
}

// NewCodec creates a Codec with an empty decode table.
func NewCodec() *Codec {
	return &Codec{decoders: make(map[reflect.Type]DecodeFunc)}
}

// RegisterType installs an explicit decode function for t.
func (c *Codec) RegisterType(t reflect.Type, fn DecodeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoders[t] = fn
}

// RegisterDecoder is the typed form of RegisterType.
func RegisterDecoder[T any](c *Codec, fn func(raw json.RawMessage) (T, error)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	c.RegisterType(t, func(raw json.RawMessage) (interface{}, error) {
		return fn(raw)
	})
}

func (c *Codec) decoder(t reflect.Type) (DecodeFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.decoders[t]
	return fn, ok
}

// Encode converts v into its wire form.
func (c *Codec) Encode(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return json.RawMessage("null"), nil
	}
	if t, ok := v.(wireEncoder); ok {
		m, err := t.ToWire()
		if err != nil {
			return nil, fmt.Errorf("%s - %T.ToWire: %w", codecLogPrefix, v, err)
		}
		return json.Marshal(m)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - encode %T: %w", codecLogPrefix, v, err)
	}
	return data, nil
}

// Decode converts raw into a value of type t. An empty raw yields the zero value of t.
func (c *Codec) Decode(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return reflect.Zero(t), nil
	}

	if fn, ok := c.decoder(t); ok {
		v, err := fn(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s - decode %s: %w", codecLogPrefix, t, err)
		}
		if v == nil {
			return reflect.Zero(t), nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(t) {
			if !rv.Type().ConvertibleTo(t) {
				return reflect.Value{}, fmt.Errorf("%s - decoder for %s returned %s", codecLogPrefix, t, rv.Type())
			}
			rv = rv.Convert(t)
		}
		return rv, nil
	}

	switch {
	case t.Kind() == reflect.Ptr && t.Implements(transferableType):
		if bytes.Equal(raw, []byte("null")) {
			return reflect.Zero(t), nil
		}
		ptr := reflect.New(t.Elem())
		if err := fromWire(raw, ptr); err != nil {
			return reflect.Value{}, err
		}
		return ptr, nil
	case t.Kind() != reflect.Ptr && t.Kind() != reflect.Interface && reflect.PointerTo(t).Implements(transferableType):
		ptr := reflect.New(t)
		if bytes.Equal(raw, []byte("null")) {
			return ptr.Elem(), nil
		}
		if err := fromWire(raw, ptr); err != nil {
			return reflect.Value{}, err
		}
		return ptr.Elem(), nil
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("%s - decode %s: %w", codecLogPrefix, t, err)
	}
	return ptr.Elem(), nil
}

// DecodeInto decodes raw into the value pointed to by target.
func (c *Codec) DecodeInto(raw json.RawMessage, target interface{}) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("%s - DecodeInto requires a non-nil pointer, got %T", codecLogPrefix, target)
	}
	v, err := c.Decode(raw, rv.Elem().Type())
	if err != nil {
		return err
	}
	rv.Elem().Set(v)
	return nil
}

func fromWire(raw json.RawMessage, ptr reflect.Value) error {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("%s - %s expects an object: %w", codecLogPrefix, ptr.Type().Elem(), err)
	}
	if err := ptr.Interface().(Transferable).FromWire(m); err != nil {
		return fmt.Errorf("%s - %s.FromWire: %w", codecLogPrefix, ptr.Type().Elem(), err)
	}
	return nil
}
