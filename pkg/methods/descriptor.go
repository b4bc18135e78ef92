// Package methods describes remotely callable methods and indexes them by wire name.
package methods

import (
	"context"
	"fmt"
	"reflect"

	"github.com/morezero/remote-connectors/pkg/wire"
)

const logPrefix = "methods:descriptor"

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Param is one declared parameter of a method. Optional parameters may only appear at the
// end of the list; a caller may leave them out of the envelope.
type Param struct {
	Name     string
	Type     reflect.Type
	Optional bool
}

// Descriptor is the immutable metadata of one remotely callable method, optionally bound
// to its implementation.
type Descriptor struct {
	name        string
	rename      string
	params      []Param
	returns     reflect.Type
	threat      ThreatLevel
	usePassword bool

	impl         reflect.Value
	withContext  bool
	returnsValue bool
	returnsError bool
}

// Name is the Go-side method name.
func (d *Descriptor) Name() string { return d.name }

// WireName is the name used in envelopes: the rename if one was given, else Name.
func (d *Descriptor) WireName() string {
	if d.rename != "" {
		return d.rename
	}
	return d.name
}

// Params returns a copy of the declared parameters.
func (d *Descriptor) Params() []Param {
	out := make([]Param, len(d.params))
	copy(out, d.params)
	return out
}

// Arity is the number of declared parameters.
func (d *Descriptor) Arity() int { return len(d.params) }

// Required is the number of leading non-optional parameters.
func (d *Descriptor) Required() int {
	n := 0
	for _, p := range d.params {
		if p.Optional {
			break
		}
		n++
	}
	return n
}

// Accepts reports whether an envelope with argCount arguments can address this method.
func (d *Descriptor) Accepts(argCount int) bool {
	return argCount >= d.Required() && argCount <= d.Arity()
}

// Returns is the declared result type; nil means the method returns nothing.
func (d *Descriptor) Returns() reflect.Type { return d.returns }

// ThreatLevel is the session trust the method requires.
func (d *Descriptor) ThreatLevel() ThreatLevel { return d.threat }

// UsePassword reports whether callers must present the connector's shared secret.
func (d *Descriptor) UsePassword() bool { return d.usePassword }

// HasImpl reports whether an implementation is bound.
func (d *Descriptor) HasImpl() bool { return d.impl.IsValid() }

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s/%d", d.WireName(), len(d.params))
}

// Call invokes the bound implementation with already decoded arguments. Invalid
// (zero) reflect.Values stand for omitted arguments and are replaced by zero values.
// A panic in the implementation is returned as an error.
func (d *Descriptor) Call(ctx context.Context, args []reflect.Value) (result interface{}, err error) {
	if !d.impl.IsValid() {
		return nil, wire.NewError(wire.CodeInvalidDescriptor, fmt.Sprintf("%s has no implementation", d))
	}
	if len(args) != len(d.params) {
		return nil, wire.WrapError(wire.CodeArgumentCountMismatch,
			fmt.Sprintf("%s expects %d arguments, got %d", d, len(d.params), len(args)), nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%s - %s panicked: %v", logPrefix, d, r)
		}
	}()

	fnType := d.impl.Type()
	in := make([]reflect.Value, 0, len(args)+1)
	offset := 0
	if d.withContext {
		in = append(in, reflect.ValueOf(ctx))
		offset = 1
	}
	for i, a := range args {
		want := fnType.In(i + offset)
		if !a.IsValid() {
			a = reflect.Zero(want)
		} else if !a.Type().AssignableTo(want) {
			if !a.Type().ConvertibleTo(want) {
				return nil, fmt.Errorf("%s - %s argument %q: cannot use %s as %s", logPrefix, d, d.params[i].Name, a.Type(), want)
			}
			a = a.Convert(want)
		}
		in = append(in, a)
	}

	out := d.impl.Call(in)

	if d.returnsError {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
	}
	if !d.returnsValue {
		return nil, nil
	}
	v := out[0]
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil, nil
		}
	}
	return v.Interface(), nil
}

// CallValues is Call with plain Go values; nil entries are treated as omitted.
func (d *Descriptor) CallValues(ctx context.Context, args ...interface{}) (interface{}, error) {
	vals := make([]reflect.Value, len(args))
	for i, a := range args {
		if a != nil {
			vals[i] = reflect.ValueOf(a)
		}
	}
	return d.Call(ctx, vals)
}
