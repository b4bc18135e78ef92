package methods

import (
	"fmt"
	"reflect"

	"github.com/morezero/remote-connectors/pkg/wire"
)

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Builder assembles a Descriptor. The first error encountered is reported by Build.
//
//	d := methods.New("GetUserInfo").
//		Param("userID", "").
//		Returns(&UserInfo{}).
//		Threat(methods.ThreatLow).
//		Impl(svc.GetUserInfo).
//		MustBuild()
type Builder struct {
	d   Descriptor
	fn  interface{}
	err error
}

// New starts a descriptor for the method called name.
func New(name string) *Builder {
	return &Builder{d: Descriptor{name: name}}
}

// Param declares the next parameter; its type is taken from sample.
func (b *Builder) Param(name string, sample interface{}) *Builder {
	if sample == nil {
		b.fail("parameter %q: nil sample, use ParamType", name)
		return b
	}
	return b.ParamType(name, reflect.TypeOf(sample))
}

// ParamType declares the next parameter with an explicit type.
func (b *Builder) ParamType(name string, t reflect.Type) *Builder {
	return b.addParam(Param{Name: name, Type: t})
}

// Optional declares a trailing parameter that callers may omit.
func (b *Builder) Optional(name string, sample interface{}) *Builder {
	if sample == nil {
		b.fail("parameter %q: nil sample", name)
		return b
	}
	return b.addParam(Param{Name: name, Type: reflect.TypeOf(sample), Optional: true})
}

func (b *Builder) addParam(p Param) *Builder {
	switch {
	case p.Name == "":
		b.fail("parameter %d has no name", len(b.d.params))
	case p.Name == wire.KeyMethod || p.Name == wire.KeyPassword:
		b.fail("parameter name %q is reserved", p.Name)
	case p.Type == nil:
		b.fail("parameter %q has no type", p.Name)
	}
	for _, existing := range b.d.params {
		if existing.Name == p.Name {
			b.fail("duplicate parameter %q", p.Name)
		}
	}
	if n := len(b.d.params); n > 0 && b.d.params[n-1].Optional && !p.Optional {
		b.fail("required parameter %q follows an optional one", p.Name)
	}
	b.d.params = append(b.d.params, p)
	return b
}

// Returns declares the result type from sample. Methods without Returns are void unless
// the implementation returns a value, in which case its type is used.
func (b *Builder) Returns(sample interface{}) *Builder {
	if sample == nil {
		b.fail("nil return sample")
		return b
	}
	b.d.returns = reflect.TypeOf(sample)
	return b
}

// ReturnsType declares the result type explicitly.
func (b *Builder) ReturnsType(t reflect.Type) *Builder {
	b.d.returns = t
	return b
}

// Threat sets the threat level (default None).
func (b *Builder) Threat(level ThreatLevel) *Builder {
	b.d.threat = level
	return b
}

// UsePassword requires callers to present the connector's shared secret.
func (b *Builder) UsePassword() *Builder {
	b.d.usePassword = true
	return b
}

// Rename sets the name used on the wire.
func (b *Builder) Rename(wireName string) *Builder {
	b.d.rename = wireName
	return b
}

// Impl binds the implementation. fn must be a func taking an optional leading
// context.Context followed by the declared parameters, and returning (), (error), (R)
// or (R, error).
func (b *Builder) Impl(fn interface{}) *Builder {
	b.fn = fn
	return b
}

// Build validates and returns the descriptor.
func (b *Builder) Build() (*Descriptor, error) {
	if b.d.name == "" {
		b.fail("method has no name")
	}
	if b.err != nil {
		return nil, b.err
	}
	d := b.d
	d.params = append([]Param(nil), b.d.params...)
	if b.fn != nil {
		if err := bindImpl(&d, b.fn); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// MustBuild is Build that panics on error, for package-level descriptor tables.
func (b *Builder) MustBuild() *Descriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

func (b *Builder) fail(format string, args ...interface{}) {
	if b.err != nil {
		return
	}
	msg := fmt.Sprintf("%s: %s", b.d.name, fmt.Sprintf(format, args...))
	b.err = wire.NewError(wire.CodeInvalidDescriptor, msg)
}

func bindImpl(d *Descriptor, fn interface{}) error {
	invalid := func(format string, args ...interface{}) error {
		return wire.NewError(wire.CodeInvalidDescriptor, fmt.Sprintf("%s: %s", d.name, fmt.Sprintf(format, args...)))
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return invalid("implementation is %s, not a func", t)
	}
	if t.IsVariadic() {
		return invalid("variadic implementations are not supported")
	}

	offset := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		d.withContext = true
		offset = 1
	}
	if t.NumIn()-offset != len(d.params) {
		return invalid("implementation takes %d parameters, descriptor declares %d", t.NumIn()-offset, len(d.params))
	}
	for i, p := range d.params {
		if in := t.In(i + offset); !p.Type.AssignableTo(in) {
			return invalid("parameter %q is %s, implementation wants %s", p.Name, p.Type, in)
		}
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			d.returnsError = true
		} else {
			d.returnsValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			return invalid("second result must be error, got %s", t.Out(1))
		}
		d.returnsValue = true
		d.returnsError = true
	default:
		return invalid("implementation returns %d values", t.NumOut())
	}

	if d.returnsValue {
		out := t.Out(0)
		if d.returns == nil {
			d.returns = out
		} else if !out.AssignableTo(d.returns) {
			return invalid("implementation returns %s, descriptor declares %s", out, d.returns)
		}
	} else if d.returns != nil {
		return invalid("descriptor declares result %s but implementation returns none", d.returns)
	}

	d.impl = v
	return nil
}
