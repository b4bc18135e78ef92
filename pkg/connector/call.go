package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/google/uuid"

	"github.com/morezero/remote-connectors/pkg/methods"
	"github.com/morezero/remote-connectors/pkg/wire"
)

const callLogPrefix = "connector:call"

// DefaultServiceKey is the service key used when a call names no other.
const DefaultServiceKey = "ServerURI"

// Reply is the raw outcome of a successful remote call. Null is set when the remote
// returned no value.
type Reply struct {
	Value json.RawMessage
	Null  bool
}

// Result is a typed call outcome. Present is false for a legitimate null.
type Result[T any] struct {
	Value   T
	Present bool
}

// DoRemote calls d on the default service.
func (c *Connector) DoRemote(ctx context.Context, d *methods.Descriptor, args ...interface{}) (*Reply, error) {
	return c.DoRemoteCall(ctx, false, Target{FallbackKey: DefaultServiceKey}, d, args...)
}

// DoRemoteForced calls d on the default service even when remote calls are switched off.
func (c *Connector) DoRemoteForced(ctx context.Context, d *methods.Descriptor, args ...interface{}) (*Reply, error) {
	return c.DoRemoteCall(ctx, true, Target{FallbackKey: DefaultServiceKey}, d, args...)
}

// DoRemoteForUser calls d on the endpoints registered for userID, falling back to the
// default service.
func (c *Connector) DoRemoteForUser(ctx context.Context, userID uuid.UUID, d *methods.Descriptor, args ...interface{}) (*Reply, error) {
	return c.DoRemoteCall(ctx, false, Target{SubjectID: userID.String(), FallbackKey: DefaultServiceKey}, d, args...)
}

// DoRemoteByURL calls d on the service registered under key.
func (c *Connector) DoRemoteByURL(ctx context.Context, key string, d *methods.Descriptor, args ...interface{}) (*Reply, error) {
	return c.DoRemoteCall(ctx, false, Target{FallbackKey: key}, d, args...)
}

// DoRemoteByHTTP calls d on a literal URL, skipping resolution.
func (c *Connector) DoRemoteByHTTP(ctx context.Context, url string, d *methods.Descriptor, args ...interface{}) (*Reply, error) {
	return c.DoRemoteCall(ctx, false, Target{URL: url}, d, args...)
}

// DoRemoteCall builds the envelope for d and dispatches it to target. Argument errors are
// reported before any network I/O.
func (c *Connector) DoRemoteCall(ctx context.Context, forced bool, target Target, d *methods.Descriptor, args ...interface{}) (*Reply, error) {
	rt := c.Runtime()
	if rt == nil {
		return nil, wire.NewError(wire.CodeRemoteDisabled, fmt.Sprintf("connector %s is not initialized", c.name))
	}
	env, err := c.BuildEnvelope(rt.Codec(), d, args)
	if err != nil {
		return nil, err
	}
	if !forced && !c.RemoteCalls() {
		return nil, wire.NewError(wire.CodeRemoteDisabled, fmt.Sprintf("%s: remote calls are disabled for %s", d, c.name))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := rt.Dispatcher().Dispatch(ctx, env, target)
	if err != nil {
		return nil, err
	}
	return &Reply{Value: resp.Value, Null: resp.IsNull()}, nil
}

// BuildEnvelope encodes args positionally under d's parameter names. Trailing nil arguments
// for optional parameters are left out; any other nil is sent as an explicit null so the
// envelope keeps the argument count the server resolves the method by.
func (c *Connector) BuildEnvelope(codec *wire.Codec, d *methods.Descriptor, args []interface{}) (*wire.Envelope, error) {
	params := d.Params()
	if len(args) != len(params) {
		slog.Error(fmt.Sprintf("%s - %s called with %d arguments, expected %d", callLogPrefix, d, len(args), len(params)))
		return nil, wire.NewError(wire.CodeArgumentCountMismatch,
			fmt.Sprintf("%s expects %d arguments, got %d", d, len(params), len(args)))
	}

	env := wire.NewEnvelope(d.WireName())
	if d.UsePassword() {
		env.SetPassword(c.password)
	}
	last := -1
	for i := range args {
		if !isNil(args[i]) {
			last = i
		}
	}
	for i, p := range params {
		if isNil(args[i]) {
			if p.Optional && i > last {
				continue
			}
			env.Set(p.Name, json.RawMessage("null"))
			continue
		}
		raw, err := codec.Encode(args[i])
		if err != nil {
			return nil, fmt.Errorf("%s - encoding %s argument %q: %w", callLogPrefix, d, p.Name, err)
		}
		env.Set(p.Name, raw)
	}
	return env, nil
}

// Decode converts a reply into T with codec. A value that does not fit T is a
// DESERIALIZATION_FAILURE, never an absent result.
func Decode[T any](codec *wire.Codec, reply *Reply) (Result[T], error) {
	if reply == nil || reply.Null {
		return Result[T]{}, nil
	}
	v, err := codec.Decode(reply.Value, methods.TypeOf[T]())
	if err != nil {
		return Result[T]{}, wire.WrapError(wire.CodeDeserializationFailure, "reply value", err)
	}
	if !v.IsValid() || isNil(v.Interface()) {
		return Result[T]{}, nil
	}
	out, ok := v.Interface().(T)
	if !ok {
		return Result[T]{}, wire.NewError(wire.CodeDeserializationFailure,
			fmt.Sprintf("reply decoded as %s, not %s", v.Type(), methods.TypeOf[T]()))
	}
	return Result[T]{Value: out, Present: true}, nil
}

// Call performs a non-forced remote call of d on the default service and decodes the value.
func Call[T any](ctx context.Context, c *Connector, d *methods.Descriptor, args ...interface{}) (Result[T], error) {
	reply, err := c.DoRemote(ctx, d, args...)
	if err != nil {
		return Result[T]{}, err
	}
	return Decode[T](c.Runtime().Codec(), reply)
}

// Invoke runs d in-process or remotely depending on the connector's mode, with the same
// result shape either way.
func Invoke[T any](ctx context.Context, c *Connector, d *methods.Descriptor, args ...interface{}) (Result[T], error) {
	switch c.Mode() {
	case RemoteOnly:
		return Call[T](ctx, c, d, args...)
	case RemoteAllowed:
		if !d.HasImpl() {
			return Call[T](ctx, c, d, args...)
		}
	}

	if len(args) != d.Arity() {
		return Result[T]{}, wire.NewError(wire.CodeArgumentCountMismatch,
			fmt.Sprintf("%s expects %d arguments, got %d", d, d.Arity(), len(args)))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	v, err := d.CallValues(ctx, args...)
	if err != nil || v == nil {
		return Result[T]{}, err
	}
	out, ok := v.(T)
	if !ok {
		return Result[T]{}, fmt.Errorf("%s - %s returned %T, not %s", callLogPrefix, d, v, methods.TypeOf[T]())
	}
	return Result[T]{Value: out, Present: true}, nil
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
