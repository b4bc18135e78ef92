// Package dispatcher serves remote calls over HTTP: it decodes the envelope, resolves the
// method, applies the security gate and invokes the implementation.
package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/morezero/remote-connectors/pkg/connector"
	"github.com/morezero/remote-connectors/pkg/events"
	"github.com/morezero/remote-connectors/pkg/session"
	"github.com/morezero/remote-connectors/pkg/wire"
)

const logPrefix = "dispatcher:handler"

// Outcomes besides the wire error codes.
const (
	OutcomeImplementationError = "IMPLEMENTATION_ERROR"
	OutcomeInternalError       = "INTERNAL_ERROR"
)

// UnknownMethod labels requests that did not resolve to a registered method.
const UnknownMethod = "unknown"

const defaultMaxBodyBytes = 8 << 20

// Options configure a Handler. Nil or zero values use defaults.
type Options struct {
	Publisher    events.EventPublisher
	MaxBodyBytes int64
}

// Handler is the server side of the connector protocol. Every failure is answered with an
// empty body; only a successful call gets {"Success":true,"Value":...}.
type Handler struct {
	rt        *connector.Runtime
	gate      *SecurityGate
	publisher events.EventPublisher
	maxBody   int64
}

// NewHandler creates a handler serving the methods of rt's connectors.
func NewHandler(rt *connector.Runtime, policy session.Policy, opts *Options) *Handler {
	h := &Handler{
		rt:        rt,
		gate:      NewSecurityGate(policy),
		publisher: &events.NoOpPublisher{},
		maxBody:   defaultMaxBodyBytes,
	}
	if opts != nil {
		if opts.Publisher != nil {
			h.publisher = opts.Publisher
		}
		if opts.MaxBodyBytes > 0 {
			h.maxBody = opts.MaxBodyBytes
		}
	}
	return h
}

// Mount registers the handler at POST path and POST path/{session}.
func (h *Handler) Mount(mux *http.ServeMux, path string) {
	path = "/" + strings.Trim(path, "/")
	mux.Handle("POST "+path, h)
	mux.Handle("POST "+path+"/{session}", h)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - reading request body: %v", logPrefix, err))
		w.WriteHeader(http.StatusOK)
		return
	}

	out := h.Dispatch(r.Context(), r.PathValue("session"), body)
	if out == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// call tracks one dispatch for logging, metrics and the call event.
// call carries per-request bookkeeping. method is only set from a resolved descriptor, so
// metric labels and event subjects stay within the registered method set; requested keeps the
// raw envelope name for logs.
type call struct {
	connector string
	method    string
	requested string
	session   string
	outcome   string
	start     time.Time
}

// Dispatch handles one request body and returns the response body, or nil for the empty
// failure response.
func (h *Handler) Dispatch(ctx context.Context, sessionID string, body []byte) (out []byte) {
	c := &call{session: sessionID, outcome: events.OK, start: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - panic dispatching %s: %v", logPrefix, describe(c), r))
			c.outcome = OutcomeInternalError
			out = nil
		}
		h.finish(ctx, c)
	}()

	out, err := h.dispatch(ctx, c, body)
	if err != nil {
		c.outcome = outcomeOf(err)
		slog.Warn(fmt.Sprintf("%s - %s: %v", logPrefix, describe(c), err))
		return nil
	}
	return out
}

func (h *Handler) dispatch(ctx context.Context, c *call, body []byte) ([]byte, error) {
	env, err := wire.ParseEnvelope(bytes.TrimSpace(body))
	if err != nil {
		return nil, wire.WrapError(wire.CodeDeserializationFailure, "request envelope", err)
	}
	if !env.HasMethod() {
		return nil, wire.NewError(wire.CodeDeserializationFailure, "envelope has no Method")
	}
	c.requested = env.Method

	reg, err := h.rt.Methods()
	if err != nil {
		return nil, err
	}
	entry, err := reg.Lookup(env.Method, env.ArgCount())
	if err != nil {
		return nil, err
	}
	c.connector = entry.Provider.Name()
	c.method = entry.Descriptor.WireName()

	if err := h.gate.Check(ctx, c.session, entry, env); err != nil {
		return nil, err
	}

	d := entry.Descriptor
	codec := h.rt.Codec()
	params := d.Params()
	args := make([]reflect.Value, len(params))
	for i, p := range params {
		raw, ok := env.Arg(p.Name)
		if !ok {
			continue
		}
		v, err := codec.Decode(raw, p.Type)
		if err != nil {
			return nil, wire.WrapError(wire.CodeDeserializationFailure, fmt.Sprintf("argument %q", p.Name), err)
		}
		args[i] = v
	}

	result, err := d.Call(ctx, args)
	if err != nil {
		var we *wire.Error
		if !errors.As(err, &we) {
			err = &implError{err}
		}
		return nil, err
	}

	value := wire.NullValue
	if result != nil {
		if value, err = codec.Encode(result); err != nil {
			return nil, fmt.Errorf("%s - encoding result of %s: %w", logPrefix, d, err)
		}
	}
	return wire.NewSuccess(value).Encode()
}

func (h *Handler) finish(ctx context.Context, c *call) {
	elapsed := time.Since(c.start)
	method := c.method
	if method == "" {
		method = UnknownMethod
	}
	h.rt.Metrics().ObserveInbound(method, c.outcome, elapsed)

	event := &events.CallEvent{
		Connector:  c.connector,
		Method:     method,
		Session:    c.session,
		Outcome:    c.outcome,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  c.start.UTC().Format(time.RFC3339Nano),
	}
	if err := h.publisher.PublishCalled(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - publishing call event: %v", logPrefix, err))
	}
}

type implError struct{ err error }

func (e *implError) Error() string { return e.err.Error() }
func (e *implError) Unwrap() error { return e.err }

func outcomeOf(err error) string {
	var ie *implError
	if errors.As(err, &ie) {
		return OutcomeImplementationError
	}
	if code := wire.CodeOf(err); code != "" {
		return code
	}
	return OutcomeInternalError
}

func describe(c *call) string {
	if c.method != "" {
		return c.connector + "." + c.method
	}
	if c.requested != "" {
		return fmt.Sprintf("%q", c.requested)
	}
	return "request"
}
