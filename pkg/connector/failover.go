package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/morezero/remote-connectors/pkg/metrics"
	"github.com/morezero/remote-connectors/pkg/wire"
)

const failoverLogPrefix = "connector:failover"

const slowAttempt = 5 * time.Second

// Target selects where a call goes. A non-empty URL bypasses resolution; otherwise the
// resolver is asked for SubjectID's candidates with FallbackKey as the service key.
type Target struct {
	URL         string
	SubjectID   string
	FallbackKey string
}

func (t Target) String() string {
	if t.URL != "" {
		return t.URL
	}
	if t.SubjectID != "" {
		return t.SubjectID + "/" + t.FallbackKey
	}
	return t.FallbackKey
}

// FailoverDispatcher posts an envelope to candidate URIs in order until one answers.
type FailoverDispatcher struct {
	client   *http.Client
	locks    *EndpointLocks
	resolver URIResolver
	tryCount int
	metrics  *metrics.Metrics
}

// Candidates resolves the ordered candidate list of target.
func (f *FailoverDispatcher) Candidates(ctx context.Context, target Target) ([]string, error) {
	if target.URL != "" {
		return []string{target.URL}, nil
	}
	if f.resolver == nil {
		return nil, wire.NewError(wire.CodeNoAnswer, fmt.Sprintf("no resolver configured for %s", target))
	}
	uris, err := f.resolver.ResolveCandidates(ctx, target.SubjectID, target.FallbackKey)
	if err != nil {
		return nil, wire.WrapError(wire.CodeNoAnswer, fmt.Sprintf("resolving candidates for %s", target), err)
	}
	return uris, nil
}

// Dispatch sends env to at most TryCount candidates of target, one after the other, and
// returns the first response with Success set. When every attempt fails the NO_ANSWER error
// carries all attempt errors.
func (f *FailoverDispatcher) Dispatch(ctx context.Context, env *wire.Envelope, target Target) (*wire.Response, error) {
	body, err := env.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%s - encoding envelope: %w", failoverLogPrefix, err)
	}
	candidates, err := f.Candidates(ctx, target)
	if err != nil {
		return nil, err
	}

	n := len(candidates)
	if f.tryCount > 0 && n > f.tryCount {
		n = f.tryCount
	}

	var errs error
	attempted := 0
	for _, uri := range candidates[:n] {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		attempted++
		resp, err := f.Post(ctx, uri, body)
		if err == nil {
			return resp, nil
		}
		slog.Warn(fmt.Sprintf("%s - %s to %s failed: %v", failoverLogPrefix, env.Method, uri, err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", uri, err))
	}

	out := wire.WrapError(wire.CodeNoAnswer,
		fmt.Sprintf("%s: %d of %d candidates for %s tried, none answered", env.Method, attempted, len(candidates), target), errs)
	out.Details = map[string]interface{}{"attempted": attempted, "candidates": len(candidates)}
	return nil, out
}

// Post performs one attempt: the endpoint lock of uri is held from request write until the
// response body is fully read.
func (f *FailoverDispatcher) Post(ctx context.Context, uri string, body []byte) (*wire.Response, error) {
	key, err := EndpointKey(uri)
	if err != nil {
		return nil, wire.WrapError(wire.CodeEndpointUnreachable, "bad endpoint url", err)
	}

	start := time.Now()
	resp, err := f.exchange(ctx, key, uri, body)
	elapsed := time.Since(start)

	f.metrics.ObserveAttempt(key, outcome(err), elapsed)
	if elapsed > slowAttempt {
		slog.Info(fmt.Sprintf("%s - request to %s took %dms", failoverLogPrefix, uri, elapsed.Milliseconds()))
	}
	return resp, err
}

func (f *FailoverDispatcher) exchange(ctx context.Context, key, uri string, body []byte) (*wire.Response, error) {
	lock := f.locks.For(key)
	lock.Lock()
	defer lock.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return nil, wire.WrapError(wire.CodeEndpointUnreachable, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classify(err)
	}

	resp, err := wire.ParseResponse(data)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, wire.NewError(wire.CodeRemoteFailure, fmt.Sprintf("%s answered with Success=false", uri))
	}
	if !resp.HasValue() {
		return nil, wire.NewError(wire.CodeDeserializationFailure, fmt.Sprintf("%s answered without a Value", uri))
	}
	return resp, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return wire.WrapError(wire.CodeTransportTimeout, "deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wire.WrapError(wire.CodeTransportTimeout, "timed out", err)
	}
	return wire.WrapError(wire.CodeEndpointUnreachable, "transport failed", err)
}

func outcome(err error) string {
	if err == nil {
		return "OK"
	}
	if code := wire.CodeOf(err); code != "" {
		return code
	}
	return "ERROR"
}
