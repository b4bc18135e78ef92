// Package connector is the client side of remote method calls: the runtime context shared by
// every connector, the per-endpoint lock table, failover dispatch and the call helpers.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/morezero/remote-connectors/pkg/methods"
	"github.com/morezero/remote-connectors/pkg/metrics"
	"github.com/morezero/remote-connectors/pkg/wire"
)

const runtimeLogPrefix = "connector:runtime"

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultTryCount       = 7
	maxRedirects          = 10
)

// Settings are the process-wide call knobs.
type Settings struct {
	RemoteCalls    bool
	RequestTimeout time.Duration
	TryCount       int
}

func (s Settings) withDefaults() Settings {
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.TryCount <= 0 {
		s.TryCount = DefaultTryCount
	}
	return s
}

// URIResolver returns the ordered candidate URIs for a subject. fallbackKey names the
// service used when the subject has no entries of its own.
type URIResolver interface {
	ResolveCandidates(ctx context.Context, subjectID, fallbackKey string) ([]string, error)
}

// Options configure a Runtime. Zero values get defaults.
type Options struct {
	Settings   Settings
	Resolver   URIResolver
	Codec      *wire.Codec
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
}

// Runtime is the process context shared by connectors, the dispatcher and the server.
type Runtime struct {
	settings   Settings
	codec      *wire.Codec
	metrics    *metrics.Metrics
	locks      *EndpointLocks
	dispatcher *FailoverDispatcher

	mu         sync.Mutex
	connectors []*Connector

	buildOnce sync.Once
	registry  *methods.Registry
	buildErr  error
}

// NewRuntime builds a runtime from opts.
func NewRuntime(opts Options) *Runtime {
	settings := opts.Settings.withDefaults()

	codec := opts.Codec
	if codec == nil {
		codec = wire.NewCodec()
		wire.RegisterIdentifiers(codec)
	}
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient(settings.RequestTimeout)
	}

	locks := NewEndpointLocks()
	rt := &Runtime{
		settings: settings,
		codec:    codec,
		metrics:  opts.Metrics,
		locks:    locks,
	}
	rt.dispatcher = &FailoverDispatcher{
		client:   client,
		locks:    locks,
		resolver: opts.Resolver,
		tryCount: settings.TryCount,
		metrics:  opts.Metrics,
	}
	return rt
}

// NewHTTPClient returns the outbound client: overall timeout, half of it for dial and
// response headers, no keep-alives and a bounded redirect chain.
func NewHTTPClient(timeout time.Duration) *http.Client {
	half := timeout / 2
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: half}).DialContext,
		ResponseHeaderTimeout: half,
		TLSHandshakeTimeout:   half,
		DisableKeepAlives:     true,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// Settings returns the effective call settings.
func (rt *Runtime) Settings() Settings { return rt.settings }

// Codec returns the shared value codec.
func (rt *Runtime) Codec() *wire.Codec { return rt.codec }

// Metrics returns the collectors, possibly nil.
func (rt *Runtime) Metrics() *metrics.Metrics { return rt.metrics }

// EndpointLocks returns the endpoint lock table.
func (rt *Runtime) EndpointLocks() *EndpointLocks { return rt.locks }

// Dispatcher returns the failover dispatcher used by all connectors.
func (rt *Runtime) Dispatcher() *FailoverDispatcher { return rt.dispatcher }

func (rt *Runtime) add(c *Connector) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, existing := range rt.connectors {
		if existing == c {
			return
		}
	}
	if rt.registry != nil {
		slog.Warn(fmt.Sprintf("%s - connector %s registered after the method table was built; its methods are not served", runtimeLogPrefix, c.Name()))
	}
	rt.connectors = append(rt.connectors, c)
}

// Connectors returns a snapshot of the registered connectors in registration order.
func (rt *Runtime) Connectors() []*Connector {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*Connector, len(rt.connectors))
	copy(out, rt.connectors)
	return out
}

// Methods builds the method table from the registered connectors on first use and returns
// the same table (or the same error) afterwards.
func (rt *Runtime) Methods() (*methods.Registry, error) {
	rt.buildOnce.Do(func() {
		conns := rt.Connectors()
		providers := make([]methods.Provider, 0, len(conns))
		for _, c := range conns {
			providers = append(providers, c)
		}
		reg, err := methods.Build(providers...)

		rt.mu.Lock()
		rt.registry, rt.buildErr = reg, err
		rt.mu.Unlock()

		if err != nil {
			slog.Error(fmt.Sprintf("%s - building method table: %v", runtimeLogPrefix, err))
			return
		}
		slog.Info(fmt.Sprintf("%s - method table built: %d methods from %d connectors", runtimeLogPrefix, reg.Len(), len(reg.Providers())))
	})
	return rt.registry, rt.buildErr
}
