// Package server orchestrates all components: services file, DB, resolvers, session policy,
// connectors, NATS call events, the connector endpoint and the HTTP health surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/remote-connectors/internal/config"
	"github.com/morezero/remote-connectors/pkg/agentinfo"
	"github.com/morezero/remote-connectors/pkg/avatar"
	"github.com/morezero/remote-connectors/pkg/bootstrap"
	"github.com/morezero/remote-connectors/pkg/commsutil"
	"github.com/morezero/remote-connectors/pkg/connector"
	"github.com/morezero/remote-connectors/pkg/db"
	"github.com/morezero/remote-connectors/pkg/dispatcher"
	"github.com/morezero/remote-connectors/pkg/events"
	"github.com/morezero/remote-connectors/pkg/metrics"
	"github.com/morezero/remote-connectors/pkg/session"
	"github.com/morezero/remote-connectors/pkg/uris"
)

const logPrefix = "server:server"

const shutdownTimeout = 10 * time.Second

// Server is the remote-connectors orchestrator.
type Server struct {
	cfg      *config.Config
	services *bootstrap.ServicesConfig
	pool     *pgxpool.Pool
	nc       *comms.Conn
	rt       *connector.Runtime
	handler  *dispatcher.Handler
	promReg  *prometheus.Registry

	httpServer *http.Server
}

// SetupLogging installs the default text logger at the given level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run loads config, starts the server, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting remote-connectors", logPrefix))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Serve(ctx)
}

// New wires every component from cfg. The method table is built eagerly so registration
// conflicts stop startup.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	// Step 1: Services file, overlaid on the built-in default
	loaded, err := bootstrap.LoadServicesConfig(cfg.ServiceFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load services config: %w", logPrefix, err)
	}
	s.services = bootstrap.MergeServicesConfigs(bootstrap.GetDefaultServicesConfig(), loaded)

	// Step 2: Database (optional)
	var repo *db.Repository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool
		if cfg.RunMigrations {
			if err := s.migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		repo = db.NewRepository(pool)
	}

	// Step 3: Resolution and session policy
	static, err := uris.NewStaticResolver(s.services, cfg.ProtocolConstraint)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s - invalid PROTOCOL_CONSTRAINT: %w", logPrefix, err)
	}
	var resolver uris.Resolver = static
	var policy session.Policy = session.FromServicesConfig(s.services)
	if repo != nil {
		dbResolver, err := uris.NewDBResolver(repo, cfg.ProtocolConstraint)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%s - invalid PROTOCOL_CONSTRAINT: %w", logPrefix, err)
		}
		resolver = uris.Chain{dbResolver, static}
		policy = session.Any{session.NewDBPolicy(repo), policy}
	}

	// Step 4: Runtime and connectors
	s.promReg = prometheus.NewRegistry()
	s.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.rt = connector.NewRuntime(connector.Options{
		Settings: cfg.Settings(),
		Resolver: resolver,
		Metrics:  metrics.New(s.promReg),
	})

	if cfg.ConnectorPassword == "" {
		slog.Warn(fmt.Sprintf("%s - CONNECTOR_PASSWORD is empty; password-protected methods accept an empty password", logPrefix))
	}
	RegisterConnectors(s.rt, cfg.ConnectorPassword, repo)

	reg, err := s.rt.Methods()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s - failed to build method table: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Serving %d methods: %v", logPrefix, reg.Len(), reg.Names()))

	// Step 5: Call events over COMMS (optional)
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		s.nc = nc
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{})
		slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))
	}

	s.handler = dispatcher.NewHandler(s.rt, policy, &dispatcher.Options{Publisher: publisher})
	return s, nil
}

// RegisterConnectors initializes the built-in connectors on rt. A nil repo selects the
// in-memory stores.
func RegisterConnectors(rt *connector.Runtime, password string, repo *db.Repository) {
	var avatarStore avatar.Store = avatar.NewMemoryStore()
	var infoStore agentinfo.Store = agentinfo.NewMemoryStore()
	if repo != nil {
		avatarStore, infoStore = repo, repo
	}
	avatar.New(password, avatarStore).Init(rt)
	agentinfo.New(password, infoStore).Init(rt)
}

func (s *Server) migrate(ctx context.Context) error {
	migrationSQL, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
	}
	if err := db.RunMigrations(ctx, s.pool, migrationSQL); err != nil {
		return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
	}
	if err := db.SeedServices(ctx, s.pool, s.services); err != nil {
		return fmt.Errorf("%s - failed to seed services: %w", logPrefix, err)
	}
	return nil
}

// Runtime returns the connector runtime.
func (s *Server) Runtime() *connector.Runtime { return s.rt }

// Handler returns the full HTTP surface: the connector endpoint, health, readiness,
// metrics and the method listing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handler.Mount(mux, s.cfg.ServicePath)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", s.handleHome())
	return mux
}

// Serve listens on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.RequestTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s (connectors at %s)", logPrefix, s.httpServer.Addr, s.cfg.ServicePath))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

// Close releases NATS and the database pool.
func (s *Server) Close() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - NATS drain: %v", logPrefix, err))
		}
		s.nc = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// HealthOutput is the /health body.
type HealthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{Status: "healthy", Checks: map[string]bool{}, Timestamp: time.Now().UTC().Format(time.RFC3339)}

	_, err := s.rt.Methods()
	h.Checks["methods"] = err == nil
	if s.pool != nil {
		h.Checks["database"] = s.pool.Ping(ctx) == nil
	}
	if s.nc != nil {
		h.Checks["comms"] = s.nc.IsConnected()
	}
	for _, ok := range h.Checks {
		if !ok {
			h.Status = "unhealthy"
		}
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.health(ctx)
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := s.rt.Methods(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// homePageTemplate is the HTML for the method listing (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Remote Connectors</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Remote Connectors</h1>
  <p>Endpoint: <code>POST {{.Path}}</code> and <code>POST {{.Path}}/{session}</code></p>
  {{if .Error}}
  <p class="error">Method table unavailable: {{.Error}}</p>
  {{else}}
  <table>
    <thead><tr><th>Connector</th><th>Method</th><th>Parameters</th><th>Threat level</th><th>Password</th></tr></thead>
    <tbody>
      {{range .Methods}}
      <tr><td>{{.Connector}}</td><td>{{.Name}}</td><td>{{.Params}}</td><td>{{.Threat}}</td><td>{{if .Password}}yes{{end}}</td></tr>
      {{end}}
    </tbody>
  </table>
  {{end}}
</body>
</html>
`

// MethodInfo is one row of the method listing.
type MethodInfo struct {
	Connector string
	Name      string
	Params    string
	Threat    string
	Password  bool
}

type homeData struct {
	Path    string
	Methods []MethodInfo
	Error   string
}

// ListMethods describes the served methods in name order.
func ListMethods(rt *connector.Runtime) ([]MethodInfo, error) {
	reg, err := rt.Methods()
	if err != nil {
		return nil, err
	}
	var out []MethodInfo
	for _, name := range reg.Names() {
		for _, e := range reg.Overloads(name) {
			d := e.Descriptor
			params := ""
			for i, p := range d.Params() {
				if i > 0 {
					params += ", "
				}
				params += p.Name
				if p.Optional {
					params += "?"
				}
			}
			out = append(out, MethodInfo{
				Connector: e.Provider.Name(),
				Name:      d.WireName(),
				Params:    params,
				Threat:    d.ThreatLevel().String(),
				Password:  d.UsePassword(),
			})
		}
	}
	return out, nil
}

func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		data := homeData{Path: s.cfg.ServicePath}
		list, err := ListMethods(s.rt)
		if err != nil {
			data.Error = err.Error()
		} else {
			data.Methods = list
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
