// Package main is the entrypoint for the remote-connectors server and its admin commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/morezero/remote-connectors/internal/config"
	"github.com/morezero/remote-connectors/internal/server"
	"github.com/morezero/remote-connectors/pkg/bootstrap"
	"github.com/morezero/remote-connectors/pkg/connector"
	"github.com/morezero/remote-connectors/pkg/db"
	"github.com/morezero/remote-connectors/pkg/wire"
)

const usage = `Usage: connectors [command]
       connectors serve                         Start the connector server (HTTP endpoint, health, metrics).
       connectors migrate up                    Run database migrations.
       connectors migrate status                Show migration status.
       connectors ensure-db [name]              Create database if missing (default name: connectors_test). Uses DATABASE_URL host/user.
       connectors clear                         Truncate all connector tables; schema is preserved.
       connectors seed [file]                   Seed service URIs and sessions from a services file.
       connectors call <url> <method> [k=v ...] POST one envelope to url and print the Value.
       connectors methods                       List the methods this build serves.

Values in call arguments are JSON; anything that is not valid JSON is sent as a string.
Password=<secret> sets the envelope password.

Environment: DATABASE_URL (db commands), MIGRATION_PATH, CONNECTORS_SERVICE_FILE, SERVICE_PATH,
HTTP_PORT (default 8003), DO_REMOTE_CALLS, OSD_REQUEST_TIMEOUT_MS, OSD_REQUEST_TRY_COUNT,
CONNECTOR_PASSWORD, COMMS_URL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("connectors migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("connectors migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("connectors migrate status: %v", err)
			}
		default:
			log.Fatalf("connectors migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("connectors clear: %v", err)
		}
		return
	case "seed":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runSeed(file); err != nil {
			log.Fatalf("connectors seed: %v", err)
		}
		return
	case "ensure-db":
		dbName := "connectors_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("connectors ensure-db: %v", err)
		}
		return
	case "call":
		if len(args) < 3 {
			log.Fatalf("connectors call: require <url> <method>")
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("connectors call: load config: %v", err)
		}
		if err := runCall(context.Background(), os.Stdout, cfg.Settings(), args[1], args[2], args[3:]); err != nil {
			log.Fatalf("connectors call: %v", err)
		}
		return
	case "methods":
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("connectors methods: load config: %v", err)
		}
		if err := runMethods(os.Stdout, cfg.ConnectorPassword); err != nil {
			log.Fatalf("connectors methods: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("connectors: %v", err)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearAll(ctx, pool); err != nil {
		return fmt.Errorf("clear tables: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Replace path with target database name; query (e.g. sslmode) is kept on u.RawQuery.
	u.Path = "/" + dbName
	if err := db.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

func runSeed(file string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	if file == "" {
		file = cfg.ServiceFile
	}
	services, err := bootstrap.LoadServicesConfig(file)
	if err != nil {
		return fmt.Errorf("load services file: %w", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.SeedServices(ctx, pool, services)
}

// buildEnvelope turns name=value pairs into an envelope. Values that are not valid JSON
// are encoded as strings.
func buildEnvelope(method string, pairs []string) (*wire.Envelope, error) {
	env := wire.NewEnvelope(method)
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q is not name=value", pair)
		}
		if name == wire.KeyPassword {
			env.SetPassword(value)
			continue
		}
		if name == wire.KeyMethod {
			return nil, fmt.Errorf("argument name %q is reserved", name)
		}
		raw := json.RawMessage(value)
		if !json.Valid(raw) {
			quoted, err := json.Marshal(value)
			if err != nil {
				return nil, err
			}
			raw = quoted
		}
		env.Set(name, raw)
	}
	return env, nil
}

func runCall(ctx context.Context, out io.Writer, settings connector.Settings, target, method string, pairs []string) error {
	env, err := buildEnvelope(method, pairs)
	if err != nil {
		return err
	}
	rt := connector.NewRuntime(connector.Options{Settings: settings})
	resp, err := rt.Dispatcher().Dispatch(ctx, env, connector.Target{URL: target})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(resp.Value))
	return err
}

func runMethods(out io.Writer, password string) error {
	rt := connector.NewRuntime(connector.Options{})
	server.RegisterConnectors(rt, password, nil)
	list, err := server.ListMethods(rt)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONNECTOR\tMETHOD\tPARAMS\tTHREAT\tPASSWORD")
	for _, m := range list {
		pw := ""
		if m.Password {
			pw = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Connector, m.Name, m.Params, m.Threat, pw)
	}
	return w.Flush()
}
