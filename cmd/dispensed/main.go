// Command dispensed runs the pharmacy dispensing workflow engine's HTTP
// API: prescription intake through pickup, claim adjudication, fill
// verification, and inventory tracking, all behind JWT-authenticated,
// RBAC-checked routes.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/ridgeline-health/dispense/pkg/adapters"
	"github.com/ridgeline-health/dispense/pkg/auditlog"
	"github.com/ridgeline-health/dispense/pkg/authz"
	"github.com/ridgeline-health/dispense/pkg/claim"
	"github.com/ridgeline-health/dispense/pkg/clock"
	"github.com/ridgeline-health/dispense/pkg/concurrency"
	"github.com/ridgeline-health/dispense/pkg/concurrency/redislock"
	"github.com/ridgeline-health/dispense/pkg/config"
	"github.com/ridgeline-health/dispense/pkg/dur"
	"github.com/ridgeline-health/dispense/pkg/httpapi"
	"github.com/ridgeline-health/dispense/pkg/httpauth"
	"github.com/ridgeline-health/dispense/pkg/idgen"
	"github.com/ridgeline-health/dispense/pkg/inventory"
	"github.com/ridgeline-health/dispense/pkg/observability"
	"github.com/ridgeline-health/dispense/pkg/ports"
	"github.com/ridgeline-health/dispense/pkg/prescription"
	"github.com/ridgeline-health/dispense/pkg/resiliency"
	"github.com/ridgeline-health/dispense/pkg/store/postgres"
	"github.com/ridgeline-health/dispense/pkg/store/sqlite"
	"github.com/ridgeline-health/dispense/pkg/verification"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable so tests can stub it out without actually
// binding ports.
var startServer = runServer

// Run is the CLI entrypoint, kept as a pure function of its args/writers
// so it can be exercised from tests without touching os.Args.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startServer()
		return 0
	}

	switch args[1] {
	case "server", "serve":
		startServer()
		return 0
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if strings.HasPrefix(args[1], "-") {
			startServer()
			return 0
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "dispensed: pharmacy dispensing workflow engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  dispensed <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  server, serve   Run the HTTP API (default)")
	fmt.Fprintln(w, "  health          Check a running server's health endpoint")
	fmt.Fprintln(w, "  help            Show this message")
}

// runHealthCmd hits a sibling dispensed process's health listener, for use
// in container healthchecks where exec-ing curl isn't available.
func runHealthCmd(out, errOut io.Writer) int {
	cfg := config.Load()
	resp, err := http.Get("http://localhost" + cfg.HealthAddr + "/healthz")
	if err != nil {
		fmt.Fprintf(errOut, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func runServer() {
	ctx := context.Background()
	cfg := config.Load()
	logger := slog.Default()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("dispensed: store init: %v", err)
	}
	logger.Info("dispensed: store ready")

	clk := clock.System{}
	ids := idgen.UUIDGen{}
	audit := auditlog.NewLogger(clk)

	locker, err := openLocker(cfg)
	if err != nil {
		log.Fatalf("dispensed: locker init: %v", err)
	}
	if cfg.RedisURL != "" {
		logger.Info("dispensed: distributed locker ready", "backend", "redis")
	}

	rx := prescription.New(store, locker, clk, ids, audit)
	verify := verification.New(store, locker, clk, ids, audit)
	ledger := inventory.New(store, locker, clk, ids, audit)

	durEngine, err := dur.NewEngine()
	if err != nil {
		log.Fatalf("dispensed: dur engine init: %v", err)
	}

	var claimSwitch ports.ClaimSwitch = adapters.NewClaimSwitchClient(cfg.ClaimSwitchURL)
	policy := resiliency.DefaultClaimSwitchPolicy()
	adjudicator := claim.New(claimSwitch, store, clk, ids, audit, &policy)

	authzEngine := authz.NewEngine()
	obs, err := observability.New("dispensed")
	if err != nil {
		log.Fatalf("dispensed: observability init: %v", err)
	}
	validator := httpauth.NewValidator([]byte(cfg.JWTSigningSecret))

	var pdmpProvider ports.PDMPProvider = adapters.NewPDMPClient(cfg.PDMPProviderURL)
	registryClients := make(map[string]ports.RegistryClient, len(cfg.RegistryURLByState))
	for state, url := range cfg.RegistryURLByState {
		registryClients[state] = adapters.NewRegistryClient(url)
	}
	var suggestor ports.Suggestor = adapters.NoopSuggestor{}
	if cfg.SuggestorProvider != "none" && cfg.SuggestorProvider != "" {
		suggestor = adapters.NewSuggestorClient(cfg.SuggestorProvider)
	}

	srv := httpapi.New(store, authzEngine, obs, rx, adjudicator, verify, ledger, durEngine).
		WithPDMP(pdmpProvider).
		WithRegistries(registryClients).
		WithClock(clk).
		WithIDGen(ids).
		WithSuggestor(suggestor)
	handler := srv.Routes(validator)

	go func() {
		logger.Info("dispensed: api listening", "addr", cfg.HTTPAddr)
		if err := http.ListenAndServe(cfg.HTTPAddr, handler); err != nil {
			logger.Error("dispensed: api server stopped", "error", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	go func() {
		logger.Info("dispensed: health listening", "addr", cfg.HealthAddr)
		if err := http.ListenAndServe(cfg.HealthAddr, healthMux); err != nil {
			logger.Error("dispensed: health server stopped", "error", err)
		}
	}()

	logger.Info("dispensed: ready")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("dispensed: shutting down")
}

// openLocker returns a Redis-backed distributed Locker when cfg.RedisURL is
// set, so the per-prescription/per-NDC/per-fill lock is actually shared
// across worker processes; otherwise it returns nil and the orchestration
// packages (prescription.New, verification.New, inventory.New) fall back to
// their in-process KeyedLocker, correct only for a single dispensed process.
func openLocker(cfg *config.Config) (concurrency.Locker, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return redislock.New(client, "dispense:lock:", 30*time.Second), nil
}

// openStore connects to Postgres when cfg.DBURL names a postgres DSN,
// otherwise treats it as a SQLite file path ("lite mode" for single-node
// deployments without an external database).
func openStore(ctx context.Context, cfg *config.Config) (ports.Store, error) {
	if strings.HasPrefix(cfg.DBURL, "postgres://") || strings.HasPrefix(cfg.DBURL, "postgresql://") {
		db, err := sql.Open("postgres", cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		st := postgres.New(db)
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return st, nil
	}

	path := strings.TrimPrefix(cfg.DBURL, "sqlite://")
	if path == "" {
		path = "dispense.db"
		log.Printf("dispensed: DB_URL not set, falling back to lite mode (%s)", path)
	}
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return st, nil
}
