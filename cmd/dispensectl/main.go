// Command dispensectl is the dispensed server's admin CLI: schema
// migration, audit-trail export, and inventory-ledger reconciliation
// against a running deployment's store, without going through the HTTP
// API.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ridgeline-health/dispense/pkg/config"
	"github.com/ridgeline-health/dispense/pkg/ports"
	"github.com/ridgeline-health/dispense/pkg/store/postgres"
	"github.com/ridgeline-health/dispense/pkg/store/sqlite"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, kept as a pure function of its args/writers
// so it can be exercised from tests without touching os.Args.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "migrate":
		return runMigrateCmd(args[2:], stdout, stderr)
	case "audit-export":
		return runAuditExportCmd(args[2:], stdout, stderr)
	case "inventory-verify":
		return runInventoryVerifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "dispensectl: dispensed admin CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  dispensectl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  migrate            Run schema migrations against DB_URL")
	fmt.Fprintln(w, "  audit-export       Export audit entries as newline-delimited JSON")
	fmt.Fprintln(w, "  inventory-verify   Recompute a running balance and compare to the stored on-hand quantity")
	fmt.Fprintln(w, "  help               Show this message")
}

// openStore connects to Postgres when cfg.DBURL names a postgres DSN,
// otherwise treats it as a SQLite file path, mirroring cmd/dispensed's
// own store-selection rule so both binaries degrade the same way.
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
		return postgres.New(db), nil
	}

	path := strings.TrimPrefix(cfg.DBURL, "sqlite://")
	if path == "" {
		path = "dispense.db"
	}
	return sqlite.Open(path)
}

// runMigrateCmd applies the postgres schema. sqlite migrates itself on
// open (pkg/store/sqlite.Open), so this is a no-op in lite mode beyond
// confirming the file opens cleanly.
func runMigrateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("migrate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	ctx := context.Background()

	if strings.HasPrefix(cfg.DBURL, "postgres://") || strings.HasPrefix(cfg.DBURL, "postgresql://") {
		db, err := sql.Open("postgres", cfg.DBURL)
		if err != nil {
			fmt.Fprintf(stderr, "dispensectl: open postgres: %v\n", err)
			return 2
		}
		defer db.Close()
		st := postgres.New(db)
		if err := st.Migrate(ctx); err != nil {
			fmt.Fprintf(stderr, "dispensectl: migrate: %v\n", err)
			return 2
		}
		fmt.Fprintln(stdout, "migrated postgres schema")
		return 0
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "dispensectl: open sqlite: %v\n", err)
		return 2
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	fmt.Fprintln(stdout, "sqlite lite-mode store migrates on open, nothing further to do")
	return 0
}

// runAuditExportCmd writes every audit entry past --since as one JSON
// object per line, ordered by sequence, for piping into a SIEM or
// offline compliance review.
func runAuditExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit-export", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var since uint64
	cmd.Uint64Var(&since, "since", 0, "export only entries with sequence greater than this")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "dispensectl: store init: %v\n", err)
		return 2
	}

	entries, err := store.ListAuditEntries(ctx, since)
	if err != nil {
		fmt.Fprintf(stderr, "dispensectl: list audit entries: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			fmt.Fprintf(stderr, "dispensectl: encode audit entry: %v\n", err)
			return 2
		}
	}
	return 0
}

// runInventoryVerifyCmd recomputes the running balance from an NDC's
// recorded transactions and flags drift against the stored on-hand
// quantity, catching a missed or duplicated ledger write.
func runInventoryVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("inventory-verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var pharmacyID, ndc string
	cmd.StringVar(&pharmacyID, "pharmacy", "", "pharmacy ID (required)")
	cmd.StringVar(&ndc, "ndc", "", "NDC (required)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if pharmacyID == "" || ndc == "" {
		fmt.Fprintln(stderr, "dispensectl: --pharmacy and --ndc are required")
		return 2
	}

	cfg := config.Load()
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "dispensectl: store init: %v\n", err)
		return 2
	}

	item, err := store.GetInventoryItem(ctx, pharmacyID, ndc)
	if err != nil {
		fmt.Fprintf(stderr, "dispensectl: get inventory item: %v\n", err)
		return 2
	}
	txs, err := store.ListInventoryTransactions(ctx, pharmacyID, ndc)
	if err != nil {
		fmt.Fprintf(stderr, "dispensectl: list transactions: %v\n", err)
		return 2
	}

	var recomputed float64
	for _, tx := range txs {
		recomputed += tx.SignedDelta
	}

	if recomputed == item.OnHand {
		fmt.Fprintf(stdout, "OK: %s/%s on-hand %.3f matches %d transactions\n", pharmacyID, ndc, item.OnHand, len(txs))
		return 0
	}
	fmt.Fprintf(stdout, "DRIFT: %s/%s stored on-hand %.3f, recomputed %.3f from %d transactions\n",
		pharmacyID, ndc, item.OnHand, recomputed, len(txs))
	return 1
}
