// Package sqlite implements ports.Store against a single-file SQLite
// database, for the lite/single-node deployment mode. It mirrors
// pkg/store/postgres's indexed-columns-plus-JSON-payload table layout, but
// migrates its schema on construction rather than via a separate migrate
// command, matching how this codebase's own embedded-database stores have
// always bootstrapped themselves.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/model"
)

// ErrNotFound is returned when a lookup key has no record.
var ErrNotFound = fmt.Errorf("sqlite: not found")

// Store implements ports.Store over a *sql.DB opened against the
// "sqlite" driver.
type Store struct {
	db *sql.DB
}

// Open opens path (file or ":memory:") with modernc.org/sqlite and
// migrates the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY races
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an already-open *sql.DB and migrates its schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		mrn TEXT NOT NULL,
		dob DATETIME NOT NULL,
		version INTEGER NOT NULL,
		data JSON NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS patients_mrn_dob_idx ON patients (mrn, dob)`,

	`CREATE TABLE IF NOT EXISTS prescriptions (
		id TEXT PRIMARY KEY,
		prescriber_id TEXT NOT NULL,
		written_date DATETIME NOT NULL,
		version INTEGER NOT NULL,
		data JSON NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS prescriptions_prescriber_written_idx ON prescriptions (prescriber_id, written_date)`,

	`CREATE TABLE IF NOT EXISTS fills (
		id TEXT PRIMARY KEY,
		prescription_id TEXT NOT NULL,
		fill_number INTEGER NOT NULL,
		version INTEGER NOT NULL,
		data JSON NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS fills_prescription_idx ON fills (prescription_id, fill_number)`,

	`CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		fill_id TEXT NOT NULL,
		attempt_no INTEGER NOT NULL,
		version INTEGER NOT NULL,
		data JSON NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS claims_fill_idx ON claims (fill_id, attempt_no)`,

	`CREATE TABLE IF NOT EXISTS verification_sessions (
		fill_id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		data JSON NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_items (
		pharmacy_id TEXT NOT NULL,
		ndc TEXT NOT NULL,
		version INTEGER NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (pharmacy_id, ndc)
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		pharmacy_id TEXT NOT NULL,
		ndc TEXT NOT NULL,
		data JSON NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_transactions_key_idx ON inventory_transactions (pharmacy_id, ndc, seq)`,

	`CREATE TABLE IF NOT EXISTS audit_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		resource TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		data JSON NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_entries_resource_idx ON audit_entries (resource, resource_id, seq)`,
}

func concurrentMutationErr() error {
	return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
}

func (s *Store) upsertVersioned(ctx context.Context, insertQuery, updateQuery string, expectedVersion int64, insertArgs, updateArgs []any) error {
	if expectedVersion == 0 {
		if _, err := s.db.ExecContext(ctx, insertQuery, insertArgs...); err == nil {
			return nil
		}
		// The row already exists: fall through to the guarded update, so a
		// write over a row still at version 0 succeeds and any other stored
		// version reports a concurrent mutation.
	}
	res, err := s.db.ExecContext(ctx, updateQuery, updateArgs...)
	if err != nil {
		return fmt.Errorf("sqlite: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return concurrentMutationErr()
	}
	return nil
}

// --- patients ---

func (s *Store) GetPatient(ctx context.Context, id string) (*model.Patient, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM patients WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get patient: %w", err)
	}
	var p model.Patient
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("sqlite: decode patient: %w", err)
	}
	return &p, nil
}

func (s *Store) FindPatientByMRNDOB(ctx context.Context, mrn string, dob time.Time) (*model.Patient, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM patients WHERE mrn = ? AND dob = ?`, mrn, dob).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find patient: %w", err)
	}
	var p model.Patient
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("sqlite: decode patient: %w", err)
	}
	return &p, nil
}

func (s *Store) PutPatient(ctx context.Context, p *model.Patient, expectedVersion int64) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("sqlite: encode patient: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO patients (id, mrn, dob, version, data) VALUES (?, ?, ?, ?, ?)`,
		`UPDATE patients SET mrn = ?, dob = ?, version = ?, data = ? WHERE id = ? AND version = ?`,
		expectedVersion,
		[]any{p.ID, p.MRN, p.DOB, p.Version, raw},
		[]any{p.MRN, p.DOB, p.Version, raw, p.ID, expectedVersion},
	)
}

// --- prescriptions ---

func (s *Store) GetPrescription(ctx context.Context, id string) (*model.Prescription, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM prescriptions WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get prescription: %w", err)
	}
	var rx model.Prescription
	if err := json.Unmarshal(raw, &rx); err != nil {
		return nil, fmt.Errorf("sqlite: decode prescription: %w", err)
	}
	return &rx, nil
}

func (s *Store) PutPrescription(ctx context.Context, rx *model.Prescription, expectedVersion int64) error {
	raw, err := json.Marshal(rx)
	if err != nil {
		return fmt.Errorf("sqlite: encode prescription: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO prescriptions (id, prescriber_id, written_date, version, data) VALUES (?, ?, ?, ?, ?)`,
		`UPDATE prescriptions SET prescriber_id = ?, written_date = ?, version = ?, data = ? WHERE id = ? AND version = ?`,
		expectedVersion,
		[]any{rx.ID, rx.PrescriberID, rx.WrittenDate, rx.Version, raw},
		[]any{rx.PrescriberID, rx.WrittenDate, rx.Version, raw, rx.ID, expectedVersion},
	)
}

func (s *Store) ListRecentPrescriptionsByPrescriber(ctx context.Context, prescriberID string, since time.Time) ([]*model.Prescription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM prescriptions WHERE prescriber_id = ? AND written_date >= ? ORDER BY written_date`,
		prescriberID, since)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list prescriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Prescription
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan prescription: %w", err)
		}
		var rx model.Prescription
		if err := json.Unmarshal(raw, &rx); err != nil {
			return nil, fmt.Errorf("sqlite: decode prescription: %w", err)
		}
		out = append(out, &rx)
	}
	return out, rows.Err()
}

// --- fills ---

func (s *Store) GetFill(ctx context.Context, id string) (*model.Fill, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM fills WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get fill: %w", err)
	}
	var f model.Fill
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("sqlite: decode fill: %w", err)
	}
	return &f, nil
}

func (s *Store) ListFills(ctx context.Context, prescriptionID string) ([]*model.Fill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM fills WHERE prescription_id = ? ORDER BY fill_number`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list fills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Fill
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan fill: %w", err)
		}
		var f model.Fill
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("sqlite: decode fill: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *Store) PutFill(ctx context.Context, f *model.Fill, expectedVersion int64) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("sqlite: encode fill: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO fills (id, prescription_id, fill_number, version, data) VALUES (?, ?, ?, ?, ?)`,
		`UPDATE fills SET prescription_id = ?, fill_number = ?, version = ?, data = ? WHERE id = ? AND version = ?`,
		expectedVersion,
		[]any{f.ID, f.PrescriptionID, f.FillNumber, f.Version, raw},
		[]any{f.PrescriptionID, f.FillNumber, f.Version, raw, f.ID, expectedVersion},
	)
}

// --- claims ---

func (s *Store) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM claims WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get claim: %w", err)
	}
	var c model.Claim
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("sqlite: decode claim: %w", err)
	}
	return &c, nil
}

func (s *Store) ListClaims(ctx context.Context, fillID string) ([]*model.Claim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM claims WHERE fill_id = ? ORDER BY attempt_no`, fillID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Claim
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan claim: %w", err)
		}
		var c model.Claim
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("sqlite: decode claim: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) PutClaim(ctx context.Context, c *model.Claim, expectedVersion int64) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("sqlite: encode claim: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO claims (id, fill_id, attempt_no, version, data) VALUES (?, ?, ?, ?, ?)`,
		`UPDATE claims SET fill_id = ?, attempt_no = ?, version = ?, data = ? WHERE id = ? AND version = ?`,
		expectedVersion,
		[]any{c.ID, c.FillID, c.AttemptNo, c.Version, raw},
		[]any{c.FillID, c.AttemptNo, c.Version, raw, c.ID, expectedVersion},
	)
}

// --- verification sessions ---

func (s *Store) GetVerificationSession(ctx context.Context, fillID string) (*model.VerificationSession, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM verification_sessions WHERE fill_id = ?`, fillID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get verification session: %w", err)
	}
	var vs model.VerificationSession
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, fmt.Errorf("sqlite: decode verification session: %w", err)
	}
	return &vs, nil
}

func (s *Store) PutVerificationSession(ctx context.Context, vs *model.VerificationSession, expectedVersion int64) error {
	raw, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("sqlite: encode verification session: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO verification_sessions (fill_id, version, data) VALUES (?, ?, ?)`,
		`UPDATE verification_sessions SET version = ?, data = ? WHERE fill_id = ? AND version = ?`,
		expectedVersion,
		[]any{vs.FillID, vs.Version, raw},
		[]any{vs.Version, raw, vs.FillID, expectedVersion},
	)
}

// --- inventory ---

func (s *Store) GetInventoryItem(ctx context.Context, pharmacyID, ndc string) (*model.InventoryItem, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM inventory_items WHERE pharmacy_id = ? AND ndc = ?`, pharmacyID, ndc).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get inventory item: %w", err)
	}
	var item model.InventoryItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("sqlite: decode inventory item: %w", err)
	}
	return &item, nil
}

func (s *Store) PutInventoryItem(ctx context.Context, item *model.InventoryItem, expectedVersion int64) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("sqlite: encode inventory item: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO inventory_items (pharmacy_id, ndc, version, data) VALUES (?, ?, ?, ?)`,
		`UPDATE inventory_items SET version = ?, data = ? WHERE pharmacy_id = ? AND ndc = ? AND version = ?`,
		expectedVersion,
		[]any{item.PharmacyID, item.NDC, item.Version, raw},
		[]any{item.Version, raw, item.PharmacyID, item.NDC, expectedVersion},
	)
}

func (s *Store) AppendInventoryTransaction(ctx context.Context, tx model.InventoryTransaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("sqlite: encode inventory transaction: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO inventory_transactions (id, pharmacy_id, ndc, data) VALUES (?, ?, ?, ?)`,
		tx.ID, tx.PharmacyID, tx.NDC, raw)
	if err != nil {
		return fmt.Errorf("sqlite: append inventory transaction: %w", err)
	}
	return nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, pharmacyID, ndc string) ([]model.InventoryTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM inventory_transactions WHERE pharmacy_id = ? AND ndc = ? ORDER BY seq`,
		pharmacyID, ndc)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list inventory transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.InventoryTransaction
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan inventory transaction: %w", err)
		}
		var tx model.InventoryTransaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, fmt.Errorf("sqlite: decode inventory transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// --- audit ---

func (s *Store) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("sqlite: encode audit entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, resource, resource_id, data) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Resource, entry.ResourceID, raw)
	if err != nil {
		return fmt.Errorf("sqlite: append audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns every entry with seq > since, in ascending
// sequence order, for cmd/dispensectl's audit-export.
func (s *Store) ListAuditEntries(ctx context.Context, since uint64) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, data FROM audit_entries WHERE seq > ? ORDER BY seq ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var seq uint64
		var raw []byte
		if err := rows.Scan(&seq, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		var e model.AuditEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("sqlite: decode audit entry: %w", err)
		}
		e.Sequence = seq
		out = append(out, e)
	}
	return out, rows.Err()
}
