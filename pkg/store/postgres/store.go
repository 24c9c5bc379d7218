// Package postgres implements ports.Store against PostgreSQL. Each table
// carries the columns the engine actually queries by (id, the foreign keys
// ListFills/ListClaims/ListRecentPrescriptionsByPrescriber filter on, and
// the optimistic-concurrency version) plus a JSONB payload column holding
// the full encoded aggregate, mirroring the metadata-blob-plus-indexed-
// columns split the rest of this codebase's ancestry uses for its
// append-only record stores.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ridgeline-health/dispense/pkg/errtax"
	"github.com/ridgeline-health/dispense/pkg/model"
)

// ErrNotFound is returned when a lookup key has no record.
var ErrNotFound = fmt.Errorf("postgres: not found")

// Store implements ports.Store over a *sql.DB.
type Store struct {
	db *sql.DB
}

// New builds a Store. Callers own the *sql.DB's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates every table this store needs if absent. It is safe to
// call on every process start.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		mrn TEXT NOT NULL,
		dob TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL,
		data JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS patients_mrn_dob_idx ON patients (mrn, dob)`,

	`CREATE TABLE IF NOT EXISTS prescriptions (
		id TEXT PRIMARY KEY,
		prescriber_id TEXT NOT NULL,
		written_date TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL,
		data JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS prescriptions_prescriber_written_idx ON prescriptions (prescriber_id, written_date)`,

	`CREATE TABLE IF NOT EXISTS fills (
		id TEXT PRIMARY KEY,
		prescription_id TEXT NOT NULL,
		fill_number INT NOT NULL,
		version BIGINT NOT NULL,
		data JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS fills_prescription_idx ON fills (prescription_id, fill_number)`,

	`CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		fill_id TEXT NOT NULL,
		attempt_no INT NOT NULL,
		version BIGINT NOT NULL,
		data JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS claims_fill_idx ON claims (fill_id, attempt_no)`,

	`CREATE TABLE IF NOT EXISTS verification_sessions (
		fill_id TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		data JSONB NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_items (
		pharmacy_id TEXT NOT NULL,
		ndc TEXT NOT NULL,
		version BIGINT NOT NULL,
		data JSONB NOT NULL,
		PRIMARY KEY (pharmacy_id, ndc)
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id TEXT PRIMARY KEY,
		pharmacy_id TEXT NOT NULL,
		ndc TEXT NOT NULL,
		seq BIGSERIAL,
		data JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_transactions_key_idx ON inventory_transactions (pharmacy_id, ndc, seq)`,

	`CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		resource TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		data JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_entries_resource_idx ON audit_entries (resource, resource_id, seq)`,
}

func concurrentMutationErr() error {
	return errtax.New(errtax.CodeConcurrentMutation, "version mismatch").WithField("version")
}

// upsertVersioned inserts a new row when expectedVersion is 0, or updates an
// existing one guarded by a WHERE version = expectedVersion clause,
// returning concurrentMutationErr() when the clause matches no row. When
// expectedVersion is 0 and the insert fails (the row already exists), it
// falls back to the guarded update.
func (s *Store) upsertVersioned(ctx context.Context, insertQuery, updateQuery string, expectedVersion int64, insertArgs, updateArgs []any) error {
	if expectedVersion == 0 {
		if _, err := s.db.ExecContext(ctx, insertQuery, insertArgs...); err == nil {
			return nil
		}
	}
	res, err := s.db.ExecContext(ctx, updateQuery, updateArgs...)
	if err != nil {
		return fmt.Errorf("postgres: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return concurrentMutationErr()
	}
	return nil
}

// --- patients ---

func (s *Store) GetPatient(ctx context.Context, id string) (*model.Patient, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM patients WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get patient: %w", err)
	}
	var p model.Patient
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("postgres: decode patient: %w", err)
	}
	return &p, nil
}

func (s *Store) FindPatientByMRNDOB(ctx context.Context, mrn string, dob time.Time) (*model.Patient, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM patients WHERE mrn = $1 AND dob = $2`, mrn, dob).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find patient: %w", err)
	}
	var p model.Patient
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("postgres: decode patient: %w", err)
	}
	return &p, nil
}

func (s *Store) PutPatient(ctx context.Context, p *model.Patient, expectedVersion int64) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: encode patient: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO patients (id, mrn, dob, version, data) VALUES ($1, $2, $3, $4, $5)`,
		`UPDATE patients SET mrn = $2, dob = $3, version = $4, data = $5 WHERE id = $1 AND version = $6`,
		expectedVersion,
		[]any{p.ID, p.MRN, p.DOB, p.Version, raw},
		[]any{p.ID, p.MRN, p.DOB, p.Version, raw, expectedVersion},
	)
}

// --- prescriptions ---

func (s *Store) GetPrescription(ctx context.Context, id string) (*model.Prescription, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM prescriptions WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get prescription: %w", err)
	}
	var rx model.Prescription
	if err := json.Unmarshal(raw, &rx); err != nil {
		return nil, fmt.Errorf("postgres: decode prescription: %w", err)
	}
	return &rx, nil
}

func (s *Store) PutPrescription(ctx context.Context, rx *model.Prescription, expectedVersion int64) error {
	raw, err := json.Marshal(rx)
	if err != nil {
		return fmt.Errorf("postgres: encode prescription: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO prescriptions (id, prescriber_id, written_date, version, data) VALUES ($1, $2, $3, $4, $5)`,
		`UPDATE prescriptions SET prescriber_id = $2, written_date = $3, version = $4, data = $5 WHERE id = $1 AND version = $6`,
		expectedVersion,
		[]any{rx.ID, rx.PrescriberID, rx.WrittenDate, rx.Version, raw},
		[]any{rx.ID, rx.PrescriberID, rx.WrittenDate, rx.Version, raw, expectedVersion},
	)
}

func (s *Store) ListRecentPrescriptionsByPrescriber(ctx context.Context, prescriberID string, since time.Time) ([]*model.Prescription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM prescriptions WHERE prescriber_id = $1 AND written_date >= $2 ORDER BY written_date`,
		prescriberID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prescriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Prescription
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan prescription: %w", err)
		}
		var rx model.Prescription
		if err := json.Unmarshal(raw, &rx); err != nil {
			return nil, fmt.Errorf("postgres: decode prescription: %w", err)
		}
		out = append(out, &rx)
	}
	return out, rows.Err()
}

// --- fills ---

func (s *Store) GetFill(ctx context.Context, id string) (*model.Fill, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM fills WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get fill: %w", err)
	}
	var f model.Fill
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("postgres: decode fill: %w", err)
	}
	return &f, nil
}

func (s *Store) ListFills(ctx context.Context, prescriptionID string) ([]*model.Fill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM fills WHERE prescription_id = $1 ORDER BY fill_number`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Fill
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		var f model.Fill
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("postgres: decode fill: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *Store) PutFill(ctx context.Context, f *model.Fill, expectedVersion int64) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("postgres: encode fill: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO fills (id, prescription_id, fill_number, version, data) VALUES ($1, $2, $3, $4, $5)`,
		`UPDATE fills SET prescription_id = $2, fill_number = $3, version = $4, data = $5 WHERE id = $1 AND version = $6`,
		expectedVersion,
		[]any{f.ID, f.PrescriptionID, f.FillNumber, f.Version, raw},
		[]any{f.ID, f.PrescriptionID, f.FillNumber, f.Version, raw, expectedVersion},
	)
}

// --- claims ---

func (s *Store) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM claims WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get claim: %w", err)
	}
	var c model.Claim
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("postgres: decode claim: %w", err)
	}
	return &c, nil
}

func (s *Store) ListClaims(ctx context.Context, fillID string) ([]*model.Claim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM claims WHERE fill_id = $1 ORDER BY attempt_no`, fillID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Claim
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan claim: %w", err)
		}
		var c model.Claim
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("postgres: decode claim: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) PutClaim(ctx context.Context, c *model.Claim, expectedVersion int64) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("postgres: encode claim: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO claims (id, fill_id, attempt_no, version, data) VALUES ($1, $2, $3, $4, $5)`,
		`UPDATE claims SET fill_id = $2, attempt_no = $3, version = $4, data = $5 WHERE id = $1 AND version = $6`,
		expectedVersion,
		[]any{c.ID, c.FillID, c.AttemptNo, c.Version, raw},
		[]any{c.ID, c.FillID, c.AttemptNo, c.Version, raw, expectedVersion},
	)
}

// --- verification sessions ---

func (s *Store) GetVerificationSession(ctx context.Context, fillID string) (*model.VerificationSession, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM verification_sessions WHERE fill_id = $1`, fillID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get verification session: %w", err)
	}
	var vs model.VerificationSession
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, fmt.Errorf("postgres: decode verification session: %w", err)
	}
	return &vs, nil
}

func (s *Store) PutVerificationSession(ctx context.Context, vs *model.VerificationSession, expectedVersion int64) error {
	raw, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("postgres: encode verification session: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO verification_sessions (fill_id, version, data) VALUES ($1, $2, $3)`,
		`UPDATE verification_sessions SET version = $2, data = $3 WHERE fill_id = $1 AND version = $4`,
		expectedVersion,
		[]any{vs.FillID, vs.Version, raw},
		[]any{vs.FillID, vs.Version, raw, expectedVersion},
	)
}

// --- inventory ---

func (s *Store) GetInventoryItem(ctx context.Context, pharmacyID, ndc string) (*model.InventoryItem, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM inventory_items WHERE pharmacy_id = $1 AND ndc = $2`, pharmacyID, ndc).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get inventory item: %w", err)
	}
	var item model.InventoryItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("postgres: decode inventory item: %w", err)
	}
	return &item, nil
}

func (s *Store) PutInventoryItem(ctx context.Context, item *model.InventoryItem, expectedVersion int64) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("postgres: encode inventory item: %w", err)
	}
	return s.upsertVersioned(ctx,
		`INSERT INTO inventory_items (pharmacy_id, ndc, version, data) VALUES ($1, $2, $3, $4)`,
		`UPDATE inventory_items SET version = $3, data = $4 WHERE pharmacy_id = $1 AND ndc = $2 AND version = $5`,
		expectedVersion,
		[]any{item.PharmacyID, item.NDC, item.Version, raw},
		[]any{item.PharmacyID, item.NDC, item.Version, raw, expectedVersion},
	)
}

func (s *Store) AppendInventoryTransaction(ctx context.Context, tx model.InventoryTransaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("postgres: encode inventory transaction: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO inventory_transactions (id, pharmacy_id, ndc, data) VALUES ($1, $2, $3, $4)`,
		tx.ID, tx.PharmacyID, tx.NDC, raw)
	if err != nil {
		return fmt.Errorf("postgres: append inventory transaction: %w", err)
	}
	return nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, pharmacyID, ndc string) ([]model.InventoryTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM inventory_transactions WHERE pharmacy_id = $1 AND ndc = $2 ORDER BY seq`,
		pharmacyID, ndc)
	if err != nil {
		return nil, fmt.Errorf("postgres: list inventory transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.InventoryTransaction
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan inventory transaction: %w", err)
		}
		var tx model.InventoryTransaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, fmt.Errorf("postgres: decode inventory transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// --- audit ---

func (s *Store) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("postgres: encode audit entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, resource, resource_id, data) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.Resource, entry.ResourceID, raw)
	if err != nil {
		return fmt.Errorf("postgres: append audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns every entry with seq > since, in ascending
// sequence order, for cmd/dispensectl's audit-export.
func (s *Store) ListAuditEntries(ctx context.Context, since uint64) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, data FROM audit_entries WHERE seq > $1 ORDER BY seq ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var seq uint64
		var raw []byte
		if err := rows.Scan(&seq, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		var e model.AuditEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("postgres: decode audit entry: %w", err)
		}
		e.Sequence = seq
		out = append(out, e)
	}
	return out, rows.Err()
}
