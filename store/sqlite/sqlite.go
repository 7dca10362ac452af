/*
Package sqlite provides a SQLite-backed implementation of stock.Store.

PURPOSE:
  Implements ingredient, batch, and consumption-record persistence using
  SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The consumption_records table sees INSERTs only. No UPDATE or DELETE
  statement exists for it anywhere in this package; permanent ingredient
  deletion is gated upstream on a zero record count, so the batch cascade
  can never erase history.

KEY TABLES:
  ingredients:          Aggregates with denormalized totals and archive flags
  batches:              Dated lots with per-batch remaining quantities
  consumption_records:  Immutable drain ledger

INDEXES:
  - idx_ingredients_active_name: UNIQUE on normalized name among
    non-archived rows - enforces the restore/name-conflict rule
  - batch_number UNIQUE: generated numbers must never collide
  - idx_batches_ingredient / idx_records_ingredient: hot lookup paths

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL mode for better
  concurrency and crash recovery. The per-ingredient locks in the stock
  package serialize logical mutations above this layer.

USAGE:
  st, err := sqlite.New("./data/stockroom.db")   // or ":memory:"
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - stock/store.go: Interface definition
  - stock/engine.go: The mutation flows that call CommitStockIn/CommitConsumption
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/brewkeep/stockroom/stock"
)

// Store implements stock.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingredients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		category TEXT NOT NULL,
		base_unit TEXT NOT NULL,
		alert_threshold TEXT NOT NULL DEFAULT '0',
		quantity TEXT NOT NULL DEFAULT '0',
		archived INTEGER NOT NULL DEFAULT 0,
		archived_at TEXT,
		created_at TEXT NOT NULL
	);

	-- Uniqueness applies to the active side of the soft-delete fence only:
	-- archiving frees the name, restoring re-contends for it.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ingredients_active_name
		ON ingredients(normalized_name) WHERE archived = 0;

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		ingredient_id TEXT NOT NULL REFERENCES ingredients(id) ON DELETE CASCADE,
		batch_number TEXT NOT NULL UNIQUE,
		original_quantity TEXT NOT NULL,
		current_quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		entry_quantity TEXT NOT NULL,
		entry_unit TEXT NOT NULL,
		stock_in_date TEXT NOT NULL,
		expiration_date TEXT,
		has_expiration INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batches_ingredient
		ON batches(ingredient_id, status);
	CREATE INDEX IF NOT EXISTS idx_batches_expiration
		ON batches(expiration_date) WHERE expiration_date IS NOT NULL;

	-- Append-only drain ledger.
	CREATE TABLE IF NOT EXISTS consumption_records (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		ingredient_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		reason TEXT NOT NULL,
		related_transaction_id TEXT,
		recorded_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_ingredient
		ON consumption_records(ingredient_id);
	CREATE INDEX IF NOT EXISTS idx_records_batch
		ON consumption_records(batch_id);
	CREATE INDEX IF NOT EXISTS idx_records_reference
		ON consumption_records(related_transaction_id)
		WHERE related_transaction_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INGREDIENTS
// =============================================================================

func (s *Store) SaveIngredient(ctx context.Context, ing stock.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveIngredient(ctx, s.db, ing)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveIngredient(ctx context.Context, db execer, ing stock.Ingredient) error {
	query := `
		INSERT INTO ingredients
		(id, name, normalized_name, category, base_unit, alert_threshold, quantity, archived, archived_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			normalized_name = excluded.normalized_name,
			category = excluded.category,
			base_unit = excluded.base_unit,
			alert_threshold = excluded.alert_threshold,
			quantity = excluded.quantity,
			archived = excluded.archived,
			archived_at = excluded.archived_at
	`
	createdAt := ing.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, query,
		string(ing.ID),
		ing.Name,
		stock.NormalizeName(ing.Name),
		string(ing.Category),
		string(ing.BaseUnit),
		ing.AlertThreshold.Value.String(),
		ing.Quantity.Value.String(),
		boolToInt(ing.Archived),
		nullTime(ing.ArchivedAt),
		createdAt.Format(time.RFC3339),
	)
	if err != nil && isUniqueConstraintError(err) {
		return &stock.NameConflictError{Name: ing.Name}
	}
	return err
}

// Derived fields come from aggregate subqueries so a read always reflects
// the batch table, whatever the write path did.
const ingredientColumns = `i.id, i.name, i.category, i.base_unit, i.alert_threshold, i.quantity,
	i.archived, i.archived_at, i.created_at,
	(SELECT COUNT(*) FROM batches b WHERE b.ingredient_id = i.id AND b.status = 'active'),
	(SELECT MIN(b.expiration_date) FROM batches b
		WHERE b.ingredient_id = i.id AND b.status = 'active' AND b.expiration_date IS NOT NULL)`

func (s *Store) GetIngredient(ctx context.Context, id stock.IngredientID) (*stock.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients i WHERE i.id = ?`, string(id))
	ing, err := scanIngredient(row)
	if err == sql.ErrNoRows {
		return nil, stock.ErrIngredientNotFound
	}
	if err != nil {
		return nil, err
	}
	return ing, nil
}

func (s *Store) ListIngredients(ctx context.Context, archived bool) ([]stock.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients i WHERE i.archived = ? ORDER BY i.name`,
		boolToInt(archived))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ing)
	}
	return out, rows.Err()
}

func (s *Store) FindActiveByName(ctx context.Context, normalizedName string) (*stock.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients i WHERE i.normalized_name = ? AND i.archived = 0`,
		normalizedName)
	ing, err := scanIngredient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ing, nil
}

func (s *Store) DeleteIngredient(ctx context.Context, id stock.IngredientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE ingredient_id = ?`, string(id)); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM ingredients WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stock.ErrIngredientNotFound
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIngredient(row rowScanner) (*stock.Ingredient, error) {
	var (
		id, name, category, baseUnit string
		threshold, quantity          string
		archived                     int
		archivedAt, nextExpiration   sql.NullString
		createdAt                    string
		activeBatches                int
	)
	if err := row.Scan(&id, &name, &category, &baseUnit, &threshold, &quantity,
		&archived, &archivedAt, &createdAt, &activeBatches, &nextExpiration); err != nil {
		return nil, err
	}

	unit := stock.Unit(baseUnit)
	ing := &stock.Ingredient{
		ID:               stock.IngredientID(id),
		Name:             name,
		Category:         stock.Category(category),
		BaseUnit:         unit,
		AlertThreshold:   stock.Quantity{Value: parseAmount(threshold), Unit: unit},
		Quantity:         stock.Quantity{Value: parseAmount(quantity), Unit: unit},
		Archived:         archived != 0,
		ActiveBatchCount: activeBatches,
	}
	ing.ArchivedAt = parseNullTime(archivedAt)
	ing.NextExpiration = parseNullTime(nextExpiration)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		ing.CreatedAt = t
	}
	return ing, nil
}

// =============================================================================
// BATCHES
// =============================================================================

func (s *Store) ListBatches(ctx context.Context, id stock.IngredientID, includeExpired bool) ([]stock.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, ingredient_id, batch_number, original_quantity, current_quantity, unit,
		       entry_quantity, entry_unit, stock_in_date, expiration_date, has_expiration, status, created_at
		FROM batches WHERE ingredient_id = ?`
	if !includeExpired {
		query += ` AND status != 'expired'`
	}
	query += ` ORDER BY stock_in_date`

	rows, err := s.db.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBatch(row rowScanner) (*stock.Batch, error) {
	var (
		id, ingredientID, batchNumber string
		original, current, unit       string
		entryQuantity, entryUnit      string
		stockInDate                   string
		expirationDate                sql.NullString
		hasExpiration                 int
		status, createdAt             string
	)
	if err := row.Scan(&id, &ingredientID, &batchNumber, &original, &current, &unit,
		&entryQuantity, &entryUnit, &stockInDate, &expirationDate, &hasExpiration, &status, &createdAt); err != nil {
		return nil, err
	}

	u := stock.Unit(unit)
	b := &stock.Batch{
		ID:               stock.BatchID(id),
		IngredientID:     stock.IngredientID(ingredientID),
		BatchNumber:      batchNumber,
		OriginalQuantity: stock.Quantity{Value: parseAmount(original), Unit: u},
		CurrentQuantity:  stock.Quantity{Value: parseAmount(current), Unit: u},
		EntryQuantity:    stock.Quantity{Value: parseAmount(entryQuantity), Unit: stock.Unit(entryUnit)},
		HasExpiration:    hasExpiration != 0,
		Status:           stock.BatchStatus(status),
	}
	if t, err := time.Parse(time.RFC3339, stockInDate); err == nil {
		b.StockInDate = t
	}
	b.ExpirationDate = parseNullTime(expirationDate)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		b.CreatedAt = t
	}
	return b, nil
}

func insertBatch(ctx context.Context, db execer, b stock.Batch) error {
	query := `
		INSERT INTO batches
		(id, ingredient_id, batch_number, original_quantity, current_quantity, unit,
		 entry_quantity, entry_unit, stock_in_date, expiration_date, has_expiration, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(b.ID),
		string(b.IngredientID),
		b.BatchNumber,
		b.OriginalQuantity.Value.String(),
		b.CurrentQuantity.Value.String(),
		string(b.CurrentQuantity.Unit),
		b.EntryQuantity.Value.String(),
		string(b.EntryQuantity.Unit),
		b.StockInDate.UTC().Format(time.RFC3339),
		nullTime(b.ExpirationDate),
		boolToInt(b.HasExpiration),
		string(b.Status),
		b.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil && isUniqueConstraintError(err) {
		return stock.ErrDuplicateBatchNumber
	}
	return err
}

func updateBatch(ctx context.Context, db execer, b stock.Batch) error {
	_, err := db.ExecContext(ctx,
		`UPDATE batches SET current_quantity = ?, status = ? WHERE id = ?`,
		b.CurrentQuantity.Value.String(),
		string(b.Status),
		string(b.ID),
	)
	return err
}

// =============================================================================
// CONSUMPTION RECORDS (append-only)
// =============================================================================

func insertRecord(ctx context.Context, db execer, r stock.ConsumptionRecord) error {
	query := `
		INSERT INTO consumption_records
		(id, batch_id, ingredient_id, quantity, unit, reason, related_transaction_id, recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(r.ID),
		string(r.BatchID),
		string(r.IngredientID),
		r.QuantityConsumed.Value.String(),
		string(r.QuantityConsumed.Unit),
		string(r.Reason),
		nullString(r.RelatedTransactionID),
		nullString(r.RecordedBy),
		r.Timestamp.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListRecords(ctx context.Context, id stock.IngredientID) ([]stock.ConsumptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, ingredient_id, quantity, unit, reason, related_transaction_id, recorded_by, created_at
		FROM consumption_records WHERE ingredient_id = ? ORDER BY created_at DESC, id DESC`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.ConsumptionRecord
	for rows.Next() {
		var (
			rid, batchID, ingredientID, quantity, unit, reason string
			relatedTx, recordedBy                              sql.NullString
			createdAt                                          string
		)
		if err := rows.Scan(&rid, &batchID, &ingredientID, &quantity, &unit, &reason,
			&relatedTx, &recordedBy, &createdAt); err != nil {
			return nil, err
		}
		r := stock.ConsumptionRecord{
			ID:                   stock.RecordID(rid),
			BatchID:              stock.BatchID(batchID),
			IngredientID:         stock.IngredientID(ingredientID),
			QuantityConsumed:     stock.Quantity{Value: parseAmount(quantity), Unit: stock.Unit(unit)},
			Reason:               stock.ConsumptionReason(reason),
			RelatedTransactionID: relatedTx.String,
			RecordedBy:           recordedBy.String,
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.Timestamp = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CountRecords(ctx context.Context, id stock.IngredientID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM consumption_records WHERE ingredient_id = ?`, string(id)).Scan(&n)
	return n, err
}

// =============================================================================
// ATOMIC MUTATION SETS
// =============================================================================

func (s *Store) CommitStockIn(ctx context.Context, batches []stock.Batch, ingredients []stock.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, b := range batches {
		if err := insertBatch(ctx, tx, b); err != nil {
			return err
		}
	}
	for _, ing := range ingredients {
		if err := saveIngredient(ctx, tx, ing); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CommitConsumption(ctx context.Context, commit stock.ConsumptionCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, b := range commit.Batches {
		if err := updateBatch(ctx, tx, b); err != nil {
			return err
		}
	}
	for _, r := range commit.Records {
		if err := insertRecord(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, ing := range commit.Ingredients {
		if err := saveIngredient(ctx, tx, ing); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
