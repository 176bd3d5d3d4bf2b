package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS privacy_ledger_entries (
	id               UUID PRIMARY KEY,
	patient_id       TEXT NOT NULL,
	pool_id          TEXT NOT NULL,
	version          BIGINT NOT NULL CHECK (version > 0),
	total_epsilon    DOUBLE PRECISION NOT NULL,
	consumed_epsilon DOUBLE PRECISION NOT NULL CHECK (consumed_epsilon <= total_epsilon),
	total_delta      DOUBLE PRECISION NOT NULL,
	consumed_delta   DOUBLE PRECISION NOT NULL CHECK (consumed_delta <= total_delta),
	query_count      INTEGER NOT NULL,
	epsilon_history  DOUBLE PRECISION[] NOT NULL,
	delta_history    DOUBLE PRECISION[] NOT NULL,
	composition_kind TEXT NOT NULL,
	delta_prime      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL,
	last_updated     TIMESTAMPTZ NOT NULL,
	period_start     TIMESTAMPTZ NOT NULL,
	period_end       TIMESTAMPTZ,
	auto_renew       BOOLEAN NOT NULL,
	UNIQUE (patient_id, pool_id, version)
)`

const selectColumns = `id, patient_id, pool_id, version, total_epsilon, consumed_epsilon,
	total_delta, consumed_delta, query_count, epsilon_history, delta_history,
	composition_kind, delta_prime, created_at, last_updated, period_start,
	period_end, auto_renew`

// PostgresStore persists the ledger in one append-only table. The unique
// (patient_id, pool_id, version) constraint is the conflict detector when
// several processes share the database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ledger table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, patientID id.PatientID, poolID id.PoolID) (*models.LedgerEntry, error) {
	start := time.Now()
	defer observeLedgerOp("postgres", "latest", start)

	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM privacy_ledger_entries
		WHERE patient_id = $1 AND pool_id = $2
		ORDER BY version DESC
		LIMIT 1`, patientID.String(), poolID.String())
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger %s/%s: %w", patientID, poolID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read latest ledger entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) History(ctx context.Context, patientID id.PatientID, poolID id.PoolID) ([]*models.LedgerEntry, error) {
	start := time.Now()
	defer observeLedgerOp("postgres", "history", start)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM privacy_ledger_entries
		WHERE patient_id = $1 AND pool_id = $2
		ORDER BY version ASC`, patientID.String(), poolID.String())
	if err != nil {
		return nil, fmt.Errorf("read ledger history: %w", err)
	}
	defer rows.Close()

	var out []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger history: %w", err)
	}
	return out, nil
}

// AppendBatch writes the batch in one SQL transaction.
func (s *PostgresStore) AppendBatch(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	start := time.Now()
	defer observeLedgerOp("postgres", "append", start)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger append: %w", err)
	}
	if err := s.appendIn(ctx, tx, entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateWriteErr(err, "commit ledger append")
	}
	return nil
}

func (s *PostgresStore) appendIn(ctx context.Context, tx *sql.Tx, entries []*models.LedgerEntry) error {
	err := checkBatch(entries, func(k lineageKey) (uint64, error) {
		var v uint64
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(version), 0)
			FROM privacy_ledger_entries
			WHERE patient_id = $1 AND pool_id = $2`, k.patientID.String(), k.poolID.String()).Scan(&v)
		if err != nil {
			return 0, fmt.Errorf("read ledger head: %w", err)
		}
		return v, nil
	})
	if err != nil {
		return err
	}

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO privacy_ledger_entries (`+selectColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			e.ID, e.PatientID.String(), e.PoolID.String(), e.Version,
			e.TotalEpsilon, e.ConsumedEpsilon, e.TotalDelta, e.ConsumedDelta,
			e.QueryCount, pq.Array(e.EpsilonHistory), pq.Array(e.DeltaHistory),
			string(e.Composition.Kind), e.Composition.DeltaPrime,
			e.CreatedAt, e.LastUpdated, e.PeriodStart, nullTime(e.PeriodEnd), e.AutoRenew,
		)
		if err != nil {
			return translateWriteErr(err, "insert ledger entry")
		}
	}
	return nil
}

func translateWriteErr(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var (
		e         models.LedgerEntry
		entryID   uuid.UUID
		patientID string
		poolID    string
		kind      string
		periodEnd sql.NullTime
	)
	err := row.Scan(
		&entryID, &patientID, &poolID, &e.Version,
		&e.TotalEpsilon, &e.ConsumedEpsilon, &e.TotalDelta, &e.ConsumedDelta,
		&e.QueryCount, pq.Array(&e.EpsilonHistory), pq.Array(&e.DeltaHistory),
		&kind, &e.Composition.DeltaPrime,
		&e.CreatedAt, &e.LastUpdated, &e.PeriodStart, &periodEnd, &e.AutoRenew,
	)
	if err != nil {
		return nil, err
	}
	e.ID = entryID
	e.PatientID = id.PatientID(patientID)
	e.PoolID = id.PoolID(poolID)
	e.Composition.Kind = models.CompositionKind(kind)
	if e.EpsilonHistory == nil {
		e.EpsilonHistory = []float64{}
	}
	if e.DeltaHistory == nil {
		e.DeltaHistory = []float64{}
	}
	if periodEnd.Valid {
		end := periodEnd.Time
		e.PeriodEnd = &end
	}
	return &e, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
