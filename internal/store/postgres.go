package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clearline/invoice-agent/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS outcomes (
	id             TEXT PRIMARY KEY,
	source         TEXT,
	invoice_number TEXT NOT NULL,
	vendor_id      TEXT,
	amount         DOUBLE PRECISION NOT NULL DEFAULT 0,
	disposition    TEXT NOT NULL,
	validation     JSONB NOT NULL,
	score          JSONB,
	enrichment     JSONB,
	posting_ref    TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_outcomes_disposition ON outcomes(disposition);
CREATE INDEX IF NOT EXISTS idx_outcomes_vendor ON outcomes(vendor_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_invoice ON outcomes(invoice_number);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, outcome *model.PipelineOutcome) error {
	if outcome.ID == "" {
		outcome.ID = uuid.New().String()
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}

	validationJSON, err := json.Marshal(outcome.Validation)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal validation")
	}
	scoreJSON, err := marshalNullable(outcome.Score)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal score")
	}
	enrichJSON, err := marshalNullable(outcome.Enrichment)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO outcomes (id, source, invoice_number, vendor_id, amount, disposition, validation, score, enrichment, posting_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		outcome.ID, outcome.Source, outcome.InvoiceNumber, outcome.VendorID, outcome.Amount,
		string(outcome.Disposition), string(validationJSON), scoreJSON, enrichJSON,
		outcome.PostingRef, outcome.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert outcome %s", outcome.InvoiceNumber)
	}
	return nil
}

func (s *PostgresStore) GetOutcome(ctx context.Context, id string) (*model.PipelineOutcome, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, invoice_number, vendor_id, amount, disposition, validation, score, enrichment, posting_ref, created_at
		 FROM outcomes WHERE id = $1`,
		id,
	)
	return scanOutcomePG(row)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.PipelineOutcome, error) {
	query := `SELECT id, source, invoice_number, vendor_id, amount, disposition, validation, score, enrichment, posting_ref, created_at
	          FROM outcomes WHERE 1=1`
	var args []any

	if filter.Disposition != "" {
		args = append(args, string(filter.Disposition))
		query += ` AND disposition = $1`
	}
	if filter.VendorID != "" {
		args = append(args, filter.VendorID)
		query += ` AND vendor_id = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var out []model.PipelineOutcome
	for rows.Next() {
		o, err := scanOutcomePG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate outcomes")
}

func (s *PostgresStore) Summarize(ctx context.Context) (*Summary, error) {
	rows, err := s.pool.Query(ctx, `SELECT disposition, COUNT(*) FROM outcomes GROUP BY disposition`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summarize")
	}
	defer rows.Close()

	sum := &Summary{}
	for rows.Next() {
		var disposition string
		var n int64
		if err := rows.Scan(&disposition, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		sum.Total += int(n)
		switch model.Disposition(disposition) {
		case model.DispositionPosted:
			sum.Posted = int(n)
		case model.DispositionRejected:
			sum.Rejected = int(n)
		}
	}
	return sum, eris.Wrap(rows.Err(), "postgres: iterate summary")
}

// scanOutcomePG scans an outcome row with JSONB columns surfaced as []byte.
func scanOutcomePG(row rowScanner) (*model.PipelineOutcome, error) {
	var (
		o              model.PipelineOutcome
		disposition    string
		validationJSON []byte
		scoreJSON      []byte
		enrichJSON     []byte
		source         *string
		vendorID       *string
		postingRef     *string
	)
	err := row.Scan(&o.ID, &source, &o.InvoiceNumber, &vendorID, &o.Amount,
		&disposition, &validationJSON, &scoreJSON, &enrichJSON, &postingRef, &o.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan outcome")
	}

	if source != nil {
		o.Source = *source
	}
	if vendorID != nil {
		o.VendorID = *vendorID
	}
	if postingRef != nil {
		o.PostingRef = *postingRef
	}
	o.Disposition = model.Disposition(disposition)

	if err := json.Unmarshal(validationJSON, &o.Validation); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal validation")
	}
	if len(scoreJSON) > 0 {
		o.Score = &model.ScoreResult{}
		if err := json.Unmarshal(scoreJSON, o.Score); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal score")
		}
	}
	if len(enrichJSON) > 0 {
		o.Enrichment = &model.Enrichment{}
		if err := json.Unmarshal(enrichJSON, o.Enrichment); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal enrichment")
		}
	}
	return &o, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
