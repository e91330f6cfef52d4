package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clearline/invoice-agent/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS outcomes (
	id             TEXT PRIMARY KEY,
	source         TEXT,
	invoice_number TEXT NOT NULL,
	vendor_id      TEXT,
	amount         REAL NOT NULL DEFAULT 0,
	disposition    TEXT NOT NULL,
	validation     TEXT NOT NULL,
	score          TEXT,
	enrichment     TEXT,
	posting_ref    TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_outcomes_disposition ON outcomes(disposition);
CREATE INDEX IF NOT EXISTS idx_outcomes_vendor ON outcomes(vendor_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_invoice ON outcomes(invoice_number);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordOutcome(ctx context.Context, outcome *model.PipelineOutcome) error {
	if outcome.ID == "" {
		outcome.ID = uuid.New().String()
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}

	validationJSON, err := json.Marshal(outcome.Validation)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal validation")
	}
	scoreJSON, err := marshalNullable(outcome.Score)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal score")
	}
	enrichJSON, err := marshalNullable(outcome.Enrichment)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (id, source, invoice_number, vendor_id, amount, disposition, validation, score, enrichment, posting_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.ID, outcome.Source, outcome.InvoiceNumber, outcome.VendorID, outcome.Amount,
		string(outcome.Disposition), string(validationJSON), scoreJSON, enrichJSON,
		outcome.PostingRef, outcome.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert outcome %s", outcome.InvoiceNumber)
	}
	return nil
}

func (s *SQLiteStore) GetOutcome(ctx context.Context, id string) (*model.PipelineOutcome, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, invoice_number, vendor_id, amount, disposition, validation, score, enrichment, posting_ref, created_at
		 FROM outcomes WHERE id = ?`,
		id,
	)
	return scanOutcome(row)
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.PipelineOutcome, error) {
	query := `SELECT id, source, invoice_number, vendor_id, amount, disposition, validation, score, enrichment, posting_ref, created_at
	          FROM outcomes WHERE 1=1`
	var args []any

	if filter.Disposition != "" {
		query += ` AND disposition = ?`
		args = append(args, string(filter.Disposition))
	}
	if filter.VendorID != "" {
		query += ` AND vendor_id = ?`
		args = append(args, filter.VendorID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close()

	var out []model.PipelineOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate outcomes")
}

func (s *SQLiteStore) Summarize(ctx context.Context) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT disposition, COUNT(*) FROM outcomes GROUP BY disposition`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summarize")
	}
	defer rows.Close()

	sum := &Summary{}
	for rows.Next() {
		var disposition string
		var n int
		if err := rows.Scan(&disposition, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		sum.Total += n
		switch model.Disposition(disposition) {
		case model.DispositionPosted:
			sum.Posted = n
		case model.DispositionRejected:
			sum.Rejected = n
		}
	}
	return sum, eris.Wrap(rows.Err(), "sqlite: iterate summary")
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (*model.PipelineOutcome, error) {
	var (
		o              model.PipelineOutcome
		disposition    string
		validationJSON string
		scoreJSON      sql.NullString
		enrichJSON     sql.NullString
		source         sql.NullString
		vendorID       sql.NullString
		postingRef     sql.NullString
	)
	err := row.Scan(&o.ID, &source, &o.InvoiceNumber, &vendorID, &o.Amount,
		&disposition, &validationJSON, &scoreJSON, &enrichJSON, &postingRef, &o.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan outcome")
	}

	o.Source = source.String
	o.VendorID = vendorID.String
	o.PostingRef = postingRef.String
	o.Disposition = model.Disposition(disposition)

	if err := json.Unmarshal([]byte(validationJSON), &o.Validation); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal validation")
	}
	if scoreJSON.Valid && scoreJSON.String != "" {
		o.Score = &model.ScoreResult{}
		if err := json.Unmarshal([]byte(scoreJSON.String), o.Score); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal score")
		}
	}
	if enrichJSON.Valid && enrichJSON.String != "" {
		o.Enrichment = &model.Enrichment{}
		if err := json.Unmarshal([]byte(enrichJSON.String), o.Enrichment); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal enrichment")
		}
	}
	return &o, nil
}

// marshalNullable marshals v to JSON, mapping nil pointers to SQL NULL.
func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case *model.ScoreResult:
		if t == nil {
			return nil, nil
		}
	case *model.Enrichment:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
