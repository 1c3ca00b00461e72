package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	limits Limits
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, limits Limits) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers, which is what UpdateDraft's
	// read-modify-write needs from SQLite.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, limits: limits.withDefaults()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	company_count INTEGER NOT NULL,
	meta       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_results (
	batch_id TEXT NOT NULL,
	idx      INTEGER NOT NULL,
	result   TEXT NOT NULL,
	PRIMARY KEY (batch_id, idx)
);

CREATE TABLE IF NOT EXISTS saved_drafts (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	id      TEXT NOT NULL UNIQUE,
	payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS saved_companies (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	id      TEXT NOT NULL UNIQUE,
	payload TEXT NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBatch writes the batch and all of its results in one transaction and
// evicts batches beyond the cap.
func (s *SQLiteStore) SaveBatch(ctx context.Context, b *model.BatchResult) error {
	meta, err := marshalMeta(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal batch")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (id, created_at, company_count, meta) VALUES (?, ?, ?, ?)`,
		b.ID, b.CreatedAt.UTC().Format(time.RFC3339Nano), len(b.Results), meta,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert batch %s", b.ID)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO batch_results (batch_id, idx, result) VALUES (?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare result insert")
	}
	defer stmt.Close() //nolint:errcheck
	for i, r := range b.Results {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal result %d", i)
		}
		if _, err := stmt.ExecContext(ctx, b.ID, i, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: insert result %d", i)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM batches WHERE seq NOT IN (SELECT seq FROM batches ORDER BY seq DESC LIMIT ?)`,
		s.limits.MaxBatches,
	); err != nil {
		return eris.Wrap(err, "sqlite: evict batches")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM batch_results WHERE batch_id NOT IN (SELECT id FROM batches)`,
	); err != nil {
		return eris.Wrap(err, "sqlite: evict results")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit batch")
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.BatchResult, error) {
	var meta string
	err := s.db.QueryRowContext(ctx, `SELECT meta FROM batches WHERE id = ?`, id).Scan(&meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, batchNotFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch %s", id)
	}

	var b model.BatchResult
	if err := json.Unmarshal([]byte(meta), &b); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal batch")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT result FROM batch_results WHERE batch_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get results %s", id)
	}
	defer rows.Close() //nolint:errcheck

	b.Results = []model.CompanyResult{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		var r model.CompanyResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
		b.Results = append(b.Results, r)
	}
	return &b, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

func (s *SQLiteStore) ListBatches(ctx context.Context) ([]model.BatchSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, company_count FROM batches ORDER BY seq DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.BatchSummary{}
	for rows.Next() {
		var (
			sum     model.BatchSummary
			created string
		)
		if err := rows.Scan(&sum.ID, &created, &sum.CompanyCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		sum.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate batches")
}

func (s *SQLiteStore) DeleteBatch(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete batch %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return batchNotFound(id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batch_results WHERE batch_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete results %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func (s *SQLiteStore) UpdateDraft(ctx context.Context, target model.RefinementTarget, mutate Mutation) (model.DraftVariant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT result FROM batch_results WHERE batch_id = ? AND idx = ?`,
		target.BatchID, target.CompanyIndex,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DraftVariant{}, s.missing(ctx, tx, target)
	}
	if err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "sqlite: load result")
	}

	var r model.CompanyResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "sqlite: unmarshal result")
	}
	updated, err := applyMutation(&r, target, mutate)
	if err != nil {
		return model.DraftVariant{}, err
	}

	out, err := json.Marshal(r)
	if err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "sqlite: marshal result")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE batch_results SET result = ? WHERE batch_id = ? AND idx = ?`,
		string(out), target.BatchID, target.CompanyIndex,
	); err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "sqlite: update result")
	}
	if err := tx.Commit(); err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "sqlite: commit update")
	}
	return updated, nil
}

// missing distinguishes an unknown batch from an out-of-range company index.
func (s *SQLiteStore) missing(ctx context.Context, tx *sql.Tx, target model.RefinementTarget) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM batches WHERE id = ?`, target.BatchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return batchNotFound(target.BatchID)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: check batch")
	}
	return companyNotFound(target)
}

func (s *SQLiteStore) SaveDraft(ctx context.Context, companyName string, v model.DraftVariant) (model.SavedDraft, error) {
	d := model.SavedDraft{ID: uuid.NewString(), CompanyName: companyName, Variant: v, SavedAt: time.Now().UTC()}
	if err := s.insertSaved(ctx, "saved_drafts", d.ID, d, s.limits.MaxDrafts); err != nil {
		return model.SavedDraft{}, err
	}
	return d, nil
}

func (s *SQLiteStore) ListDrafts(ctx context.Context) ([]model.SavedDraft, error) {
	out := []model.SavedDraft{}
	err := s.listSaved(ctx, "saved_drafts", func(data []byte) error {
		var d model.SavedDraft
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context, id string) error {
	return s.deleteSaved(ctx, "saved_drafts", "draft", id)
}

func (s *SQLiteStore) SaveCompany(ctx context.Context, company model.CompanyRecord, drafts model.Drafts) (model.SavedCompany, error) {
	c := model.SavedCompany{ID: uuid.NewString(), Company: company, Drafts: drafts, SavedAt: time.Now().UTC()}
	if err := s.insertSaved(ctx, "saved_companies", c.ID, c, s.limits.MaxCompanies); err != nil {
		return model.SavedCompany{}, err
	}
	return c, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.SavedCompany, error) {
	out := []model.SavedCompany{}
	err := s.listSaved(ctx, "saved_companies", func(data []byte) error {
		var c model.SavedCompany
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) DeleteCompany(ctx context.Context, id string) error {
	return s.deleteSaved(ctx, "saved_companies", "company", id)
}

// table names below are package constants, never user input.

func (s *SQLiteStore) insertSaved(ctx context.Context, table, id string, v any, limit int) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal %s", table)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (id, payload) VALUES (?, ?)`, id, string(data)); err != nil {
		return eris.Wrapf(err, "sqlite: insert %s", table)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE seq NOT IN (SELECT seq FROM `+table+` ORDER BY seq DESC LIMIT ?)`, limit,
	); err != nil {
		return eris.Wrapf(err, "sqlite: evict %s", table)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", table)
}

func (s *SQLiteStore) listSaved(ctx context.Context, table string, add func([]byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM `+table+` ORDER BY seq DESC`)
	if err != nil {
		return eris.Wrapf(err, "sqlite: list %s", table)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return eris.Wrapf(err, "sqlite: scan %s", table)
		}
		if err := add([]byte(data)); err != nil {
			return eris.Wrapf(err, "sqlite: unmarshal %s", table)
		}
	}
	return eris.Wrapf(rows.Err(), "sqlite: iterate %s", table)
}

func (s *SQLiteStore) deleteSaved(ctx context.Context, table, kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete %s", table)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return savedNotFound(kind, id)
	}
	return nil
}

// marshalMeta encodes the batch without its results, which live in their
// own rows so one company can be updated at a time.
func marshalMeta(b *model.BatchResult) (string, error) {
	meta := *b
	meta.Results = nil
	data, err := json.Marshal(meta)
	return string(data), err
}
