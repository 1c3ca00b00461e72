package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	limits  Limits
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, limits Limits, poolCfg *PoolConfig) (*PostgresStore, error) {
	if connString == "" {
		return nil, eris.New("postgres: database_url is required")
	}
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, limits: limits.withDefaults(), closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL,
	company_count INTEGER NOT NULL,
	meta          JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_results (
	batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	idx      INTEGER NOT NULL,
	result   JSONB NOT NULL,
	PRIMARY KEY (batch_id, idx)
);

CREATE TABLE IF NOT EXISTS saved_drafts (
	seq     BIGSERIAL PRIMARY KEY,
	id      TEXT NOT NULL UNIQUE,
	payload JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS saved_companies (
	seq     BIGSERIAL PRIMARY KEY,
	id      TEXT NOT NULL UNIQUE,
	payload JSONB NOT NULL
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveBatch inserts the batch row, COPYs its results, and evicts the oldest
// batches beyond the cap, all in one transaction.
func (s *PostgresStore) SaveBatch(ctx context.Context, b *model.BatchResult) error {
	meta, err := marshalMeta(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal batch")
	}
	rows := make([][]any, len(b.Results))
	for i, r := range b.Results {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal result %d", i)
		}
		rows[i] = []any{b.ID, i, data}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO batches (id, created_at, company_count, meta) VALUES ($1, $2, $3, $4)`,
		b.ID, b.CreatedAt.UTC(), len(b.Results), []byte(meta),
	); err != nil {
		return eris.Wrapf(err, "postgres: insert batch %s", b.ID)
	}
	if _, err := db.CopyFrom(ctx, tx, "batch_results", []string{"batch_id", "idx", "result"}, rows); err != nil {
		return eris.Wrap(err, "postgres: copy results")
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM batches WHERE seq NOT IN (SELECT seq FROM batches ORDER BY seq DESC LIMIT $1)`,
		s.limits.MaxBatches,
	); err != nil {
		return eris.Wrap(err, "postgres: evict batches")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit batch")
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.BatchResult, error) {
	var meta []byte
	err := s.pool.QueryRow(ctx, `SELECT meta FROM batches WHERE id = $1`, id).Scan(&meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, batchNotFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", id)
	}

	var b model.BatchResult
	if err := json.Unmarshal(meta, &b); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal batch")
	}

	rows, err := s.pool.Query(ctx, `SELECT result FROM batch_results WHERE batch_id = $1 ORDER BY idx`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get results %s", id)
	}
	defer rows.Close()

	b.Results = []model.CompanyResult{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		var r model.CompanyResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
		b.Results = append(b.Results, r)
	}
	return &b, eris.Wrap(rows.Err(), "postgres: iterate results")
}

func (s *PostgresStore) ListBatches(ctx context.Context) ([]model.BatchSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, created_at, company_count FROM batches ORDER BY seq DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	out := []model.BatchSummary{}
	for rows.Next() {
		var sum model.BatchSummary
		if err := rows.Scan(&sum.ID, &sum.Timestamp, &sum.CompanyCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate batches")
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete batch %s", id)
	}
	if tag.RowsAffected() == 0 {
		return batchNotFound(id)
	}
	return nil
}

// UpdateDraft locks the company row, applies mutate and writes it back.
// Concurrent refinements of sibling variants in the same company serialize
// on the row lock.
func (s *PostgresStore) UpdateDraft(ctx context.Context, target model.RefinementTarget, mutate Mutation) (model.DraftVariant, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var data []byte
	err = tx.QueryRow(ctx,
		`SELECT result FROM batch_results WHERE batch_id = $1 AND idx = $2 FOR UPDATE`,
		target.BatchID, target.CompanyIndex,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DraftVariant{}, s.missing(ctx, tx, target)
	}
	if err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "postgres: load result")
	}

	var r model.CompanyResult
	if err := json.Unmarshal(data, &r); err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "postgres: unmarshal result")
	}
	updated, err := applyMutation(&r, target, mutate)
	if err != nil {
		return model.DraftVariant{}, err
	}

	out, err := json.Marshal(r)
	if err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "postgres: marshal result")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE batch_results SET result = $1 WHERE batch_id = $2 AND idx = $3`,
		out, target.BatchID, target.CompanyIndex,
	); err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "postgres: update result")
	}
	if err := tx.Commit(ctx); err != nil {
		return model.DraftVariant{}, eris.Wrap(err, "postgres: commit update")
	}
	return updated, nil
}

func (s *PostgresStore) missing(ctx context.Context, tx pgx.Tx, target model.RefinementTarget) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batches WHERE id = $1)`, target.BatchID).Scan(&exists); err != nil {
		return eris.Wrap(err, "postgres: check batch")
	}
	if !exists {
		return batchNotFound(target.BatchID)
	}
	return companyNotFound(target)
}

func (s *PostgresStore) SaveDraft(ctx context.Context, companyName string, v model.DraftVariant) (model.SavedDraft, error) {
	d := model.SavedDraft{ID: uuid.NewString(), CompanyName: companyName, Variant: v, SavedAt: time.Now().UTC()}
	if err := s.insertSaved(ctx, "saved_drafts", d.ID, d, s.limits.MaxDrafts); err != nil {
		return model.SavedDraft{}, err
	}
	return d, nil
}

func (s *PostgresStore) ListDrafts(ctx context.Context) ([]model.SavedDraft, error) {
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

func (s *PostgresStore) DeleteDraft(ctx context.Context, id string) error {
	return s.deleteSaved(ctx, "saved_drafts", "draft", id)
}

func (s *PostgresStore) SaveCompany(ctx context.Context, company model.CompanyRecord, drafts model.Drafts) (model.SavedCompany, error) {
	c := model.SavedCompany{ID: uuid.NewString(), Company: company, Drafts: drafts, SavedAt: time.Now().UTC()}
	if err := s.insertSaved(ctx, "saved_companies", c.ID, c, s.limits.MaxCompanies); err != nil {
		return model.SavedCompany{}, err
	}
	return c, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.SavedCompany, error) {
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

func (s *PostgresStore) DeleteCompany(ctx context.Context, id string) error {
	return s.deleteSaved(ctx, "saved_companies", "company", id)
}

func (s *PostgresStore) insertSaved(ctx context.Context, table, id string, v any, limit int) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal %s", table)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO `+table+` (id, payload) VALUES ($1, $2)`, id, data); err != nil {
		return eris.Wrapf(err, "postgres: insert %s", table)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM `+table+` WHERE seq NOT IN (SELECT seq FROM `+table+` ORDER BY seq DESC LIMIT $1)`, limit,
	); err != nil {
		return eris.Wrapf(err, "postgres: evict %s", table)
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit %s", table)
}

func (s *PostgresStore) listSaved(ctx context.Context, table string, add func([]byte) error) error {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM `+table+` ORDER BY seq DESC`)
	if err != nil {
		return eris.Wrapf(err, "postgres: list %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return eris.Wrapf(err, "postgres: scan %s", table)
		}
		if err := add(data); err != nil {
			return eris.Wrapf(err, "postgres: unmarshal %s", table)
		}
	}
	return eris.Wrapf(rows.Err(), "postgres: iterate %s", table)
}

func (s *PostgresStore) deleteSaved(ctx context.Context, table, kind, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete %s", table)
	}
	if tag.RowsAffected() == 0 {
		return savedNotFound(kind, id)
	}
	return nil
}
