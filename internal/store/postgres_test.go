package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock, limits: DefaultLimits()}, mock
}

func TestPostgresStore_SaveBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	b := testBatch("b1", "Acme", "Globex")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO batches`).
		WithArgs("b1", pgxmock.AnyArg(), 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"batch_results"}, []string{"batch_id", "idx", "result"}).
		WillReturnResult(2)
	mock.ExpectExec(`DELETE FROM batches WHERE seq NOT IN`).
		WithArgs(20).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, s.SaveBatch(context.Background(), b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBatch_CopyFailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO batches`).
		WithArgs("b1", pgxmock.AnyArg(), 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"batch_results"}, []string{"batch_id", "idx", "result"}).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveBatch(context.Background(), testBatch("b1", "Acme"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy results")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	b := testBatch("b1", "Acme")
	meta, err := marshalMeta(b)
	require.NoError(t, err)
	result, err := json.Marshal(b.Results[0])
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT meta FROM batches WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"meta"}).AddRow([]byte(meta)))
	mock.ExpectQuery(`SELECT result FROM batch_results WHERE batch_id = \$1 ORDER BY idx`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(result))

	got, err := s.GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Acme", got.Results[0].Company.Name())
	assert.Equal(t, 1, got.Succeeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT meta FROM batches`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBatch(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBatches(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, created_at, company_count FROM batches ORDER BY seq DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "company_count"}).
			AddRow("b2", ts, 3).
			AddRow("b1", ts, 1))

	list, err := s.ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.BatchSummary{ID: "b2", Timestamp: ts, CompanyCount: 3}, list[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteBatch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM batches WHERE id = \$1`).
		WithArgs("nope").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.True(t, errors.Is(s.DeleteBatch(context.Background(), "nope"), ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateDraft(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	b := testBatch("b1", "Acme")
	result, err := json.Marshal(b.Results[0])
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT result FROM batch_results WHERE batch_id = \$1 AND idx = \$2 FOR UPDATE`).
		WithArgs("b1", 0).
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(result))
	mock.ExpectExec(`UPDATE batch_results SET result = \$1`).
		WithArgs(pgxmock.AnyArg(), "b1", 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	target := model.RefinementTarget{BatchID: "b1", VariantKey: "value"}
	v, err := s.UpdateDraft(context.Background(), target, func(v *model.DraftVariant) error {
		v.Body = "shorter"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", v.Key)
	assert.Equal(t, "shorter", v.Body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateDraft_MissingCompany(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT result FROM batch_results`).
		WithArgs("b1", 9).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := s.UpdateDraft(context.Background(), model.RefinementTarget{BatchID: "b1", CompanyIndex: 9, VariantKey: "value"},
		func(*model.DraftVariant) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "company 9")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDraft(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO saved_drafts`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM saved_drafts WHERE seq NOT IN`).
		WithArgs(100).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	d, err := s.SaveDraft(context.Background(), "Acme", model.DraftVariant{Key: "value", Subject: "Hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "Acme", d.CompanyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCompanies(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	b := testBatch("b1", "Acme")
	payload, err := json.Marshal(model.SavedCompany{ID: "c1", Company: b.Results[0].Company, Drafts: b.Results[0].Drafts})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload FROM saved_companies ORDER BY seq DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	list, err := s.ListCompanies(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, []string{"value", "curiosity"}, list[0].Drafts.Keys())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteDraft_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM saved_drafts WHERE id = \$1`).
		WithArgs("d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteDraft(context.Background(), "d1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS batches`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
