package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pleader-ai/pleader-backend/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSnapshotRepository_Save(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zap.NewNop())
	data := []byte(`{"version":1}`)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (name) DO UPDATE")).
		WithArgs("default", data, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), "default", data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_SaveError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rag_index_snapshots")).WillReturnError(errors.New("disk full"))

	err := repo.Save(context.Background(), "default", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save index snapshot")
}

func TestSnapshotRepository_Load(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSnapshotRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM rag_index_snapshots WHERE name = $1")).
			WithArgs("default").
			WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"version":1}`)))

		data, err := repo.Load(context.Background(), "default")
		require.NoError(t, err)
		assert.Equal(t, `{"version":1}`, string(data))
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSnapshotRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT data")).WillReturnError(sql.ErrNoRows)

		_, err := repo.Load(context.Background(), "default")
		assert.ErrorIs(t, err, repositories.ErrSnapshotNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSnapshotRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT data")).WillReturnError(errors.New("connection reset"))

		_, err := repo.Load(context.Background(), "default")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrSnapshotNotFound)
	})
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS documents")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_HealthCheck(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()
	db := NewDBFromConn(conn, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	require.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
