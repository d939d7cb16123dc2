package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GoPolymarket/reqlog/internal/model"
	"github.com/GoPolymarket/reqlog/internal/pkg/apperrors"
)

func newMockStore(t *testing.T) (*PostgresRequestStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return NewPostgresRequestStore(db), mock
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/widgets", "/api/widgets"},
		{"/100%", `/100\%`},
		{"/snake_case", `/snake\_case`},
		{`/back\slash`, `/back\\slash`},
		{"/ünï_%", `/ünï\_\%`},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.in))
		})
	}
}

func TestPostgresLatestUnfinishedNoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "request_records" WHERE finished = \$1 ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "method", "path", "finished", "created_at"}))

	rec, err := store.LatestUnfinished(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestUnfinished(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "request_records" WHERE finished = \$1 ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "method", "path", "finished", "created_at"}).
			AddRow("draft-1", "GET", "/a", false, created))

	rec, err := store.LatestUnfinished(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "draft-1", rec.ID)
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "request_records" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRequestNotFound)
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListEscapesPathPrefix(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "request_records" WHERE path LIKE \$1 ORDER BY created_at DESC`).
		WithArgs(`/a\_b%`, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "path"}).AddRow("r1", "/a_b/c"))

	recs, err := store.List(context.Background(), model.RequestQuery{PathPrefix: "/a_b"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/a_b/c", recs[0].Path)
	assert.NoError(t, mock.ExpectationsWereMet())
}
