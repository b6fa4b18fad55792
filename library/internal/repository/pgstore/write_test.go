package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

type statement struct {
	sql  string
	args pgx.NamedArgs
}

// fakeDB answers the statements of the borrow workflow from canned values.
type fakeDB struct {
	exists    bool
	count     int
	insertErr error
	deleted   int64

	statements []statement
	committed  bool
}

func (db *fakeDB) record(sql string, args []any) {
	st := statement{sql: strings.TrimSpace(sql)}
	if len(args) > 0 {
		st.args, _ = args[0].(pgx.NamedArgs)
	}
	db.statements = append(db.statements, st)
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: db}, nil
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.record(sql, args)
	if strings.HasPrefix(strings.TrimSpace(sql), "delete") {
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", db.deleted)), nil
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.record(sql, args)
	return nil, errors.New("query not scripted")
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.record(sql, args)
	switch {
	case strings.Contains(sql, "select exists"):
		return scanFunc(func(dest ...any) error {
			*dest[0].(*bool) = db.exists
			return nil
		})
	case strings.Contains(sql, "count(*)"):
		return scanFunc(func(dest ...any) error {
			*dest[0].(*int) = db.count
			return nil
		})
	case strings.Contains(sql, "insert into borrowed_books"):
		return scanFunc(func(dest ...any) error {
			if db.insertErr != nil {
				return db.insertErr
			}
			*dest[0].(*string) = "new-id"
			return nil
		})
	}
	return scanFunc(func(...any) error { return errors.New("row not scripted") })
}

func (db *fakeDB) ran(prefix string) bool {
	for _, st := range db.statements {
		if strings.HasPrefix(st.sql, prefix) {
			return true
		}
	}
	return false
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.db.Exec(ctx, sql, args...)
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return tx.db.QueryRow(ctx, sql, args...)
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.db.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error { return nil }

func newFakeRepo(t *testing.T, db *fakeDB) *Repository {
	t.Helper()
	repo, err := NewRepository(db, zap.NewNop())
	require.NoError(t, err)
	return repo
}

func TestRepository_CreateBorrow(t *testing.T) {
	rec := model.BorrowRecord{UserEmail: "u@x.com", BookID: "b1"}
	tests := []struct {
		name       string
		db         *fakeDB
		wantErr    error
		wantInsert bool
	}{
		{
			name:       "ok",
			db:         &fakeDB{count: 2},
			wantInsert: true,
		},
		{
			name:    "already borrowed",
			db:      &fakeDB{exists: true},
			wantErr: errs.ErrAlreadyBorrowed,
		},
		{
			name:    "limit rechecked under the lock",
			db:      &fakeDB{count: 3},
			wantErr: errs.ErrBorrowLimit,
		},
		{
			name:       "unique violation on insert",
			db:         &fakeDB{insertErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation}},
			wantErr:    errs.ErrAlreadyBorrowed,
			wantInsert: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(t, tt.db)
			res, err := repo.CreateBorrow(context.Background(), rec, 3)

			require.NotEmpty(t, tt.db.statements)
			lock := tt.db.statements[0]
			require.Contains(t, lock.sql, "pg_advisory_xact_lock")
			require.Equal(t, "u@x.com", lock.args["email"])
			require.Equal(t, tt.wantInsert, tt.db.ran("insert into borrowed_books"))

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.False(t, tt.db.committed)
				return
			}
			require.NoError(t, err)
			require.True(t, tt.db.committed)
			require.Equal(t, model.InsertResult{Acknowledged: true, InsertedID: "new-id"}, res)
		})
	}
}

func TestRepository_DeleteBorrow(t *testing.T) {
	id := uuid.NewString()
	db := &fakeDB{deleted: 1}
	repo := newFakeRepo(t, db)

	res, err := repo.DeleteBorrow(context.Background(), id, "u@x.com")
	require.NoError(t, err)
	require.Equal(t, model.DeleteResult{Acknowledged: true, DeletedCount: 1}, res)
	require.Len(t, db.statements, 1)
	require.Contains(t, db.statements[0].sql, "user_email = @email")
	require.Equal(t, pgx.NamedArgs{"id": id, "email": "u@x.com"}, db.statements[0].args)

	db = &fakeDB{}
	repo = newFakeRepo(t, db)
	res, err = repo.DeleteBorrow(context.Background(), id, "other@x.com")
	require.NoError(t, err)
	require.Zero(t, res.DeletedCount)

	_, err = repo.DeleteBorrow(context.Background(), "r1", "u@x.com")
	require.ErrorIs(t, err, errs.ErrInvalidID)
	require.Len(t, db.statements, 1)
}

func TestRepository_IncBookQuantity(t *testing.T) {
	id := uuid.NewString()
	db := &fakeDB{}
	repo := newFakeRepo(t, db)

	require.NoError(t, repo.IncBookQuantity(context.Background(), id, -1))
	require.Len(t, db.statements, 1)
	require.Contains(t, db.statements[0].sql, "coalesce(quantity, 0) + @delta")
	require.Equal(t, pgx.NamedArgs{"id": id, "delta": -1}, db.statements[0].args)
}
