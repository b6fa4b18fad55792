package pgstore

import (
	"fmt"
	"testing"

	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestSelectBooks(t *testing.T) {
	tests := []struct {
		name      string
		filter    model.BookFilter
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "all",
			wantQuery: "SELECT id::text as id, category, quantity, attrs FROM books ORDER BY created_at, id",
		},
		{
			name:      "category and available",
			filter:    model.BookFilter{Category: "Poetry", OnlyAvailable: true},
			wantQuery: "SELECT id::text as id, category, quantity, attrs FROM books WHERE category = $1 AND quantity > $2 ORDER BY created_at, id",
			wantArgs:  []any{"Poetry", 0},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := selectBooks(booksTableName, tt.filter).ToSql()
			require.NoError(t, err)
			require.Equal(t, tt.wantQuery, query)
			if tt.wantArgs == nil {
				require.Empty(t, args)
				return
			}
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRows_ToModel(t *testing.T) {
	b := bookRow{ID: "id", Category: model.String("Drama"), Quantity: model.Int(1), Attrs: map[string]any{}}
	require.Equal(t, model.Book{ID: "id", Category: model.String("Drama"), Quantity: model.Int(1)}, b.toModel())

	bare := bookRow{ID: "id", Attrs: map[string]any{"bookName": "NoQty"}}
	require.Equal(t, model.Book{ID: "id", Attrs: model.Attributes{"bookName": "NoQty"}}, bare.toModel())

	r := borrowRow{ID: "id", UserEmail: "u@x.com", BookID: "b1", Attrs: map[string]any{"borrowDate": "2024-05-01"}}
	require.Equal(t, model.BorrowRecord{
		ID:        "id",
		UserEmail: "u@x.com",
		BookID:    "b1",
		Attrs:     model.Attributes{"borrowDate": "2024-05-01"},
	}, r.toModel())

	require.NotNil(t, attrsArg(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})
	require.True(t, isUniqueViolation(err))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	require.False(t, isUniqueViolation(errs.ErrBorrowLimit))
}

func TestCheckID(t *testing.T) {
	r := &Repository{}
	require.NoError(t, r.CheckID(uuid.NewString()))
	require.ErrorIs(t, r.CheckID("65f1c2aa0b1e4c3d2a1b0c9d"), errs.ErrInvalidID)
}
