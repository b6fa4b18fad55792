package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/model"
	"github.com/Astemirdum/bookhub/library/internal/repository"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var _ repository.Repository = (*Repository)(nil)

// DB is the part of *pgxpool.Pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

type Repository struct {
	db  DB
	log *zap.Logger
}

func NewRepository(db DB, log *zap.Logger) (*Repository, error) {
	return &Repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	booksTableName    = `books`
	featuredTableName = `featured_books`
	borrowedTableName = `borrowed_books`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type bookRow struct {
	ID       string         `db:"id"`
	Category *string        `db:"category"`
	Quantity *int           `db:"quantity"`
	Attrs    map[string]any `db:"attrs"`
}

func (b bookRow) toModel() model.Book {
	var attrs model.Attributes
	if len(b.Attrs) > 0 {
		attrs = b.Attrs
	}
	return model.Book{ID: b.ID, Category: b.Category, Quantity: b.Quantity, Attrs: attrs}
}

type borrowRow struct {
	ID        string         `db:"id"`
	UserEmail string         `db:"user_email"`
	BookID    string         `db:"book_id"`
	Attrs     map[string]any `db:"attrs"`
}

func (b borrowRow) toModel() model.BorrowRecord {
	var attrs model.Attributes
	if len(b.Attrs) > 0 {
		attrs = b.Attrs
	}
	return model.BorrowRecord{ID: b.ID, UserEmail: b.UserEmail, BookID: b.BookID, Attrs: attrs}
}

// jsonb columns are not null.
func attrsArg(a model.Attributes) map[string]any {
	if a == nil {
		return map[string]any{}
	}
	return a
}

func (r *Repository) CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrInvalidID
	}
	return nil
}

func selectBooks(table string, filter model.BookFilter) sq.SelectBuilder {
	q := qb.Select("id::text as id", "category", "quantity", "attrs").
		From(table).
		OrderBy("created_at", "id")
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}
	if filter.OnlyAvailable {
		q = q.Where(sq.Gt{"quantity": 0})
	}
	return q
}

func (r *Repository) ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error) {
	return r.listBooks(ctx, selectBooks(booksTableName, filter))
}

func (r *Repository) ListFeatured(ctx context.Context) ([]model.Book, error) {
	return r.listBooks(ctx, selectBooks(featuredTableName, model.BookFilter{}))
}

func (r *Repository) listBooks(ctx context.Context, q sq.SelectBuilder) ([]model.Book, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[bookRow])
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows: %w", err)
	}
	books := make([]model.Book, 0, len(list))
	for _, b := range list {
		books = append(books, b.toModel())
	}
	return books, nil
}

func (r *Repository) GetBook(ctx context.Context, id string) (*model.Book, error) {
	if err := r.CheckID(id); err != nil {
		return nil, err
	}
	query, args, err := selectBooks(booksTableName, model.BookFilter{}).
		Where(sq.Expr("id = ?::text::uuid", id)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[bookRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	book := row.toModel()
	return &book, nil
}

func (r *Repository) CreateBook(ctx context.Context, book model.Book) (model.InsertResult, error) {
	q := `
insert into books (category, quantity, attrs)
values (@category, @quantity, @attrs)
returning id::text`
	args := pgx.NamedArgs{
		"category": book.Category,
		"quantity": book.Quantity,
		"attrs":    attrsArg(book.Attrs),
	}
	var id string
	if err := r.db.QueryRow(ctx, q, args).Scan(&id); err != nil {
		return model.InsertResult{}, fmt.Errorf("insert book: %w", err)
	}
	return model.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (r *Repository) UpdateBook(ctx context.Context, id string, patch model.BookPatch) (model.UpdateResult, error) {
	if err := r.CheckID(id); err != nil {
		return model.UpdateResult{}, err
	}
	q := `
insert into books (id, category, quantity, attrs)
values (@id::text::uuid, @category::text, @quantity::int, @attrs)
on conflict (id) do update
    set category = coalesce(@category::text, books.category),
        quantity = coalesce(@quantity::int, books.quantity),
        attrs    = books.attrs || excluded.attrs
returning (xmax = 0) as inserted`
	args := pgx.NamedArgs{
		"id":       id,
		"category": patch.Category,
		"quantity": patch.Quantity,
		"attrs":    attrsArg(patch.Attrs),
	}
	var inserted bool
	if err := r.db.QueryRow(ctx, q, args).Scan(&inserted); err != nil {
		return model.UpdateResult{}, fmt.Errorf("upsert book: %w", err)
	}
	if inserted {
		return model.UpdateResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: &id}, nil
	}
	return model.UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
}

func (r *Repository) IncBookQuantity(ctx context.Context, id string, delta int) error {
	if err := r.CheckID(id); err != nil {
		return err
	}
	q := `
update books
    set quantity = coalesce(quantity, 0) + @delta
where id = @id::text::uuid`
	args := pgx.NamedArgs{
		"id":    id,
		"delta": delta,
	}
	_, err := r.db.Exec(ctx, q, args)
	return err
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func borrowExists(ctx context.Context, db querier, email, bookID string) (bool, error) {
	q := `select exists(select 1 from borrowed_books where user_email = @email and book_id = @book_id)`
	var ok bool
	err := db.QueryRow(ctx, q, pgx.NamedArgs{"email": email, "book_id": bookID}).Scan(&ok)
	return ok, err
}

func countBorrows(ctx context.Context, db querier, email string) (int, error) {
	q := `select count(*) from borrowed_books where user_email = @email`
	var n int
	err := db.QueryRow(ctx, q, pgx.NamedArgs{"email": email}).Scan(&n)
	return n, err
}

func (r *Repository) BorrowExists(ctx context.Context, email, bookID string) (bool, error) {
	return borrowExists(ctx, r.db, email, bookID)
}

func (r *Repository) CountBorrows(ctx context.Context, email string) (int, error) {
	return countBorrows(ctx, r.db, email)
}

// CreateBorrow serializes the borrows of one user on a transaction scoped advisory lock.
func (r *Repository) CreateBorrow(ctx context.Context, rec model.BorrowRecord, limit int) (model.InsertResult, error) {
	var id string
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtext(@email))`, pgx.NamedArgs{"email": rec.UserEmail}); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		exists, err := borrowExists(ctx, tx, rec.UserEmail, rec.BookID)
		if err != nil {
			return err
		}
		if exists {
			return errs.ErrAlreadyBorrowed
		}
		n, err := countBorrows(ctx, tx, rec.UserEmail)
		if err != nil {
			return err
		}
		if n >= limit {
			return errs.ErrBorrowLimit
		}
		q := `
insert into borrowed_books (user_email, book_id, attrs)
values (@email, @book_id, @attrs)
returning id::text`
		args := pgx.NamedArgs{
			"email":   rec.UserEmail,
			"book_id": rec.BookID,
			"attrs":   attrsArg(rec.Attrs),
		}
		return tx.QueryRow(ctx, q, args).Scan(&id)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.InsertResult{}, errs.ErrAlreadyBorrowed
		}
		return model.InsertResult{}, err
	}
	return model.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (r *Repository) ListBorrows(ctx context.Context, email string) ([]model.BorrowRecord, error) {
	query, args, err := qb.Select("id::text as id", "user_email", "book_id", "attrs").
		From(borrowedTableName).
		Where(sq.Eq{"user_email": email}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[borrowRow])
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows: %w", err)
	}
	recs := make([]model.BorrowRecord, 0, len(list))
	for _, b := range list {
		recs = append(recs, b.toModel())
	}
	return recs, nil
}

func (r *Repository) DeleteBorrow(ctx context.Context, id, email string) (model.DeleteResult, error) {
	if err := r.CheckID(id); err != nil {
		return model.DeleteResult{}, err
	}
	q := `delete from borrowed_books where id = @id::text::uuid and user_email = @email`
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "email": email})
	if err != nil {
		return model.DeleteResult{}, err
	}
	return model.DeleteResult{Acknowledged: true, DeletedCount: tag.RowsAffected()}, nil
}
