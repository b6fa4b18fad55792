package repository

import (
	"context"

	"github.com/Astemirdum/bookhub/library/internal/model"
)

// Repository is the store client over the books, borrowedBooks and featuredBooks collections.
type Repository interface {
	// CheckID returns errs.ErrInvalidID when id is not a well-formed store identifier.
	CheckID(id string) error

	ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error)
	// GetBook returns nil, nil when no book has the id.
	GetBook(ctx context.Context, id string) (*model.Book, error)
	CreateBook(ctx context.Context, book model.Book) (model.InsertResult, error)
	// UpdateBook merges the patch into the book, inserting it under id when absent.
	UpdateBook(ctx context.Context, id string, patch model.BookPatch) (model.UpdateResult, error)
	// IncBookQuantity adds delta to the quantity. A missing book is not an error.
	IncBookQuantity(ctx context.Context, id string, delta int) error

	ListFeatured(ctx context.Context) ([]model.Book, error)

	BorrowExists(ctx context.Context, email, bookID string) (bool, error)
	CountBorrows(ctx context.Context, email string) (int, error)
	// CreateBorrow inserts the record unless the user already holds bookID
	// (errs.ErrAlreadyBorrowed) or already holds limit records (errs.ErrBorrowLimit).
	CreateBorrow(ctx context.Context, rec model.BorrowRecord, limit int) (model.InsertResult, error)
	ListBorrows(ctx context.Context, email string) ([]model.BorrowRecord, error)
	DeleteBorrow(ctx context.Context, id, email string) (model.DeleteResult, error)
}
