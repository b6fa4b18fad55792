package handler

import (
	"context"

	"github.com/Astemirdum/bookhub/library/internal/model"
	"github.com/Astemirdum/bookhub/library/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BookService interface {
	ListBooks(ctx context.Context, onlyAvailable bool) ([]model.Book, error)
	ListBooksByCategory(ctx context.Context, category string) ([]model.Book, error)
	GetBook(ctx context.Context, id string) (*model.Book, error)
	AddBook(ctx context.Context, book model.Book) (model.InsertResult, error)
	UpdateBook(ctx context.Context, id string, patch model.BookPatch) (model.UpdateResult, error)
	ListFeaturedBooks(ctx context.Context) ([]model.Book, error)
	BorrowBook(ctx context.Context, bookID string, rec model.BorrowRecord) (model.InsertResult, error)
	ListBorrowedBooks(ctx context.Context, email string) ([]model.BorrowRecord, error)
	ReturnBook(ctx context.Context, id, bookID, email string) (model.DeleteResult, error)
	AdjustQuantity(ctx context.Context, bookID string, delta int) error
}

var _ BookService = (*service.Service)(nil)
