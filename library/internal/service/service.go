package service

import (
	"context"
	"time"

	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/model"
	libraryRepo "github.com/Astemirdum/bookhub/library/internal/repository"
	"github.com/Astemirdum/bookhub/pkg/kafka"
	"go.uber.org/zap"
)

// BorrowLimit is the number of books a user may hold at once.
const BorrowLimit = 3

// EventPublisher receives borrow and return events. *kafka.Publisher implements it.
type EventPublisher interface {
	Publish(ev kafka.BorrowEvent) error
}

type Option func(s *Service)

func WithEvents(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithStrictReturn makes ReturnBook restore a copy only when a borrow record was actually removed.
func WithStrictReturn(strict bool) Option {
	return func(s *Service) {
		s.strictReturn = strict
	}
}

type Service struct {
	log          *zap.Logger
	repo         libraryRepo.Repository
	events       EventPublisher
	strictReturn bool
	now          func() time.Time
}

func NewService(repo libraryRepo.Repository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		log:  log.Named("service"),
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListBooks(ctx context.Context, onlyAvailable bool) ([]model.Book, error) {
	return s.repo.ListBooks(ctx, model.BookFilter{OnlyAvailable: onlyAvailable})
}

func (s *Service) ListBooksByCategory(ctx context.Context, category string) ([]model.Book, error) {
	return s.repo.ListBooks(ctx, model.BookFilter{Category: category})
}

func (s *Service) GetBook(ctx context.Context, id string) (*model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) AddBook(ctx context.Context, book model.Book) (model.InsertResult, error) {
	return s.repo.CreateBook(ctx, book)
}

func (s *Service) UpdateBook(ctx context.Context, id string, patch model.BookPatch) (model.UpdateResult, error) {
	return s.repo.UpdateBook(ctx, id, patch)
}

func (s *Service) ListFeaturedBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListFeatured(ctx)
}

func (s *Service) ListBorrowedBooks(ctx context.Context, email string) ([]model.BorrowRecord, error) {
	return s.repo.ListBorrows(ctx, email)
}

// AdjustQuantity applies an inventory change coming from outside the borrow workflow.
func (s *Service) AdjustQuantity(ctx context.Context, bookID string, delta int) error {
	return s.repo.IncBookQuantity(ctx, bookID, delta)
}

// BorrowBook records the loan described by rec and takes one copy of the book bookID.
// Duplicate and limit checks run before any write; the store repeats them atomically on insert.
// A failed decrement leaves the record in place.
func (s *Service) BorrowBook(ctx context.Context, bookID string, rec model.BorrowRecord) (model.InsertResult, error) {
	if err := s.repo.CheckID(bookID); err != nil {
		return model.InsertResult{}, err
	}

	exists, err := s.repo.BorrowExists(ctx, rec.UserEmail, rec.BookID)
	if err != nil {
		return model.InsertResult{}, err
	}
	if exists {
		return model.InsertResult{}, errs.ErrAlreadyBorrowed
	}

	n, err := s.repo.CountBorrows(ctx, rec.UserEmail)
	if err != nil {
		return model.InsertResult{}, err
	}
	if n >= BorrowLimit {
		return model.InsertResult{}, errs.ErrBorrowLimit
	}

	res, err := s.repo.CreateBorrow(ctx, rec, BorrowLimit)
	if err != nil {
		return model.InsertResult{}, err
	}

	if err := s.repo.IncBookQuantity(ctx, bookID, -1); err != nil {
		s.log.Error("borrow: decrement quantity",
			zap.String("bookId", bookID),
			zap.String("recordId", res.InsertedID),
			zap.Error(err))
		return model.InsertResult{}, err
	}

	s.publish(kafka.BorrowEvent{
		Type:      kafka.EventBorrowed,
		RecordID:  res.InsertedID,
		UserEmail: rec.UserEmail,
		BookID:    bookID,
	})
	return res, nil
}

// ReturnBook removes the record id held by email and gives the copy back to bookID.
// Unless strict return is on, the copy is given back even when no record matched.
func (s *Service) ReturnBook(ctx context.Context, id, bookID, email string) (model.DeleteResult, error) {
	if err := s.repo.CheckID(id); err != nil {
		return model.DeleteResult{}, err
	}
	if err := s.repo.CheckID(bookID); err != nil {
		return model.DeleteResult{}, err
	}

	res, err := s.repo.DeleteBorrow(ctx, id, email)
	if err != nil {
		return model.DeleteResult{}, err
	}

	if s.strictReturn && res.DeletedCount != 1 {
		s.log.Info("return: no matching record, quantity unchanged",
			zap.String("recordId", id),
			zap.String("userEmail", email))
		return res, nil
	}

	if err := s.repo.IncBookQuantity(ctx, bookID, 1); err != nil {
		s.log.Error("return: increment quantity", zap.String("bookId", bookID), zap.Error(err))
		return model.DeleteResult{}, err
	}

	if res.DeletedCount > 0 {
		s.publish(kafka.BorrowEvent{
			Type:      kafka.EventReturned,
			RecordID:  id,
			UserEmail: email,
			BookID:    bookID,
		})
	}
	return res, nil
}

func (s *Service) publish(ev kafka.BorrowEvent) {
	if s.events == nil {
		return
	}
	ev.Timestamp = s.now().UTC()
	if err := s.events.Publish(ev); err != nil {
		s.log.Warn("publish event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
