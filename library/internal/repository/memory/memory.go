package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/model"
	"github.com/Astemirdum/bookhub/library/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ repository.Repository = (*Repository)(nil)

// Repository keeps the collections in maps guarded by a single mutex.
// Listings come back in insertion order.
type Repository struct {
	mu       sync.RWMutex
	seq      int64
	books    map[string]entry[model.Book]
	featured map[string]entry[model.Book]
	borrows  map[string]entry[model.BorrowRecord]
	log      *zap.Logger
}

type entry[T any] struct {
	seq int64
	val T
}

func NewRepository(log *zap.Logger) *Repository {
	return &Repository{
		books:    make(map[string]entry[model.Book]),
		featured: make(map[string]entry[model.Book]),
		borrows:  make(map[string]entry[model.BorrowRecord]),
		log:      log.Named("repo"),
	}
}

func (r *Repository) CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrInvalidID
	}
	return nil
}

func (r *Repository) next() int64 {
	r.seq++
	return r.seq
}

// SeedFeatured adds books to the featured collection, which the API never writes.
func (r *Repository) SeedFeatured(books ...model.Book) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(books))
	for _, b := range books {
		b = b.Clone()
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		r.featured[b.ID] = entry[model.Book]{seq: r.next(), val: b}
		ids = append(ids, b.ID)
	}
	return ids
}

func (r *Repository) ListBooks(_ context.Context, filter model.BookFilter) ([]model.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.books, filter.Match, model.Book.Clone), nil
}

func (r *Repository) GetBook(_ context.Context, id string) (*model.Book, error) {
	if err := r.CheckID(id); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.books[id]
	if !ok {
		return nil, nil
	}
	b := e.val.Clone()
	return &b, nil
}

func (r *Repository) CreateBook(_ context.Context, book model.Book) (model.InsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	book = book.Clone()
	book.ID = uuid.NewString()
	r.books[book.ID] = entry[model.Book]{seq: r.next(), val: book}
	return model.InsertResult{Acknowledged: true, InsertedID: book.ID}, nil
}

func (r *Repository) UpdateBook(_ context.Context, id string, patch model.BookPatch) (model.UpdateResult, error) {
	if err := r.CheckID(id); err != nil {
		return model.UpdateResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.books[id]
	if !ok {
		e = entry[model.Book]{seq: r.next(), val: model.Book{ID: id}}
		e.val = patch.Apply(e.val)
		r.books[id] = e
		upserted := id
		return model.UpdateResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: &upserted}, nil
	}
	e.val = patch.Apply(e.val)
	r.books[id] = e
	return model.UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
}

func (r *Repository) IncBookQuantity(_ context.Context, id string, delta int) error {
	if err := r.CheckID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.books[id]
	if !ok {
		r.log.Debug("inc quantity: book not found", zap.String("id", id))
		return nil
	}
	if e.val.Quantity == nil {
		if raw, ok := e.val.Attrs[model.FieldQuantity]; ok {
			return fmt.Errorf("inc quantity of %s: non numeric value %v", id, raw)
		}
	}
	e.val.Quantity = model.Int(e.val.Copies() + delta)
	r.books[id] = e
	return nil
}

func (r *Repository) ListFeatured(_ context.Context) ([]model.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.featured, nil, model.Book.Clone), nil
}

func (r *Repository) BorrowExists(_ context.Context, email, bookID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.holds(email, bookID), nil
}

func (r *Repository) CountBorrows(_ context.Context, email string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count(email), nil
}

func (r *Repository) CreateBorrow(_ context.Context, rec model.BorrowRecord, limit int) (model.InsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holds(rec.UserEmail, rec.BookID) {
		return model.InsertResult{}, errs.ErrAlreadyBorrowed
	}
	if r.count(rec.UserEmail) >= limit {
		return model.InsertResult{}, errs.ErrBorrowLimit
	}
	rec = rec.Clone()
	rec.ID = uuid.NewString()
	r.borrows[rec.ID] = entry[model.BorrowRecord]{seq: r.next(), val: rec}
	return model.InsertResult{Acknowledged: true, InsertedID: rec.ID}, nil
}

func (r *Repository) ListBorrows(_ context.Context, email string) ([]model.BorrowRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	match := func(rec model.BorrowRecord) bool { return rec.UserEmail == email }
	return collect(r.borrows, match, model.BorrowRecord.Clone), nil
}

func (r *Repository) DeleteBorrow(_ context.Context, id, email string) (model.DeleteResult, error) {
	if err := r.CheckID(id); err != nil {
		return model.DeleteResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.borrows[id]
	if !ok || e.val.UserEmail != email {
		return model.DeleteResult{Acknowledged: true}, nil
	}
	delete(r.borrows, id)
	return model.DeleteResult{Acknowledged: true, DeletedCount: 1}, nil
}

func (r *Repository) holds(email, bookID string) bool {
	for _, e := range r.borrows {
		if e.val.UserEmail == email && e.val.BookID == bookID {
			return true
		}
	}
	return false
}

func (r *Repository) count(email string) int {
	n := 0
	for _, e := range r.borrows {
		if e.val.UserEmail == email {
			n++
		}
	}
	return n
}

func collect[T any](m map[string]entry[T], match func(T) bool, clone func(T) T) []T {
	entries := make([]entry[T], 0, len(m))
	for _, e := range m {
		if match == nil || match(e.val) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		out = append(out, clone(e.val))
	}
	return out
}
