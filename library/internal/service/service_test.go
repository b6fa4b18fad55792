package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/model"
	"github.com/Astemirdum/bookhub/library/internal/repository"
	"github.com/Astemirdum/bookhub/library/internal/repository/memory"
	"github.com/Astemirdum/bookhub/library/internal/service"
	"github.com/Astemirdum/bookhub/pkg/kafka"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const email = "u@x.com"

// flakyRepo fails IncBookQuantity on demand and counts mutations.
type flakyRepo struct {
	repository.Repository
	incErr  error
	mu      sync.Mutex
	incs    int
	creates int
}

func (r *flakyRepo) IncBookQuantity(ctx context.Context, id string, delta int) error {
	r.mu.Lock()
	r.incs++
	r.mu.Unlock()
	if r.incErr != nil {
		return r.incErr
	}
	return r.Repository.IncBookQuantity(ctx, id, delta)
}

func (r *flakyRepo) CreateBorrow(ctx context.Context, rec model.BorrowRecord, limit int) (model.InsertResult, error) {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	return r.Repository.CreateBorrow(ctx, rec, limit)
}

type recorder struct {
	mu     sync.Mutex
	events []kafka.BorrowEvent
	err    error
}

func (r *recorder) Publish(ev kafka.BorrowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type fixture struct {
	repo   *flakyRepo
	events *recorder
	svc    *service.Service
}

func newFixture(opts ...service.Option) *fixture {
	f := &fixture{
		repo:   &flakyRepo{Repository: memory.NewRepository(zap.NewNop())},
		events: &recorder{},
	}
	opts = append([]service.Option{service.WithEvents(f.events)}, opts...)
	f.svc = service.NewService(f.repo, zap.NewNop(), opts...)
	return f
}

func (f *fixture) addBook(t *testing.T, qty int) string {
	t.Helper()
	res, err := f.svc.AddBook(context.Background(), model.Book{Category: model.String("Fiction"), Quantity: model.Int(qty)})
	require.NoError(t, err)
	return res.InsertedID
}

func (f *fixture) quantity(t *testing.T, id string) int {
	t.Helper()
	b, err := f.svc.GetBook(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b.Copies()
}

func (f *fixture) borrows(t *testing.T) []model.BorrowRecord {
	t.Helper()
	list, err := f.svc.ListBorrowedBooks(context.Background(), email)
	require.NoError(t, err)
	return list
}

func TestService_BorrowBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	b1 := f.addBook(t, 1)

	rec := model.BorrowRecord{UserEmail: email, BookID: b1, Attrs: model.Attributes{"borrowDate": "2024-05-01"}}
	res, err := f.svc.BorrowBook(ctx, b1, rec)
	require.NoError(t, err)
	require.True(t, res.Acknowledged)
	require.NotEmpty(t, res.InsertedID)
	require.Equal(t, 0, f.quantity(t, b1))

	list := f.borrows(t)
	require.Len(t, list, 1)
	require.Equal(t, res.InsertedID, list[0].ID)
	require.Equal(t, "2024-05-01", list[0].Attrs["borrowDate"])

	require.Len(t, f.events.events, 1)
	require.Equal(t, kafka.EventBorrowed, f.events.events[0].Type)
	require.Equal(t, res.InsertedID, f.events.events[0].RecordID)

	_, err = f.svc.BorrowBook(ctx, b1, rec)
	require.ErrorIs(t, err, errs.ErrAlreadyBorrowed)
	require.Equal(t, 0, f.quantity(t, b1))
	require.Len(t, f.borrows(t), 1)
	require.Equal(t, 1, f.repo.creates)
}

func TestService_BorrowBookLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()

	for i := 0; i < service.BorrowLimit; i++ {
		id := f.addBook(t, 1)
		_, err := f.svc.BorrowBook(ctx, id, model.BorrowRecord{UserEmail: email, BookID: id})
		require.NoError(t, err)
	}

	fourth := f.addBook(t, 5)
	_, err := f.svc.BorrowBook(ctx, fourth, model.BorrowRecord{UserEmail: email, BookID: fourth})
	require.ErrorIs(t, err, errs.ErrBorrowLimit)
	require.EqualError(t, err, "You already borrowed 3 books!!!")
	require.Equal(t, 5, f.quantity(t, fourth))
	require.Len(t, f.borrows(t), service.BorrowLimit)
	require.Equal(t, service.BorrowLimit, f.repo.creates)
}

func TestService_BorrowBookInvalidID(t *testing.T) {
	t.Parallel()
	f := newFixture()

	_, err := f.svc.BorrowBook(context.Background(), "b1", model.BorrowRecord{UserEmail: email, BookID: "b1"})
	require.ErrorIs(t, err, errs.ErrInvalidID)
	require.Empty(t, f.borrows(t))
	require.Zero(t, f.repo.incs)
}

func TestService_BorrowBookDecrementFails(t *testing.T) {
	t.Parallel()
	f := newFixture()
	b1 := f.addBook(t, 1)
	f.repo.incErr = errors.New("store unavailable")

	_, err := f.svc.BorrowBook(context.Background(), b1, model.BorrowRecord{UserEmail: email, BookID: b1})
	require.EqualError(t, err, "store unavailable")
	require.Len(t, f.borrows(t), 1, "the record is not compensated")
	require.Empty(t, f.events.events)
}

func TestService_BorrowBookPathDrivesDecrement(t *testing.T) {
	t.Parallel()
	f := newFixture()
	path := f.addBook(t, 2)
	payload := f.addBook(t, 2)

	_, err := f.svc.BorrowBook(context.Background(), path, model.BorrowRecord{UserEmail: email, BookID: payload})
	require.NoError(t, err)
	require.Equal(t, 1, f.quantity(t, path))
	require.Equal(t, 2, f.quantity(t, payload))
}

func TestService_BorrowBookPublishFailure(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.events.err = errors.New("broker down")
	b1 := f.addBook(t, 1)

	_, err := f.svc.BorrowBook(context.Background(), b1, model.BorrowRecord{UserEmail: email, BookID: b1})
	require.NoError(t, err)
	require.Equal(t, 0, f.quantity(t, b1))
}

func TestService_BorrowBookConcurrent(t *testing.T) {
	t.Parallel()
	f := newFixture()
	b1 := f.addBook(t, 10)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errL []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BorrowBook(context.Background(), b1, model.BorrowRecord{UserEmail: email, BookID: b1})
			mu.Lock()
			errL = append(errL, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errL {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, errs.ErrAlreadyBorrowed)
	}
	require.Equal(t, 1, ok)
	require.Len(t, f.borrows(t), 1)
	require.Equal(t, 9, f.quantity(t, b1))
}

func TestService_ReturnBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	b1 := f.addBook(t, 1)

	res, err := f.svc.BorrowBook(ctx, b1, model.BorrowRecord{UserEmail: email, BookID: b1})
	require.NoError(t, err)

	del, err := f.svc.ReturnBook(ctx, res.InsertedID, b1, email)
	require.NoError(t, err)
	require.Equal(t, model.DeleteResult{Acknowledged: true, DeletedCount: 1}, del)
	require.Equal(t, 1, f.quantity(t, b1))
	require.Empty(t, f.borrows(t))

	require.Len(t, f.events.events, 2)
	require.Equal(t, kafka.EventReturned, f.events.events[1].Type)
}

func TestService_ReturnBookNoMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("default increments anyway", func(t *testing.T) {
		f := newFixture()
		b1 := f.addBook(t, 1)

		del, err := f.svc.ReturnBook(ctx, uuid.NewString(), b1, email)
		require.NoError(t, err)
		require.Zero(t, del.DeletedCount)
		require.Equal(t, 2, f.quantity(t, b1))
		require.Empty(t, f.events.events)
	})

	t.Run("strict leaves quantity", func(t *testing.T) {
		f := newFixture(service.WithStrictReturn(true))
		b1 := f.addBook(t, 1)

		del, err := f.svc.ReturnBook(ctx, uuid.NewString(), b1, email)
		require.NoError(t, err)
		require.Zero(t, del.DeletedCount)
		require.Equal(t, 1, f.quantity(t, b1))
		require.Zero(t, f.repo.incs)
	})

	t.Run("wrong user", func(t *testing.T) {
		f := newFixture(service.WithStrictReturn(true))
		b1 := f.addBook(t, 1)
		res, err := f.svc.BorrowBook(ctx, b1, model.BorrowRecord{UserEmail: email, BookID: b1})
		require.NoError(t, err)

		del, err := f.svc.ReturnBook(ctx, res.InsertedID, b1, "other@x.com")
		require.NoError(t, err)
		require.Zero(t, del.DeletedCount)
		require.Equal(t, 0, f.quantity(t, b1))
		require.Len(t, f.borrows(t), 1)
	})
}

func TestService_ReturnBookInvalidID(t *testing.T) {
	t.Parallel()
	f := newFixture()
	b1 := f.addBook(t, 1)

	_, err := f.svc.ReturnBook(context.Background(), "bad", b1, email)
	require.ErrorIs(t, err, errs.ErrInvalidID)
	_, err = f.svc.ReturnBook(context.Background(), uuid.NewString(), "bad", email)
	require.ErrorIs(t, err, errs.ErrInvalidID)
	require.Equal(t, 1, f.quantity(t, b1))
	require.Zero(t, f.repo.incs)
}

func TestService_ListBooks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	f.addBook(t, 0)
	f.addBook(t, 3)

	all, err := f.svc.ListBooks(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	avail, err := f.svc.ListBooks(ctx, true)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	require.Equal(t, 3, avail[0].Copies())

	byCat, err := f.svc.ListBooksByCategory(ctx, "Fiction")
	require.NoError(t, err)
	require.Len(t, byCat, 2)

	none, err := f.svc.ListBooksByCategory(ctx, "Poetry")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestService_AdjustQuantity(t *testing.T) {
	t.Parallel()
	f := newFixture()
	b1 := f.addBook(t, 1)

	require.NoError(t, f.svc.AdjustQuantity(context.Background(), b1, 4))
	require.Equal(t, 5, f.quantity(t, b1))
	require.ErrorIs(t, f.svc.AdjustQuantity(context.Background(), "nope", 1), errs.ErrInvalidID)
}

func TestService_EventTimestamp(t *testing.T) {
	t.Parallel()
	f := newFixture()
	b1 := f.addBook(t, 1)

	before := time.Now().UTC()
	_, err := f.svc.BorrowBook(context.Background(), b1, model.BorrowRecord{UserEmail: email, BookID: b1})
	require.NoError(t, err)
	require.Len(t, f.events.events, 1)
	require.False(t, f.events.events[0].Timestamp.Before(before))
	require.Equal(t, b1, f.events.events[0].BookID)
}
