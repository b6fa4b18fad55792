package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/model"
	"github.com/Astemirdum/bookhub/library/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var _ repository.Repository = (*Repository)(nil)

const (
	booksCollection     = "books"
	borrowedCollection  = "borrowedBooks"
	featuredCollection  = "featuredBooks"
	borrowersCollection = "borrowers"
)

type Repository struct {
	client       *mongo.Client
	books        *mongo.Collection
	borrowed     *mongo.Collection
	featured     *mongo.Collection
	borrowers    *mongo.Collection
	transactions bool
	log          *zap.Logger
}

// NewRepository binds the collections of database and makes sure the borrow indexes exist.
// With transactions off (standalone mongod) the per-user limit is only guarded by the count.
func NewRepository(ctx context.Context, client *mongo.Client, database string, transactions bool, log *zap.Logger) (*Repository, error) {
	r := newRepository(client, database, transactions, log)
	r.ensureIndexes(ctx)
	return r, nil
}

func newRepository(client *mongo.Client, database string, transactions bool, log *zap.Logger) *Repository {
	db := client.Database(database)
	return &Repository{
		client:       client,
		books:        db.Collection(booksCollection),
		borrowed:     db.Collection(borrowedCollection),
		featured:     db.Collection(featuredCollection),
		borrowers:    db.Collection(borrowersCollection),
		transactions: transactions,
		log:          log.Named("repo"),
	}
}

func (r *Repository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: model.FieldUserEmail, Value: 1}, {Key: model.FieldBookID, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_book_unique"),
		},
		{
			Keys:    bson.D{{Key: model.FieldUserEmail, Value: 1}},
			Options: options.Index().SetName("user_email"),
		},
	}
	if _, err := r.borrowed.Indexes().CreateMany(ctx, indexes); err != nil {
		r.log.Warn("create borrowedBooks indexes", zap.Error(err))
	}
}

func (r *Repository) CheckID(id string) error {
	_, err := objectID(id)
	return err
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errs.ErrInvalidID
	}
	return oid, nil
}

func bookQuery(f model.BookFilter) bson.M {
	q := bson.M{}
	if f.Category != "" {
		q[model.FieldCategory] = f.Category
	}
	if f.OnlyAvailable {
		q[model.FieldQuantity] = bson.M{"$gt": 0}
	}
	return q
}

func (r *Repository) ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error) {
	return findBooks(ctx, r.books, bookQuery(filter))
}

func (r *Repository) ListFeatured(ctx context.Context) ([]model.Book, error) {
	return findBooks(ctx, r.featured, bson.M{})
}

func findBooks(ctx context.Context, coll *mongo.Collection, query bson.M) ([]model.Book, error) {
	docs, err := findAll(ctx, coll, query)
	if err != nil {
		return nil, err
	}
	books := make([]model.Book, 0, len(docs))
	for _, doc := range docs {
		books = append(books, bookFromDoc(doc))
	}
	return books, nil
}

func findAll(ctx context.Context, coll *mongo.Collection, query bson.M) ([]bson.M, error) {
	cur, err := coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s find: %w", coll.Name(), err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s cursor: %w", coll.Name(), err)
	}
	return docs, nil
}

func (r *Repository) GetBook(ctx context.Context, id string) (*model.Book, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := r.books.FindOne(ctx, bson.M{model.FieldID: oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("books findOne: %w", err)
	}
	book := bookFromDoc(doc)
	return &book, nil
}

func (r *Repository) CreateBook(ctx context.Context, book model.Book) (model.InsertResult, error) {
	res, err := r.books.InsertOne(ctx, bookDoc(book))
	if err != nil {
		return model.InsertResult{}, fmt.Errorf("books insertOne: %w", err)
	}
	return model.InsertResult{Acknowledged: true, InsertedID: idString(res.InsertedID)}, nil
}

func (r *Repository) UpdateBook(ctx context.Context, id string, patch model.BookPatch) (model.UpdateResult, error) {
	oid, err := objectID(id)
	if err != nil {
		return model.UpdateResult{}, err
	}
	set := patchDoc(patch)
	if len(set) == 0 {
		// $set may not be empty; re-setting _id to itself is a no-op.
		set[model.FieldID] = oid
	}
	res, err := r.books.UpdateOne(ctx,
		bson.M{model.FieldID: oid},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return model.UpdateResult{}, fmt.Errorf("books updateOne: %w", err)
	}
	out := model.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
	}
	if res.UpsertedID != nil {
		upserted := idString(res.UpsertedID)
		out.UpsertedID = &upserted
	}
	return out, nil
}

func (r *Repository) IncBookQuantity(ctx context.Context, id string, delta int) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = r.books.UpdateOne(ctx,
		bson.M{model.FieldID: oid},
		bson.M{"$inc": bson.M{model.FieldQuantity: delta}},
	)
	if err != nil {
		return fmt.Errorf("books inc quantity: %w", err)
	}
	return nil
}

func (r *Repository) BorrowExists(ctx context.Context, email, bookID string) (bool, error) {
	n, err := r.borrowed.CountDocuments(ctx,
		bson.M{model.FieldUserEmail: email, model.FieldBookID: bookID},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("borrowedBooks count: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) CountBorrows(ctx context.Context, email string) (int, error) {
	n, err := r.borrowed.CountDocuments(ctx, bson.M{model.FieldUserEmail: email})
	if err != nil {
		return 0, fmt.Errorf("borrowedBooks count: %w", err)
	}
	return int(n), nil
}

func (r *Repository) CreateBorrow(ctx context.Context, rec model.BorrowRecord, limit int) (model.InsertResult, error) {
	insert := func(ctx context.Context) (any, error) {
		return r.insertBorrow(ctx, rec, limit)
	}
	var (
		id  any
		err error
	)
	if r.transactions {
		id, err = r.inTransaction(ctx, insert)
	} else {
		id, err = insert(ctx)
	}
	if err != nil {
		return model.InsertResult{}, err
	}
	return model.InsertResult{Acknowledged: true, InsertedID: idString(id)}, nil
}

// insertBorrow re-checks the duplicate and the limit right before the insert.
func (r *Repository) insertBorrow(ctx context.Context, rec model.BorrowRecord, limit int) (any, error) {
	if r.transactions {
		// Touching the borrower document makes concurrent transactions of one user conflict.
		_, err := r.borrowers.UpdateOne(ctx,
			bson.M{model.FieldID: rec.UserEmail},
			bson.M{"$inc": bson.M{"seq": 1}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, fmt.Errorf("borrowers lock: %w", err)
		}
	}
	exists, err := r.BorrowExists(ctx, rec.UserEmail, rec.BookID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errs.ErrAlreadyBorrowed
	}
	n, err := r.CountBorrows(ctx, rec.UserEmail)
	if err != nil {
		return nil, err
	}
	if n >= limit {
		return nil, errs.ErrBorrowLimit
	}
	res, err := r.borrowed.InsertOne(ctx, borrowDoc(rec))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.ErrAlreadyBorrowed
		}
		return nil, fmt.Errorf("borrowedBooks insertOne: %w", err)
	}
	return res.InsertedID, nil
}

func (r *Repository) inTransaction(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	sess, err := r.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.Background())
	return sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return fn(sc)
	})
}

func (r *Repository) ListBorrows(ctx context.Context, email string) ([]model.BorrowRecord, error) {
	docs, err := findAll(ctx, r.borrowed, bson.M{model.FieldUserEmail: email})
	if err != nil {
		return nil, err
	}
	recs := make([]model.BorrowRecord, 0, len(docs))
	for _, doc := range docs {
		recs = append(recs, borrowFromDoc(doc))
	}
	return recs, nil
}

func (r *Repository) DeleteBorrow(ctx context.Context, id, email string) (model.DeleteResult, error) {
	oid, err := objectID(id)
	if err != nil {
		return model.DeleteResult{}, err
	}
	res, err := r.borrowed.DeleteOne(ctx, bson.M{model.FieldID: oid, model.FieldUserEmail: email})
	if err != nil {
		return model.DeleteResult{}, fmt.Errorf("borrowedBooks deleteOne: %w", err)
	}
	return model.DeleteResult{Acknowledged: true, DeletedCount: res.DeletedCount}, nil
}
