package model

// Book is a catalog entry. Category and Quantity are nil when the stored
// document does not carry them in the expected type; such values stay in Attrs.
type Book struct {
	ID       string
	Category *string
	Quantity *int
	Attrs    Attributes
}

func String(s string) *string { return &s }

func Int(n int) *int { return &n }

// Copies is the number of copies on the shelf, 0 when unknown.
func (b Book) Copies() int {
	if b.Quantity == nil {
		return 0
	}
	return *b.Quantity
}

func (b Book) MarshalJSON() ([]byte, error) {
	known := make(map[string]any, 3)
	if b.ID != "" {
		known[FieldID] = b.ID
	}
	if b.Category != nil {
		known[FieldCategory] = *b.Category
	}
	if b.Quantity != nil {
		known[FieldQuantity] = *b.Quantity
	}
	return encodeDocument(b.Attrs, known)
}

func (b *Book) UnmarshalJSON(data []byte) error {
	var p BookPatch
	if err := p.UnmarshalJSON(data); err != nil {
		return err
	}
	*b = Book{Category: p.Category, Quantity: p.Quantity, Attrs: p.Attrs}
	return nil
}

func (b Book) Clone() Book {
	if b.Category != nil {
		b.Category = String(*b.Category)
	}
	if b.Quantity != nil {
		b.Quantity = Int(*b.Quantity)
	}
	b.Attrs = b.Attrs.Clone()
	return b
}

// BookPatch is a $set style update: nil fields are left untouched.
type BookPatch struct {
	Category *string
	Quantity *int
	Attrs    Attributes
}

func (p *BookPatch) UnmarshalJSON(data []byte) error {
	doc, err := decodeDocument(data)
	if err != nil {
		return err
	}
	category, err := takeString(doc, FieldCategory)
	if err != nil {
		return err
	}
	quantity, err := takeInt(doc, FieldQuantity)
	if err != nil {
		return err
	}
	*p = BookPatch{
		Category: category,
		Quantity: quantity,
		Attrs:    attributesOf(doc),
	}
	return nil
}

// Apply merges the patch into b. A typed field replaces any raw value
// kept under the same key in Attrs.
func (p BookPatch) Apply(b Book) Book {
	b = b.Clone()
	if p.Category != nil {
		b.Category = String(*p.Category)
		delete(b.Attrs, FieldCategory)
	}
	if p.Quantity != nil {
		b.Quantity = Int(*p.Quantity)
		delete(b.Attrs, FieldQuantity)
	}
	if len(p.Attrs) > 0 && b.Attrs == nil {
		b.Attrs = make(Attributes, len(p.Attrs))
	}
	for k, v := range p.Attrs {
		b.Attrs[k] = v
	}
	return b
}

// BorrowRecord is one active loan of one book to one user.
type BorrowRecord struct {
	ID        string
	UserEmail string `validate:"required"`
	BookID    string `validate:"required"`
	Attrs     Attributes
}

func (r BorrowRecord) MarshalJSON() ([]byte, error) {
	known := map[string]any{
		FieldUserEmail: r.UserEmail,
		FieldBookID:    r.BookID,
	}
	if r.ID != "" {
		known[FieldID] = r.ID
	}
	return encodeDocument(r.Attrs, known)
}

func (r *BorrowRecord) UnmarshalJSON(data []byte) error {
	doc, err := decodeDocument(data)
	if err != nil {
		return err
	}
	email, err := takeString(doc, FieldUserEmail)
	if err != nil {
		return err
	}
	bookID, err := takeString(doc, FieldBookID)
	if err != nil {
		return err
	}
	*r = BorrowRecord{Attrs: attributesOf(doc)}
	if email != nil {
		r.UserEmail = *email
	}
	if bookID != nil {
		r.BookID = *bookID
	}
	return nil
}

func (r BorrowRecord) Clone() BorrowRecord {
	r.Attrs = r.Attrs.Clone()
	return r
}

type BookFilter struct {
	Category      string
	OnlyAvailable bool
}

// Match applies the filter to a single book; stores without query support use it.
func (f BookFilter) Match(b Book) bool {
	if f.Category != "" && (b.Category == nil || *b.Category != f.Category) {
		return false
	}
	if f.OnlyAvailable && b.Copies() <= 0 {
		return false
	}
	return true
}

// Store results keep the shape the front end already reads from the Mongo driver.

type InsertResult struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

type UpdateResult struct {
	Acknowledged  bool    `json:"acknowledged"`
	MatchedCount  int64   `json:"matchedCount"`
	ModifiedCount int64   `json:"modifiedCount"`
	UpsertedCount int64   `json:"upsertedCount"`
	UpsertedID    *string `json:"upsertedId"`
}

type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}
