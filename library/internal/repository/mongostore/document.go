package mongostore

import (
	"fmt"
	"math"

	"github.com/Astemirdum/bookhub/library/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// takeString and takeInt move a field out of doc only when it holds the
// expected type; anything else is left behind as an attribute.
func takeString(doc bson.M, key string) (string, bool) {
	s, ok := doc[key].(string)
	if ok {
		delete(doc, key)
	}
	return s, ok
}

func takeInt(doc bson.M, key string) (int, bool) {
	n, ok := toInt(doc[key])
	if ok {
		delete(doc, key)
	}
	return n, ok
}

func takeID(doc bson.M) string {
	id := idString(doc[model.FieldID])
	delete(doc, model.FieldID)
	return id
}

func restOf(doc bson.M) model.Attributes {
	if len(doc) == 0 {
		return nil
	}
	return model.Attributes(doc)
}

func bookFromDoc(doc bson.M) model.Book {
	b := model.Book{ID: takeID(doc)}
	if s, ok := takeString(doc, model.FieldCategory); ok {
		b.Category = &s
	}
	if n, ok := takeInt(doc, model.FieldQuantity); ok {
		b.Quantity = &n
	}
	b.Attrs = restOf(doc)
	return b
}

func borrowFromDoc(doc bson.M) model.BorrowRecord {
	r := model.BorrowRecord{ID: takeID(doc)}
	r.UserEmail, _ = takeString(doc, model.FieldUserEmail)
	r.BookID, _ = takeString(doc, model.FieldBookID)
	r.Attrs = restOf(doc)
	return r
}

func attrsDoc(attrs model.Attributes, extra int) bson.M {
	doc := make(bson.M, len(attrs)+extra)
	for k, v := range attrs {
		doc[k] = normalize(v)
	}
	return doc
}

func bookDoc(b model.Book) bson.M {
	doc := attrsDoc(b.Attrs, 2)
	if b.Category != nil {
		doc[model.FieldCategory] = *b.Category
	}
	if b.Quantity != nil {
		doc[model.FieldQuantity] = *b.Quantity
	}
	return doc
}

func borrowDoc(r model.BorrowRecord) bson.M {
	doc := attrsDoc(r.Attrs, 2)
	doc[model.FieldUserEmail] = r.UserEmail
	doc[model.FieldBookID] = r.BookID
	return doc
}

func patchDoc(p model.BookPatch) bson.M {
	doc := attrsDoc(p.Attrs, 2)
	if p.Category != nil {
		doc[model.FieldCategory] = *p.Category
	}
	if p.Quantity != nil {
		doc[model.FieldQuantity] = *p.Quantity
	}
	return doc
}

// number is satisfied by json.Number and jsoniter.Number.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// normalize turns decoded json numbers into int64 or float64; the bson encoder
// would otherwise store them as strings.
func normalize(v any) any {
	switch t := v.(type) {
	case number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(bson.M, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}
