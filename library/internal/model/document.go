package model

import (
	"errors"
	"fmt"
	"math"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Wire names shared with the front end and the Mongo collections.
const (
	FieldID        = "_id"
	FieldCategory  = "bookCategory"
	FieldQuantity  = "bookQuantity"
	FieldUserEmail = "userEmail"
	FieldBookID    = "bookId"
)

var errNotObject = errors.New("document must be a json object")

// Attributes hold the document fields the service does not interpret
// (bookName, authorName, borrowDate, ...). They are stored and returned verbatim.
type Attributes map[string]any

func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// decodeDocument parses a json object, dropping any client supplied _id.
func decodeDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errNotObject
	}
	delete(doc, FieldID)
	return doc, nil
}

// encodeDocument merges the known fields over the attributes.
func encodeDocument(attrs Attributes, known map[string]any) ([]byte, error) {
	doc := make(map[string]any, len(attrs)+len(known))
	for k, v := range attrs {
		doc[k] = v
	}
	for k, v := range known {
		doc[k] = v
	}
	return json.Marshal(doc)
}

func takeString(doc map[string]any, key string) (*string, error) {
	v, ok := doc[key]
	if !ok {
		return nil, nil
	}
	delete(doc, key)
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%s must be a string", key)
	}
	return &s, nil
}

func takeInt(doc map[string]any, key string) (*int, error) {
	v, ok := doc[key]
	if !ok {
		return nil, nil
	}
	delete(doc, key)
	if v == nil {
		return nil, nil
	}
	var i int64
	switch n := v.(type) {
	case interface{ Int64() (int64, error) }:
		var err error
		if i, err = n.Int64(); err != nil {
			return nil, fmt.Errorf("%s must be an integer", key)
		}
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("%s must be an integer", key)
		}
		i = int64(n)
	default:
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	res := int(i)
	return &res, nil
}

func attributesOf(doc map[string]any) Attributes {
	if len(doc) == 0 {
		return nil
	}
	return Attributes(doc)
}
