/*
Package store defines the persistence contract of the REST backend.

Documents are plain JSON-like maps. Filters use a small query dialect modeled on the
MongoDB query language:

	{"title": "Hello"}                            equality, matches any element of an array field
	{"views": {"$gt": 10, "$lte": 100}}           comparison with $eq $ne $gt $gte $lt $lte
	{"type": {"$in": ["article", "review"]}}      set membership with $in and $nin
	{"author": {"$exists": true}}                 presence
	{"title": {"$regex": "^Hel"}}                 regular expression
	{"$or": [{...}, {...}]}                        logical $and and $or
	{"location": {"$nearSphere": {"$geometry": {"type":"Point","coordinates":[lon,lat]}, "$maxDistance": 1000}}}

Stores that cannot evaluate an operator return ErrUnsupported.
*/
package store

import (
	"context"
	"errors"
)

// Document is a single stored record
type Document = map[string]interface{}

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// ErrUnsupported is returned when a store cannot evaluate a filter operator
var ErrUnsupported = errors.New("unsupported query operator")

// ErrInvalidFilter is returned when a filter is malformed, e.g. $in without array
var ErrInvalidFilter = errors.New("invalid filter")

// ErrDuplicateKey is returned by Insert if the identifier is taken
var ErrDuplicateKey = errors.New("duplicate key")

// SortField is one key of a sort specification
type SortField struct {
	Field      string
	Descending bool
}

// Query selects documents of a collection
type Query struct {
	Filter Document
	Sort   []SortField
	Skip   int64
	Limit  int64 // 0 means no limit
}

// Update is an atomic partial modification of a single document
type Update struct {
	Set      Document
	Unset    []string
	AddToSet Document // value is added to the array field unless present
	Pull     Document // value is removed from the array field
}

// IsEmpty returns true if the update modifies nothing
func (u *Update) IsEmpty() bool {
	return u == nil || (len(u.Set) == 0 && len(u.Unset) == 0 && len(u.AddToSet) == 0 && len(u.Pull) == 0)
}

// Store is the persistence backend. Identifiers are strings stored in the
// document's "_id" field.
type Store interface {
	// Find returns all documents matching q, sorted and paginated
	Find(ctx context.Context, collection string, q *Query) ([]Document, error)
	// Count returns the number of documents matching filter
	Count(ctx context.Context, collection string, filter Document) (int64, error)
	// Distinct returns the distinct values of field among documents matching filter.
	// Array fields contribute their elements.
	Distinct(ctx context.Context, collection, field string, filter Document) ([]interface{}, error)
	// FindByID returns a single document or ErrNotFound
	FindByID(ctx context.Context, collection, id string) (Document, error)
	// FindByIDAndRemove deletes a document and returns it, or ErrNotFound
	FindByIDAndRemove(ctx context.Context, collection, id string) (Document, error)
	// Insert stores a new document. It must carry an "_id".
	Insert(ctx context.Context, collection string, doc Document) error
	// Save replaces an existing document, or returns ErrNotFound
	Save(ctx context.Context, collection string, doc Document) error
	// FindByIDAndUpdate atomically applies update, or returns ErrNotFound
	FindByIDAndUpdate(ctx context.Context, collection, id string, update *Update) error
}
