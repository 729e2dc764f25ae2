// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package model

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// FieldType is the semantic type of a field
type FieldType string

// all supported field types
const (
	Mixed    FieldType = ""
	String   FieldType = "String"
	Number   FieldType = "Number"
	Boolean  FieldType = "Boolean"
	Date     FieldType = "Date"
	ObjectID FieldType = "ObjectId"
	Point    FieldType = "Point" // GeoJSON point, {"type":"Point","coordinates":[lon,lat]}
)

// Internal bookkeeping fields present on every record
const (
	IDField      = "_id"
	VersionField = "__v"
)

// GeoIndex is the index kind which marks a field for geospatial proximity queries
const GeoIndex = "2dsphere"

// Validator is a custom field validator. Validate returns false for invalid values.
type Validator struct {
	Message  string
	Validate func(value interface{}) bool
}

// Field describes a single field of a schema.
//
// Default is either a static value or a func() interface{}, which is evaluated
// every time a default is needed.
type Field struct {
	Name       string
	Type       FieldType
	Required   bool
	Default    interface{}
	Ref        string  // name of the referenced record type
	Array      bool    // the field holds a list of values
	Schema     *Schema // nested schema, with Array a list of sub-documents
	Enum       []string
	Index      string // inline index marker, e.g. "1" or "2dsphere"
	Validators []Validator
}

// IsSubDocumentArray returns true if the field is an array of nested documents
func (f *Field) IsSubDocumentArray() bool {
	return f.Schema != nil && f.Array
}

// IsNested returns true if the field holds a single nested document
func (f *Field) IsNested() bool {
	return f.Schema != nil && !f.Array
}

// IsReference returns true if the field refers to another record type
func (f *Field) IsReference() bool {
	return f.Ref != ""
}

// Method is an instance method exposed by a record type. It is invoked with the
// stored record, the request's query parameters and its body. The returned payload
// is sent to the client.
type Method func(ctx context.Context, record map[string]interface{}, params map[string]string, body map[string]interface{}) (interface{}, error)

// PreSave is called with the document before it is written. A returned error
// aborts the write and is passed to the client as is.
type PreSave func(doc map[string]interface{}) error

// Schema is an explicit description of a document: an ordered list of fields
// plus index declarations, instance methods and pre-save functions.
type Schema struct {
	fields   []*Field
	byName   map[string]*Field
	indexes  []map[string]string
	methods  map[string]Method
	preSaves []PreSave
	// SchemaID optionally names a JSON schema every document must follow
	SchemaID string
}

// NewSchema creates a schema from fields. It panics if a field is unnamed or
// declared twice.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{
		byName:  map[string]*Field{},
		methods: map[string]Method{},
	}
	for i := range fields {
		f := fields[i]
		if f.Name == "" {
			panic(fmt.Sprintf("invalid schema: field %d has no name", i))
		}
		if f.Name == IDField || f.Name == VersionField {
			panic(fmt.Sprintf("invalid schema: field %s is reserved", f.Name))
		}
		if _, ok := s.byName[f.Name]; ok {
			panic(fmt.Sprintf("invalid schema: duplicate field %s", f.Name))
		}
		if f.Schema != nil && f.Schema == s {
			panic(fmt.Sprintf("invalid schema: field %s nests its own schema", f.Name))
		}
		s.fields = append(s.fields, &f)
		s.byName[f.Name] = &f
	}
	return s
}

// AddIndex declares an index, e.g. {"location": "2dsphere"}
func (s *Schema) AddIndex(index map[string]string) *Schema {
	s.indexes = append(s.indexes, index)
	return s
}

// AddMethod adds a named instance method
func (s *Schema) AddMethod(name string, method Method) *Schema {
	s.methods[name] = method
	return s
}

// AddPreSave adds a function which is called before a document is written
func (s *Schema) AddPreSave(preSave PreSave) *Schema {
	s.preSaves = append(s.preSaves, preSave)
	return s
}

// WithSchemaID sets the JSON schema for documents
func (s *Schema) WithSchemaID(schemaID string) *Schema {
	s.SchemaID = schemaID
	return s
}

// Fields returns the fields in declaration order
func (s *Schema) Fields() []*Field {
	fields := make([]*Field, len(s.fields))
	copy(fields, s.fields)
	return fields
}

// Field returns the field with the given name
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Method returns the named instance method
func (s *Schema) Method(name string) (Method, bool) {
	m, ok := s.methods[name]
	return m, ok
}

// MethodNames returns the names of all instance methods, sorted
func (s *Schema) MethodNames() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Now is a deferred default which evaluates to the current time
func Now() interface{} {
	return time.Now().UTC()
}
