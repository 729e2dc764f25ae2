package model

import (
	"sort"

	"github.com/google/uuid"
)

// GeoField returns the name of the field carrying a geospatial index. Explicit
// index declarations are scanned first, an inline index marker on a field takes
// precedence.
func (s *Schema) GeoField() (string, bool) {
	geoField := ""
	for _, index := range s.indexes {
		keys := make([]string, 0, len(index))
		for key := range index {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if index[key] == GeoIndex {
				geoField = key
				break
			}
		}
	}
	for _, f := range s.fields {
		if f.Index == GeoIndex {
			geoField = f.Name
		}
	}
	return geoField, geoField != ""
}

// SubDocumentFields returns all fields which hold an array of nested documents
func (s *Schema) SubDocumentFields() []*Field {
	var fields []*Field
	for _, f := range s.fields {
		if f.IsSubDocumentArray() {
			fields = append(fields, f)
		}
	}
	return fields
}

// Blank returns a document with every field set to its default, or nil if the field
// has no default. Arrays are empty. Deferred defaults are evaluated now. Bookkeeping
// fields are not part of a blank document.
func (s *Schema) Blank() map[string]interface{} {
	blank := make(map[string]interface{}, len(s.fields))
	for _, f := range s.fields {
		blank[f.Name] = f.defaultValue()
	}
	return blank
}

// ApplyDefaults sets all missing fields which have a default. Missing arrays become
// empty arrays. Nested documents get their own defaults and, inside arrays, an
// identifier if they lack one.
func (s *Schema) ApplyDefaults(doc map[string]interface{}) {
	for _, f := range s.fields {
		value, ok := doc[f.Name]
		if !ok || value == nil {
			if def := f.defaultValue(); def != nil {
				doc[f.Name] = def
			}
			continue
		}
		if f.Schema == nil {
			continue
		}
		if f.Array {
			if elements, ok := value.([]interface{}); ok {
				for _, element := range elements {
					if sub, ok := element.(map[string]interface{}); ok {
						f.Schema.ApplyDefaults(sub)
						if _, ok := sub[IDField]; !ok {
							sub[IDField] = NewID()
						}
					}
				}
			}
		} else if sub, ok := value.(map[string]interface{}); ok {
			f.Schema.ApplyDefaults(sub)
		}
	}
}

// NewID returns a new record identifier
func NewID() string {
	return uuid.New().String()
}

func (f *Field) defaultValue() interface{} {
	if f.Default == nil {
		if f.Array {
			return []interface{}{}
		}
		return nil
	}
	if fn, ok := f.Default.(func() interface{}); ok {
		return fn()
	}
	return copyValue(f.Default)
}

func copyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		c := make(map[string]interface{}, len(v))
		for key, value := range v {
			c[key] = copyValue(value)
		}
		return c
	case []interface{}:
		c := make([]interface{}, len(v))
		for i, value := range v {
			c[i] = copyValue(value)
		}
		return c
	case []string:
		c := make([]interface{}, len(v))
		for i, value := range v {
			c[i] = value
		}
		return c
	}
	return value
}
