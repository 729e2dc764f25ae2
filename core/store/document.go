package store

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Copy returns a deep copy of a document
func Copy(doc Document) Document {
	if doc == nil {
		return nil
	}
	return CopyValue(doc).(Document)
}

// CopyValue returns a deep copy of a JSON-like value
func CopyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		c := make(map[string]interface{}, len(v))
		for key, value := range v {
			c[key] = CopyValue(value)
		}
		return c
	case []interface{}:
		c := make([]interface{}, len(v))
		for i, value := range v {
			c[i] = CopyValue(value)
		}
		return c
	}
	return value
}

// Lookup resolves a dotted path like "author.name" in doc. Array elements along
// the path are addressed by number or, if the path continues with a field name,
// all elements contribute.
func Lookup(doc Document, path string) ([]interface{}, bool) {
	return lookup(doc, strings.Split(path, "."))
}

func lookup(value interface{}, path []string) ([]interface{}, bool) {
	if len(path) == 0 {
		return []interface{}{value}, true
	}
	switch v := value.(type) {
	case map[string]interface{}:
		next, ok := v[path[0]]
		if !ok {
			return nil, false
		}
		return lookup(next, path[1:])
	case []interface{}:
		if i, err := strconv.Atoi(path[0]); err == nil {
			if i < 0 || i >= len(v) {
				return nil, false
			}
			return lookup(v[i], path[1:])
		}
		var values []interface{}
		found := false
		for _, element := range v {
			if sub, ok := lookup(element, path); ok {
				values = append(values, sub...)
				found = true
			}
		}
		return values, found
	}
	return nil, false
}

// Equal compares two JSON-like values. Numbers compare by value regardless of
// their Go type.
func Equal(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values. Values of different kinds are ordered
// null < numbers < strings < objects < arrays < booleans < dates, the way MongoDB
// sorts mixed types.
func Compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 5:
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case 6:
		ta, tb := a.(time.Time), b.(time.Time)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		}
	}
	return 0
}

func rank(value interface{}) int {
	if _, ok := toFloat(value); ok {
		return 1
	}
	switch value.(type) {
	case nil:
		return 0
	case string:
		return 2
	case map[string]interface{}:
		return 3
	case []interface{}:
		return 4
	case bool:
		return 5
	case time.Time:
		return 6
	}
	return 7
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// ApplyUpdate applies update to doc in place. It is used by stores which do not
// have native update operators.
func ApplyUpdate(doc Document, update *Update) {
	if update == nil {
		return
	}
	for key, value := range update.Set {
		doc[key] = CopyValue(value)
	}
	for _, key := range update.Unset {
		delete(doc, key)
	}
	for key, value := range update.AddToSet {
		elements, _ := doc[key].([]interface{})
		found := false
		for _, element := range elements {
			if Equal(element, value) {
				found = true
				break
			}
		}
		if !found {
			elements = append(elements, CopyValue(value))
		}
		if elements == nil {
			elements = []interface{}{}
		}
		doc[key] = elements
	}
	for key, value := range update.Pull {
		elements, ok := doc[key].([]interface{})
		if !ok {
			continue
		}
		kept := make([]interface{}, 0, len(elements))
		for _, element := range elements {
			if !Equal(element, value) {
				kept = append(kept, element)
			}
		}
		doc[key] = kept
	}
}

// Population replaces the identifiers stored in Field by the referenced documents
// from Collection
type Population struct {
	Field      string
	Collection string
}

// Populate resolves references in docs in place. A single reference to a missing
// document becomes null, missing documents in reference arrays are dropped.
func Populate(ctx context.Context, s Store, docs []Document, populate []Population) error {
	for _, p := range populate {
		cache := map[string]Document{}
		resolve := func(id interface{}) (Document, error) {
			key, ok := id.(string)
			if !ok {
				return nil, nil
			}
			if doc, ok := cache[key]; ok {
				return doc, nil
			}
			doc, err := s.FindByID(ctx, p.Collection, key)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			cache[key] = doc
			return doc, nil
		}
		for _, doc := range docs {
			value, ok := doc[p.Field]
			if !ok || value == nil {
				continue
			}
			if ids, ok := value.([]interface{}); ok {
				populated := make([]interface{}, 0, len(ids))
				for _, id := range ids {
					related, err := resolve(id)
					if err != nil {
						return err
					}
					if related != nil {
						populated = append(populated, Copy(related))
					}
				}
				doc[p.Field] = populated
				continue
			}
			related, err := resolve(value)
			if err != nil {
				return err
			}
			if related == nil {
				doc[p.Field] = nil
			} else {
				doc[p.Field] = Copy(related)
			}
		}
	}
	return nil
}
