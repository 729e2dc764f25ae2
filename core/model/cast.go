package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Cast converts the values of all declared fields of doc to their field type in place.
// Undeclared fields are left untouched. Values which cannot be converted are reported
// as a ValidationError with one CastError per path.
func (s *Schema) Cast(doc map[string]interface{}) error {
	verr := &ValidationError{}
	s.cast(doc, "", verr)
	if len(verr.Errors) > 0 {
		return verr.finish()
	}
	return nil
}

func (s *Schema) cast(doc map[string]interface{}, prefix string, verr *ValidationError) {
	for _, f := range s.fields {
		value, ok := doc[f.Name]
		if !ok || value == nil {
			continue
		}
		path := prefix + f.Name
		if f.Array {
			elements, ok := value.([]interface{})
			if !ok {
				elements = []interface{}{value}
			}
			casted := make([]interface{}, 0, len(elements))
			for i, element := range elements {
				elementPath := path + "." + strconv.Itoa(i)
				if f.Schema != nil {
					sub, ok := element.(map[string]interface{})
					if !ok {
						verr.add(elementPath, castError(elementPath, "embedded", element))
						continue
					}
					f.Schema.cast(sub, elementPath+".", verr)
					casted = append(casted, sub)
					continue
				}
				v, err := CastValue(f.Type, element)
				if err != nil {
					verr.add(elementPath, castError(elementPath, string(f.Type), element))
					continue
				}
				casted = append(casted, v)
			}
			doc[f.Name] = casted
			continue
		}
		if f.Schema != nil {
			sub, ok := value.(map[string]interface{})
			if !ok {
				verr.add(path, castError(path, "embedded", value))
				continue
			}
			f.Schema.cast(sub, path+".", verr)
			continue
		}
		v, err := CastValue(f.Type, value)
		if err != nil {
			verr.add(path, castError(path, string(f.Type), value))
			continue
		}
		doc[f.Name] = v
	}
}

func castError(path, kind string, value interface{}) *ValidatorError {
	return &ValidatorError{
		Name:    "CastError",
		Kind:    kind,
		Path:    path,
		Value:   value,
		Message: fmt.Sprintf("Cast to %s failed for value \"%v\" at path \"%s\"", kind, value, path),
	}
}

// CastValue converts a single value to the given type. Strings are parsed,
// numbers become float64, dates time.Time in UTC.
func CastValue(t FieldType, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch t {
	case String:
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
	case Number:
		switch v := value.(type) {
		case float64:
			return finite(v)
		case float32:
			return finite(float64(v))
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, err
			}
			return finite(f)
		}
	case Boolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case float64:
			if v == 0 || v == 1 {
				return v == 1, nil
			}
		case string:
			return strconv.ParseBool(v)
		}
	case Date:
		switch v := value.(type) {
		case time.Time:
			return v.UTC(), nil
		case float64:
			if _, err := finite(v); err != nil {
				return nil, err
			}
			return time.UnixMilli(int64(v)).UTC(), nil
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t.UTC(), nil
				}
			}
		}
	case ObjectID:
		switch v := value.(type) {
		case string:
			return v, nil
		case map[string]interface{}:
			// a populated reference is reduced to its identifier
			if id, ok := v[IDField].(string); ok {
				return id, nil
			}
		case fmt.Stringer:
			return v.String(), nil
		}
	case Point:
		return castPoint(value)
	case Mixed:
		return value, nil
	default:
		return value, nil
	}
	return nil, fmt.Errorf("cannot cast %T to %s", value, t)
}

// finite rejects NaN and infinities, which have no JSON representation
func finite(f float64) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

func castPoint(value interface{}) (interface{}, error) {
	var coordinates []interface{}
	switch v := value.(type) {
	case []interface{}:
		coordinates = v
	case map[string]interface{}:
		if kind, _ := v["type"].(string); kind != "Point" {
			return nil, fmt.Errorf("not a point")
		}
		coordinates, _ = v["coordinates"].([]interface{})
	}
	if len(coordinates) != 2 {
		return nil, fmt.Errorf("a point needs two coordinates")
	}
	casted := make([]interface{}, 2)
	for i, c := range coordinates {
		f, err := CastValue(Number, c)
		if err != nil {
			return nil, err
		}
		casted[i] = f
	}
	return map[string]interface{}{"type": "Point", "coordinates": casted}, nil
}
