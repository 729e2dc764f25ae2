package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValidationError is returned when a document violates its schema. It is
// passed to clients as structured JSON.
type ValidationError struct {
	Name    string                     `json:"name"`
	Message string                     `json:"message"`
	Errors  map[string]*ValidatorError `json:"errors"`
}

// ValidatorError describes the violation at a single path
type ValidatorError struct {
	Name    string      `json:"name"`
	Kind    string      `json:"kind"`
	Path    string      `json:"path"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

func (e *ValidationError) Error() string {
	paths := make([]string, 0, len(e.Errors))
	for path := range e.Errors {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	messages := make([]string, len(paths))
	for i, path := range paths {
		messages[i] = e.Errors[path].Message
	}
	return e.Message + ": " + strings.Join(messages, ", ")
}

func (e *ValidationError) add(path string, verr *ValidatorError) {
	if e.Errors == nil {
		e.Errors = map[string]*ValidatorError{}
	}
	e.Errors[path] = verr
}

func (e *ValidationError) finish() *ValidationError {
	e.Name = "ValidationError"
	e.Message = "Validation failed"
	return e
}

// NewValidationError returns a validation error with a single violation
func NewValidationError(path, kind, message string) *ValidationError {
	verr := &ValidationError{}
	verr.add(path, &ValidatorError{Name: "ValidatorError", Kind: kind, Path: path, Message: message})
	return verr.finish()
}

// Validate checks doc against the schema: required fields, enums and custom
// validators, recursively into nested documents. If the document is valid, the
// pre-save functions of nested documents and then of the schema itself are called.
// The first pre-save error is returned as is.
func (s *Schema) Validate(doc map[string]interface{}) error {
	verr := &ValidationError{}
	s.validate(doc, "", verr)
	if len(verr.Errors) > 0 {
		return verr.finish()
	}
	return s.preSave(doc)
}

func (s *Schema) validate(doc map[string]interface{}, prefix string, verr *ValidationError) {
	for _, f := range s.fields {
		path := prefix + f.Name
		value := doc[f.Name]
		if f.Required && isEmpty(value) {
			verr.add(path, &ValidatorError{
				Name:    "ValidatorError",
				Kind:    "required",
				Path:    path,
				Message: fmt.Sprintf("Path `%s` is required.", path),
			})
			continue
		}
		if value == nil {
			continue
		}
		if f.Schema != nil {
			if f.Array {
				elements, _ := value.([]interface{})
				for i, element := range elements {
					if sub, ok := element.(map[string]interface{}); ok {
						f.Schema.validate(sub, path+"."+strconv.Itoa(i)+".", verr)
					}
				}
			} else if sub, ok := value.(map[string]interface{}); ok {
				f.Schema.validate(sub, path+".", verr)
			}
			continue
		}
		values := []interface{}{value}
		if f.Array {
			values, _ = value.([]interface{})
		}
		for _, v := range values {
			if msg, ok := f.check(path, v); !ok {
				verr.add(path, msg)
				break
			}
		}
	}
}

func (f *Field) check(path string, value interface{}) (*ValidatorError, bool) {
	if len(f.Enum) > 0 {
		s, _ := value.(string)
		found := false
		for _, e := range f.Enum {
			if s == e {
				found = true
				break
			}
		}
		if !found {
			return &ValidatorError{
				Name:    "ValidatorError",
				Kind:    "enum",
				Path:    path,
				Value:   value,
				Message: fmt.Sprintf("`%v` is not a valid enum value for path `%s`.", value, path),
			}, false
		}
	}
	for _, validator := range f.Validators {
		if validator.Validate == nil || validator.Validate(value) {
			continue
		}
		message := validator.Message
		if message == "" {
			message = fmt.Sprintf("Validator failed for path `%s` with value `%v`", path, value)
		}
		return &ValidatorError{
			Name:    "ValidatorError",
			Kind:    "user defined",
			Path:    path,
			Value:   value,
			Message: message,
		}, false
	}
	return nil, true
}

func (s *Schema) preSave(doc map[string]interface{}) error {
	for _, f := range s.fields {
		if f.Schema == nil {
			continue
		}
		switch value := doc[f.Name].(type) {
		case []interface{}:
			for _, element := range value {
				if sub, ok := element.(map[string]interface{}); ok {
					if err := f.Schema.preSave(sub); err != nil {
						return err
					}
				}
			}
		case map[string]interface{}:
			if err := f.Schema.preSave(value); err != nil {
				return err
			}
		}
	}
	for _, preSave := range s.preSaves {
		if err := preSave(doc); err != nil {
			return err
		}
	}
	return nil
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}
