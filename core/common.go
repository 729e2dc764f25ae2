// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operation represents a record operation, one of Search, Create, Read, Update, Delete
type Operation string

// all supported record operations
const (
	OperationSearch Operation = "search"
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Operations lists all operations in their canonical order
var Operations = []Operation{OperationSearch, OperationCreate, OperationRead, OperationUpdate, OperationDelete}

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	if !o.Valid() {
		return fmt.Errorf("%s is not valid Operation", s)
	}
	return nil
}

// Valid returns true if o is one of the supported operations
func (o Operation) Valid() bool {
	switch o {
	case OperationSearch, OperationCreate, OperationRead, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

var irregularPlurals = map[string]string{
	"child":  "children",
	"person": "people",
	"man":    "men",
	"woman":  "women",
	"mouse":  "mice",
	"goose":  "geese",
	"foot":   "feet",
	"tooth":  "teeth",
}

var uncountables = map[string]bool{
	"data":        true,
	"equipment":   true,
	"information": true,
	"news":        true,
	"series":      true,
	"species":     true,
	"sheep":       true,
	"fish":        true,
}

// Plural returns the plural form of the passed singular string.
//
// This is the algorithm used to create idiomatic REST routes. The case of the
// input is preserved, so "Category" becomes "Categories".
func Plural(singular string) string {
	lower := strings.ToLower(singular)
	if uncountables[lower] {
		return singular
	}
	for from, to := range irregularPlurals {
		if !strings.HasSuffix(lower, from) {
			continue
		}
		stem := singular[:len(singular)-len(from)]
		tail := singular[len(singular)-len(from):]
		capitalized := strings.ToUpper(tail[:1]) == tail[:1]
		// only whole words: the entire name or a camel case word like "GrandChild"
		if stem != "" && !capitalized {
			continue
		}
		if capitalized {
			to = strings.ToUpper(to[:1]) + to[1:]
		}
		return stem + to
	}

	suffix := func(s string) bool { return strings.HasSuffix(lower, s) }
	switch {
	case suffix("y") && len(lower) > 1 && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])):
		return singular[:len(singular)-1] + "ies"
	case suffix("s"), suffix("x"), suffix("z"), suffix("ch"), suffix("sh"):
		return singular + "es"
	}
	return singular + "s"
}
