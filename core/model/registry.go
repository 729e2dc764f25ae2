package model

import (
	"fmt"
	"strings"
	"sync"

	"github.com/relabs-tech/autorest/core"
)

// RecordType is a named schema describing one kind of persisted record
type RecordType struct {
	Name string
	*Schema
}

// Collection returns the store collection name of the record type, the
// lower-cased plural of its name
func (rt *RecordType) Collection() string {
	return core.Plural(strings.ToLower(rt.Name))
}

// Registry holds record types in registration order
type Registry struct {
	mutex  sync.RWMutex
	types  []*RecordType
	byName map[string]*RecordType
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*RecordType{}}
}

// Register adds a record type. Names must be unique.
func (r *Registry) Register(name string, schema *Schema) (*RecordType, error) {
	if name == "" {
		return nil, fmt.Errorf("record type without name")
	}
	if schema == nil {
		return nil, fmt.Errorf("record type %s has no schema", name)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("record type %s already registered", name)
	}
	rt := &RecordType{Name: name, Schema: schema}
	r.types = append(r.types, rt)
	r.byName[name] = rt
	return rt, nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(name string, schema *Schema) *RecordType {
	rt, err := r.Register(name, schema)
	if err != nil {
		panic(err)
	}
	return rt
}

// Lookup returns the record type with the given name
func (r *Registry) Lookup(name string) (*RecordType, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	rt, ok := r.byName[name]
	return rt, ok
}

// Types returns a snapshot of all record types in registration order
func (r *Registry) Types() []*RecordType {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	types := make([]*RecordType, len(r.types))
	copy(types, r.types)
	return types
}
