// Package memory is an in-process store. It is the store of choice for tests and
// small deployments; documents are lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/relabs-tech/autorest/core/store"
)

type collection struct {
	ids  []string
	docs map[string]store.Document
}

// Store keeps documents in memory, in insertion order. It is safe for concurrent use.
type Store struct {
	mutex       sync.RWMutex
	collections map[string]*collection
}

// New returns an empty memory store
func New() *Store {
	return &Store{collections: map[string]*collection{}}
}

func (s *Store) collection(name string, create bool) *collection {
	c, ok := s.collections[name]
	if !ok && create {
		c = &collection{docs: map[string]store.Document{}}
		s.collections[name] = c
	}
	return c
}

// Find implements store.Store. A $nearSphere condition sorts by distance unless an
// explicit sort is given.
func (s *Store) Find(ctx context.Context, name string, q *store.Query) ([]store.Document, error) {
	if q == nil {
		q = &store.Query{}
	}
	near, err := store.FindNear(q.Filter)
	if err != nil {
		return nil, err
	}

	s.mutex.RLock()
	matched, err := s.match(name, q.Filter)
	s.mutex.RUnlock()
	if err != nil {
		return nil, err
	}

	switch {
	case len(q.Sort) > 0:
		sort.SliceStable(matched, func(i, j int) bool {
			for _, sf := range q.Sort {
				c := store.Compare(sortValue(matched[i], sf), sortValue(matched[j], sf))
				if c == 0 {
					continue
				}
				if sf.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	case near != nil:
		distances := make(map[string]float64, len(matched))
		for _, doc := range matched {
			values, _ := store.Lookup(doc, near.Field)
			if len(values) > 0 {
				distances[doc["_id"].(string)], _ = near.DistanceTo(values[0])
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return distances[matched[i]["_id"].(string)] < distances[matched[j]["_id"].(string)]
		})
	}

	if q.Skip > 0 {
		if q.Skip >= int64(len(matched)) {
			matched = matched[:0]
		} else {
			matched = matched[q.Skip:]
		}
	}
	if q.Limit > 0 && q.Limit < int64(len(matched)) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// sortValue picks the value a document is sorted by. Arrays sort by their smallest
// element ascending and their largest descending.
func sortValue(doc store.Document, sf store.SortField) interface{} {
	values, ok := store.Lookup(doc, sf.Field)
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	elements, ok := value.([]interface{})
	if !ok || len(elements) == 0 {
		return value
	}
	pick := elements[0]
	for _, element := range elements[1:] {
		c := store.Compare(element, pick)
		if (sf.Descending && c > 0) || (!sf.Descending && c < 0) {
			pick = element
		}
	}
	return pick
}

// match returns copies of all documents matching filter. Callers must hold the lock.
func (s *Store) match(name string, filter store.Document) ([]store.Document, error) {
	c := s.collection(name, false)
	matched := []store.Document{}
	if c == nil {
		return matched, nil
	}
	for _, id := range c.ids {
		doc := c.docs[id]
		ok, err := store.Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, store.Copy(doc))
		}
	}
	return matched, nil
}

// Count implements store.Store
func (s *Store) Count(ctx context.Context, name string, filter store.Document) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	matched, err := s.match(name, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Distinct implements store.Store
func (s *Store) Distinct(ctx context.Context, name, field string, filter store.Document) ([]interface{}, error) {
	s.mutex.RLock()
	matched, err := s.match(name, filter)
	s.mutex.RUnlock()
	if err != nil {
		return nil, err
	}
	distinct := []interface{}{}
	add := func(value interface{}) {
		for _, existing := range distinct {
			if store.Equal(existing, value) {
				return
			}
		}
		distinct = append(distinct, value)
	}
	for _, doc := range matched {
		values, ok := store.Lookup(doc, field)
		if !ok {
			continue
		}
		for _, value := range values {
			if elements, ok := value.([]interface{}); ok {
				for _, element := range elements {
					add(element)
				}
				continue
			}
			add(value)
		}
	}
	return distinct, nil
}

// FindByID implements store.Store
func (s *Store) FindByID(ctx context.Context, name, id string) (store.Document, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	c := s.collection(name, false)
	if c == nil {
		return nil, store.ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Copy(doc), nil
}

// FindByIDAndRemove implements store.Store
func (s *Store) FindByIDAndRemove(ctx context.Context, name, id string) (store.Document, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c := s.collection(name, false)
	if c == nil {
		return nil, store.ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(c.docs, id)
	for i := range c.ids {
		if c.ids[i] == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			break
		}
	}
	return doc, nil
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, name string, doc store.Document) error {
	id, ok := doc["_id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("document has no _id")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c := s.collection(name, true)
	if _, ok := c.docs[id]; ok {
		return fmt.Errorf("%w %s in collection %s", store.ErrDuplicateKey, id, name)
	}
	c.ids = append(c.ids, id)
	c.docs[id] = store.Copy(doc)
	return nil
}

// Save implements store.Store
func (s *Store) Save(ctx context.Context, name string, doc store.Document) error {
	id, _ := doc["_id"].(string)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c := s.collection(name, false)
	if c == nil {
		return store.ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return store.ErrNotFound
	}
	c.docs[id] = store.Copy(doc)
	return nil
}

// FindByIDAndUpdate implements store.Store
func (s *Store) FindByIDAndUpdate(ctx context.Context, name, id string, update *store.Update) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c := s.collection(name, false)
	if c == nil {
		return store.ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	store.ApplyUpdate(doc, update)
	return nil
}
