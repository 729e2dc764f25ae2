package model

import "fmt"

// Relationship is a bidirectional link between a reference field of one record
// type and a reference field on the related type pointing back.
type Relationship struct {
	Type         string
	Field        string
	FieldArray   bool
	RelatedType  string
	RelatedField string
	RelatedArray bool
}

// Relationships derives the relationships of rt. For every field of rt referencing
// another record type, each field on that type referencing rt back forms one
// relationship. Both sides track their cardinality independently, so one-to-many and
// many-to-many links are supported.
func (r *Registry) Relationships(rt *RecordType) ([]Relationship, error) {
	var relationships []Relationship
	for _, f := range rt.fields {
		if !f.IsReference() {
			continue
		}
		related, ok := r.Lookup(f.Ref)
		if !ok {
			return nil, fmt.Errorf("%s.%s references unknown record type %s", rt.Name, f.Name, f.Ref)
		}
		for _, rf := range related.fields {
			if rf.Ref != rt.Name {
				continue
			}
			relationships = append(relationships, Relationship{
				Type:         rt.Name,
				Field:        f.Name,
				FieldArray:   f.Array,
				RelatedType:  related.Name,
				RelatedField: rf.Name,
				RelatedArray: rf.Array,
			})
		}
	}
	return relationships, nil
}
