package backend

import (
	"context"

	"github.com/relabs-tech/autorest/core/logger"
	"github.com/relabs-tech/autorest/core/model"
	"github.com/relabs-tech/autorest/core/store"
)

// relate adds the identifier of a new record to the inverse field of every record it
// references. Array fields get the identifier added to the set, single fields are set.
func (b *Backend) relate(ctx context.Context, rc *Resource, doc store.Document) {
	id := doc[model.IDField]
	for _, rel := range rc.relationships {
		update := &store.Update{}
		if rel.RelatedArray {
			update.AddToSet = store.Document{rel.RelatedField: id}
		} else {
			update.Set = store.Document{rel.RelatedField: id}
		}
		b.updateRelated(ctx, rel, references(doc[rel.Field]), update)
	}
}

// unrelate removes the identifier of a deleted record from the inverse field of every
// record it referenced
func (b *Backend) unrelate(ctx context.Context, rc *Resource, doc store.Document) {
	id := doc[model.IDField]
	for _, rel := range rc.relationships {
		update := &store.Update{}
		if rel.RelatedArray {
			update.Pull = store.Document{rel.RelatedField: id}
		} else {
			update.Unset = []string{rel.RelatedField}
		}
		b.updateRelated(ctx, rel, references(doc[rel.Field]), update)
	}
}

// updateRelated applies update to each referenced record concurrently. The updates
// outlive the request; failures are logged only.
func (b *Backend) updateRelated(ctx context.Context, rel model.Relationship, ids []string, update *store.Update) {
	related, ok := b.registry.Lookup(rel.RelatedType)
	if !ok {
		return
	}
	ctx = context.WithoutCancel(ctx)
	rlog := logger.FromContext(ctx)
	for _, id := range ids {
		b.pending.Add(1)
		go func(id string) {
			defer b.pending.Done()
			err := b.store.FindByIDAndUpdate(ctx, related.Collection(), id, update)
			if err != nil {
				rlog.WithError(err).Warnf("cannot update %s.%s of %s for relationship with %s.%s",
					rel.RelatedType, rel.RelatedField, id, rel.Type, rel.Field)
			}
		}(id)
	}
}

// references returns the identifiers held by a reference field. Populated references
// contribute their _id.
func references(value interface{}) []string {
	var ids []string
	add := func(v interface{}) {
		switch ref := v.(type) {
		case string:
			if ref != "" {
				ids = append(ids, ref)
			}
		case map[string]interface{}:
			if id, ok := ref[model.IDField].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
	}
	if list, ok := value.([]interface{}); ok {
		for _, v := range list {
			add(v)
		}
	} else {
		add(value)
	}
	return ids
}
