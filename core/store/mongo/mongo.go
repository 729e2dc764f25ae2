// Package mongo is a store backed by a MongoDB database. Filters are passed to
// the server unchanged; the geospatial operators need a 2dsphere index on the
// queried field.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relabs-tech/autorest/core/logger"
	"github.com/relabs-tech/autorest/core/store"
)

// Store implements store.Store on a MongoDB database
type Store struct {
	db *mongo.Database
}

// New returns a store for the given database
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect connects to the MongoDB server at uri and returns a store for the named
// database. The client is disconnected when ctx is done.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	rlog := logger.FromContext(ctx)
	rlog.Infoln("connecting to mongodb database:", database)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = client.Ping(pingCtx, nil); err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = client.Disconnect(context.Background())
	}()
	return New(client.Database(database)), nil
}

// Database returns the underlying database
func (s *Store) Database() *mongo.Database {
	return s.db
}

// EnsureGeoIndex creates a 2dsphere index on field, which $nearSphere queries need
func (s *Store) EnsureGeoIndex(ctx context.Context, collection, field string) error {
	_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: "2dsphere"}},
	})
	return err
}

// Find implements store.Store
func (s *Store) Find(ctx context.Context, collection string, q *store.Query) ([]store.Document, error) {
	if q == nil {
		q = &store.Query{}
	}
	opts := options.Find()
	if len(q.Sort) > 0 {
		sort := bson.D{}
		for _, sf := range q.Sort {
			direction := 1
			if sf.Descending {
				direction = -1
			}
			sort = append(sort, bson.E{Key: sf.Field, Value: direction})
		}
		opts.SetSort(sort)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cursor, err := s.db.Collection(collection).Find(ctx, filterOf(q.Filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := []store.Document{}
	for cursor.Next(ctx) {
		var m bson.M
		if err = cursor.Decode(&m); err != nil {
			return nil, err
		}
		docs = append(docs, FromBSON(m))
	}
	return docs, cursor.Err()
}

// Count implements store.Store. Counting does not support $nearSphere, the
// condition is rewritten to the equivalent $geoWithin.
func (s *Store) Count(ctx context.Context, collection string, filter store.Document) (int64, error) {
	counted, err := countFilter(filter)
	if err != nil {
		return 0, err
	}
	return s.db.Collection(collection).CountDocuments(ctx, filterOf(counted))
}

// countFilter replaces a top-level $nearSphere by a $geoWithin sphere of its
// maximum distance, or drops it if the distance is unbounded
func countFilter(filter store.Document) (store.Document, error) {
	near, err := store.FindNear(filter)
	if err != nil || near == nil {
		return filter, err
	}
	counted := store.Copy(filter)
	if near.MaxDistance == 0 {
		delete(counted, near.Field)
		return counted, nil
	}
	counted[near.Field] = map[string]interface{}{
		"$geoWithin": map[string]interface{}{
			"$centerSphere": []interface{}{
				[]interface{}{near.Longitude, near.Latitude},
				near.MaxDistance / store.EarthRadius,
			},
		},
	}
	return counted, nil
}

// Distinct implements store.Store
func (s *Store) Distinct(ctx context.Context, collection, field string, filter store.Document) ([]interface{}, error) {
	values, err := s.db.Collection(collection).Distinct(ctx, field, filterOf(filter))
	if err != nil {
		return nil, err
	}
	distinct := make([]interface{}, len(values))
	for i, value := range values {
		distinct[i] = fromBSONValue(value)
	}
	return distinct, nil
}

// FindByID implements store.Store
func (s *Store) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return FromBSON(m), nil
}

// FindByIDAndRemove implements store.Store
func (s *Store) FindByIDAndRemove(ctx context.Context, collection, id string) (store.Document, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return FromBSON(m), nil
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) error {
	if _, ok := doc["_id"].(string); !ok {
		return fmt.Errorf("document has no _id")
	}
	_, err := s.db.Collection(collection).InsertOne(ctx, ToBSON(doc))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
	}
	return err
}

// Save implements store.Store
func (s *Store) Save(ctx context.Context, collection string, doc store.Document) error {
	id, _ := doc["_id"].(string)
	result, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, ToBSON(doc))
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FindByIDAndUpdate implements store.Store
func (s *Store) FindByIDAndUpdate(ctx context.Context, collection, id string, update *store.Update) error {
	u := updateOf(update)
	if len(u) == 0 {
		_, err := s.FindByID(ctx, collection, id)
		return err
	}
	result, err := s.db.Collection(collection).UpdateByID(ctx, id, u)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// updateOf builds the update document from the non-empty operators
func updateOf(update *store.Update) bson.M {
	u := bson.M{}
	if update.IsEmpty() {
		return u
	}
	if len(update.Set) > 0 {
		u["$set"] = ToBSON(update.Set)
	}
	if len(update.Unset) > 0 {
		unset := bson.M{}
		for _, field := range update.Unset {
			unset[field] = ""
		}
		u["$unset"] = unset
	}
	if len(update.AddToSet) > 0 {
		u["$addToSet"] = ToBSON(update.AddToSet)
	}
	if len(update.Pull) > 0 {
		u["$pull"] = ToBSON(update.Pull)
	}
	return u
}

func filterOf(filter store.Document) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return ToBSON(filter)
}

// ToBSON converts a document into its BSON representation
func ToBSON(doc store.Document) bson.M {
	m := make(bson.M, len(doc))
	for key, value := range doc {
		m[key] = toBSONValue(value)
	}
	return m
}

func toBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return ToBSON(v)
	case []interface{}:
		a := make(bson.A, len(v))
		for i, element := range v {
			a[i] = toBSONValue(element)
		}
		return a
	case time.Time:
		return primitive.NewDateTimeFromTime(v)
	}
	return value
}

// FromBSON converts a decoded BSON document into a plain document. Dates become
// time.Time in UTC, all numbers float64 and object ids their hex string.
func FromBSON(m bson.M) store.Document {
	doc := make(store.Document, len(m))
	for key, value := range m {
		doc[key] = fromBSONValue(value)
	}
	return doc
}

func fromBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case bson.M:
		return FromBSON(v)
	case map[string]interface{}:
		return FromBSON(bson.M(v))
	case bson.D:
		return FromBSON(v.Map())
	case bson.A:
		a := make([]interface{}, len(v))
		for i, element := range v {
			a[i] = fromBSONValue(element)
		}
		return a
	case []interface{}:
		return fromBSONValue(bson.A(v))
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.ObjectID:
		return v.Hex()
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return value
}
