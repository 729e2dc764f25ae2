// Package postgres is a store backed by PostgreSQL. Every collection is a table
// holding the documents as jsonb. Filters are translated to SQL; $regex and
// $nearSphere are not supported.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/autorest/core/csql"
	"github.com/relabs-tech/autorest/core/logger"
	"github.com/relabs-tech/autorest/core/store"
)

// Store implements store.Store on a postgres database
type Store struct {
	db *csql.DB
}

// New returns a store on db and creates the tables for the given collections
func New(ctx context.Context, db *csql.DB, collections ...string) (*Store, error) {
	s := &Store{db: db}
	for _, collection := range collections {
		if err := s.EnsureCollection(ctx, collection); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EnsureCollection creates the table of a collection if it does not exist yet
func (s *Store) EnsureCollection(ctx context.Context, collection string) error {
	logger.FromContext(ctx).Debugln("create collection table:", collection)
	query := fmt.Sprintf(`CREATE table IF NOT EXISTS %s (
id varchar NOT NULL PRIMARY KEY,
seq bigserial,
timestamp timestamp NOT NULL DEFAULT now(),
document jsonb NOT NULL
);`, s.db.Table(collection))
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Find implements store.Store
func (s *Store) Find(ctx context.Context, collection string, q *store.Query) ([]store.Document, error) {
	if q == nil {
		q = &store.Query{}
	}
	b := &builder{}
	where, err := b.where(q.Filter)
	if err != nil {
		return nil, err
	}
	query := "SELECT document FROM " + s.db.Table(collection) + " WHERE " + where + " ORDER BY "
	for _, sf := range q.Sort {
		direction := "ASC"
		if sf.Descending {
			direction = "DESC"
		}
		query += "document #> " + b.path(sf.Field) + " " + direction + ", "
	}
	query += "seq"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	if q.Skip > 0 {
		query += fmt.Sprintf(" OFFSET %d", q.Skip)
	}
	query += ";"

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []store.Document{}
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count implements store.Store
func (s *Store) Count(ctx context.Context, collection string, filter store.Document) (int64, error) {
	b := &builder{}
	where, err := b.where(filter)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+s.db.Table(collection)+" WHERE "+where+";", b.args...).Scan(&count)
	return count, err
}

// Distinct implements store.Store
func (s *Store) Distinct(ctx context.Context, collection, field string, filter store.Document) ([]interface{}, error) {
	b := &builder{}
	path := b.path(field)
	where, err := b.where(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT document #> "+path+" FROM "+s.db.Table(collection)+" WHERE "+where+" ORDER BY seq;", b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	distinct := []interface{}{}
	add := func(value interface{}) {
		for _, existing := range distinct {
			if store.Equal(existing, value) {
				return
			}
		}
		distinct = append(distinct, value)
	}
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		var value interface{}
		if err = json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		value = fromJSON(value)
		if elements, ok := value.([]interface{}); ok {
			for _, element := range elements {
				add(element)
			}
			continue
		}
		add(value)
	}
	return distinct, rows.Err()
}

// FindByID implements store.Store
func (s *Store) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM "+s.db.Table(collection)+" WHERE id = $1;", id).Scan(&raw)
	if errors.Is(err, csql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// FindByIDAndRemove implements store.Store
func (s *Store) FindByIDAndRemove(ctx context.Context, collection, id string) (store.Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "DELETE FROM "+s.db.Table(collection)+" WHERE id = $1 RETURNING document;", id).Scan(&raw)
	if errors.Is(err, csql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) error {
	id, ok := doc["_id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("document has no _id")
	}
	raw, err := encode(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO "+s.db.Table(collection)+" (id, document) VALUES ($1, $2);", id, raw)
	if csql.IsUniqueViolation(err) {
		return fmt.Errorf("%w %s in collection %s", store.ErrDuplicateKey, id, collection)
	}
	return err
}

// Save implements store.Store
func (s *Store) Save(ctx context.Context, collection string, doc store.Document) error {
	id, _ := doc["_id"].(string)
	raw, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE "+s.db.Table(collection)+" SET document = $2, timestamp = now() WHERE id = $1;", id, raw)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FindByIDAndUpdate implements store.Store. The document is locked for the
// duration of the read-modify-write.
func (s *Store) FindByIDAndUpdate(ctx context.Context, collection, id string, update *store.Update) (err error) {
	table := s.db.Table(collection)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var raw []byte
	err = tx.QueryRowContext(ctx, "SELECT document FROM "+table+" WHERE id = $1 FOR UPDATE;", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		err = store.ErrNotFound
		return err
	}
	if err != nil {
		return err
	}
	doc, err := decode(raw)
	if err != nil {
		return err
	}
	store.ApplyUpdate(doc, update)
	if raw, err = encode(doc); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE "+table+" SET document = $2, timestamp = now() WHERE id = $1;", id, raw); err != nil {
		return err
	}
	return tx.Commit()
}

// builder collects the positional arguments of a statement
type builder struct {
	args []interface{}
}

func (b *builder) arg(value interface{}) string {
	b.args = append(b.args, value)
	return csql.Placeholder(len(b.args))
}

// path adds a dotted field path as text array argument
func (b *builder) path(field string) string {
	return b.arg(textArray(strings.Split(field, "."))) + "::text[]"
}

func (b *builder) jsonArg(value interface{}) (string, error) {
	raw, err := json.Marshal(toJSON(value))
	if err != nil {
		return "", err
	}
	return b.arg(string(raw)) + "::jsonb", nil
}

func (b *builder) where(filter store.Document) (string, error) {
	if len(filter) == 0 {
		return "TRUE", nil
	}
	var clauses []string
	for _, key := range sortedKeys(filter) {
		condition := filter[key]
		var clause string
		var err error
		switch key {
		case "$and", "$or":
			clause, err = b.logical(key, condition)
		default:
			clause, err = b.condition(key, condition)
		}
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

func (b *builder) logical(operator string, condition interface{}) (string, error) {
	subs, ok := condition.([]interface{})
	if !ok {
		return "", fmt.Errorf("%w: %s requires an array", store.ErrInvalidFilter, operator)
	}
	if len(subs) == 0 {
		if operator == "$and" {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	var clauses []string
	for _, sub := range subs {
		filter, ok := sub.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("%w: %s requires an array of objects", store.ErrInvalidFilter, operator)
		}
		clause, err := b.where(filter)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, "("+clause+")")
	}
	join := " AND "
	if operator == "$or" {
		join = " OR "
	}
	return "(" + strings.Join(clauses, join) + ")", nil
}

func (b *builder) condition(field string, condition interface{}) (string, error) {
	operators, ok := condition.(map[string]interface{})
	isOperators := ok && len(operators) > 0
	for key := range operators {
		if !strings.HasPrefix(key, "$") {
			isOperators = false
		}
	}
	if !isOperators {
		return b.equal(field, condition)
	}

	var clauses []string
	for _, operator := range sortedKeys(operators) {
		operand := operators[operator]
		var clause string
		var err error
		switch operator {
		case "$eq":
			clause, err = b.equal(field, operand)
		case "$ne":
			clause, err = b.equal(field, operand)
			clause = "NOT " + clause
		case "$gt", "$gte", "$lt", "$lte":
			clause, err = b.compare(field, operator, operand)
		case "$in", "$nin":
			clause, err = b.in(field, operand)
			if operator == "$nin" {
				clause = "NOT " + clause
			}
		case "$exists":
			want, _ := operand.(bool)
			clause = "(document #> " + b.path(field) + ") IS NULL"
			if want {
				clause = "(document #> " + b.path(field) + ") IS NOT NULL"
			}
		default:
			return "", fmt.Errorf("%w: %s", store.ErrUnsupported, operator)
		}
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

func (b *builder) equal(field string, value interface{}) (string, error) {
	if value == nil {
		return "(COALESCE(document #> " + b.path(field) + ", 'null'::jsonb) = 'null'::jsonb)", nil
	}
	path := b.path(field)
	v, err := b.jsonArg(value)
	if err != nil {
		return "", err
	}
	return "(COALESCE(document #> " + path + " @> " + v + ", false))", nil
}

var comparisons = map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}

func (b *builder) compare(field, operator string, operand interface{}) (string, error) {
	path := b.path(field)
	switch v := toJSON(operand).(type) {
	case float64, int, int64:
		return "(CASE WHEN jsonb_typeof(document #> " + path + ") = 'number' THEN (document #>> " + path + ")::numeric " +
			comparisons[operator] + " " + b.arg(v) + " ELSE false END)", nil
	case string:
		return "(CASE WHEN jsonb_typeof(document #> " + path + ") = 'string' THEN (document #>> " + path + ") " +
			comparisons[operator] + " " + b.arg(v) + " ELSE false END)", nil
	}
	return "", fmt.Errorf("%w: %s requires a number, string or date", store.ErrInvalidFilter, operator)
}

func (b *builder) in(field string, operand interface{}) (string, error) {
	candidates, ok := operand.([]interface{})
	if !ok {
		return "", fmt.Errorf("%w: $in requires an array", store.ErrInvalidFilter)
	}
	var values []string
	hasNull := false
	for _, candidate := range candidates {
		if candidate == nil {
			hasNull = true
			continue
		}
		raw, err := json.Marshal(toJSON(candidate))
		if err != nil {
			return "", err
		}
		values = append(values, string(raw))
	}
	clause := "(COALESCE(document #> " + b.path(field) + " @> ANY(" + b.arg(textArray(values)) + "::jsonb[]), false))"
	if hasNull {
		null, _ := b.equal(field, nil)
		clause = "(" + clause + " OR " + null + ")"
	}
	return clause, nil
}
