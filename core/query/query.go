/*
Package query translates the query string of a search request into a store query.

Every parameter not starting with a double underscore is a filter on the field of the
same name. Values are cast to the declared field type; a value which looks like a JSON
object is an operator expression, e.g.

	/posts?type=review&views={"$gte":100}

Repeated parameters match any of their values. Supported operators are $eq, $ne, $gt,
$gte, $lt, $lte, $in, $nin, $exists and $regex; anything else, and parameters starting
with a dollar sign, is an InputError. The control parameters are

	__count                   respond with [count] instead of records
	__distinct=field          respond with the distinct values of field; __sort orders
	                          the values, __skip and __limit page them
	__sort=title -createdAt   sort, descending with a leading minus
	__skip=20 __limit=10      pagination
	__populate=author         replace references by the referenced records
	__near=lon,lat[,meters]   proximity search on the geospatial field

Without __sort the order of the results is whatever the store returns and must not be
relied upon.
*/
package query

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/autorest/core/model"
	"github.com/relabs-tech/autorest/core/store"
)

// control parameters
const (
	ParamCount    = "__count"
	ParamPopulate = "__populate"
	ParamSort     = "__sort"
	ParamSkip     = "__skip"
	ParamLimit    = "__limit"
	ParamNear     = "__near"
	ParamDistinct = "__distinct"
)

// Search is a translated search request
type Search struct {
	store.Query
	Populate []store.Population
	Count    bool
	Distinct string
}

// Translate builds the search for record type rt from the query parameters. The
// registry resolves the collections of populated references.
func Translate(rt *model.RecordType, registry *model.Registry, params url.Values) (*Search, error) {
	search := &Search{}
	filter := store.Document{}

	for key, values := range params {
		if strings.HasPrefix(key, "__") || len(values) == 0 {
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, inputError("%s is not a field", key)
		}
		condition, err := castCondition(rt.Schema, key, values)
		if err != nil {
			return nil, err
		}
		filter[key] = condition
	}

	if near := params.Get(ParamNear); near != "" {
		geoField, ok := rt.GeoField()
		if !ok {
			return nil, geoIndexNotFound()
		}
		clause, err := nearClause(near)
		if err != nil {
			return nil, err
		}
		filter[geoField] = clause
	}
	search.Filter = filter

	if values, ok := params[ParamCount]; ok {
		search.Count = len(values) == 0 || values[0] != "false"
	}
	if search.Count {
		return search, nil
	}

	var err error
	if search.Skip, err = nonNegative(params, ParamSkip); err != nil {
		return nil, err
	}
	if search.Limit, err = nonNegative(params, ParamLimit); err != nil {
		return nil, err
	}
	search.Sort = ParseSort(params.Get(ParamSort))
	search.Distinct = params.Get(ParamDistinct)
	search.Populate = ParsePopulate(rt, registry, params.Get(ParamPopulate))
	return search, nil
}

// Execute runs the search against collection of s. The result is a list of documents,
// a single-element count list or a list of distinct values.
func Execute(ctx context.Context, s store.Store, collection string, search *Search) (interface{}, error) {
	if search.Count {
		count, err := s.Count(ctx, collection, search.Filter)
		if err != nil {
			return nil, err
		}
		return []int64{count}, nil
	}
	if search.Distinct != "" {
		values, err := s.Distinct(ctx, collection, search.Distinct, search.Filter)
		if err != nil {
			return nil, err
		}
		return page(values, &search.Query), nil
	}
	docs, err := s.Find(ctx, collection, &search.Query)
	if err != nil {
		return nil, err
	}
	if err = store.Populate(ctx, s, docs, search.Populate); err != nil {
		return nil, err
	}
	return docs, nil
}

// page applies sort, skip and limit to distinct values. Any sort orders by the value
// itself, the direction is taken from the first sort field.
func page(values []interface{}, q *store.Query) []interface{} {
	if len(q.Sort) > 0 {
		descending := q.Sort[0].Descending
		sort.SliceStable(values, func(i, j int) bool {
			if descending {
				return store.Compare(values[i], values[j]) > 0
			}
			return store.Compare(values[i], values[j]) < 0
		})
	}
	if q.Skip >= int64(len(values)) {
		return []interface{}{}
	}
	values = values[q.Skip:]
	if q.Limit > 0 && q.Limit < int64(len(values)) {
		values = values[:q.Limit]
	}
	return values
}

// ParseSort parses a sort specification like "title -createdAt" or "title,-createdAt"
func ParseSort(value string) []store.SortField {
	var fields []store.SortField
	for _, field := range splitList(value) {
		sf := store.SortField{Field: field}
		switch field[0] {
		case '-':
			sf.Field, sf.Descending = field[1:], true
		case '+':
			sf.Field = field[1:]
		}
		if sf.Field != "" {
			fields = append(fields, sf)
		}
	}
	return fields
}

// ParsePopulate parses a space or comma separated list of reference fields of rt.
// Fields which are not references are ignored.
func ParsePopulate(rt *model.RecordType, registry *model.Registry, value string) []store.Population {
	var populate []store.Population
	for _, name := range splitList(value) {
		f, ok := rt.Field(name)
		if !ok || !f.IsReference() {
			continue
		}
		related, ok := registry.Lookup(f.Ref)
		if !ok {
			continue
		}
		populate = append(populate, store.Population{Field: name, Collection: related.Collection()})
	}
	return populate
}

func splitList(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

func nonNegative(params url.Values, key string) (int64, error) {
	value := params.Get(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, inputError("%s must be a non-negative integer, got %q", key, value)
	}
	return n, nil
}

// nearClause parses "lon,lat[,maxDistance]"
func nearClause(value string) (map[string]interface{}, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, inputError("%s requires longitude,latitude[,maxDistance], got %q", ParamNear, value)
	}
	numbers := make([]float64, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, inputError("%s requires numbers, got %q", ParamNear, value)
		}
		numbers[i] = f
	}
	near := map[string]interface{}{
		"$geometry": map[string]interface{}{
			"type":        "Point",
			"coordinates": []interface{}{numbers[0], numbers[1]},
		},
	}
	if len(numbers) == 3 {
		near["$maxDistance"] = numbers[2]
	}
	return map[string]interface{}{"$nearSphere": near}, nil
}

// castCondition turns the raw values of a filter parameter into a condition
func castCondition(schema *model.Schema, key string, values []string) (interface{}, error) {
	f, _ := schema.Field(key)
	if len(values) > 1 {
		in := make([]interface{}, len(values))
		for i, value := range values {
			v, err := castScalar(f, key, value)
			if err != nil {
				return nil, err
			}
			in[i] = v
		}
		return map[string]interface{}{"$in": in}, nil
	}

	value := values[0]
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var expression map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &expression); err != nil {
			return nil, inputError("malformed expression for %s: %s", key, err.Error())
		}
		return castExpression(f, key, expression)
	}
	return castScalar(f, key, value)
}

func castScalar(f *model.Field, key string, value interface{}) (interface{}, error) {
	if f == nil || f.Schema != nil {
		return value, nil
	}
	v, err := model.CastValue(f.Type, value)
	if err != nil {
		return nil, inputError("cannot cast %v to %s for %s", value, f.Type, key)
	}
	return v, nil
}

// castExpression checks the operators of an expression and casts their operands
func castExpression(f *model.Field, key string, expression map[string]interface{}) (interface{}, error) {
	operators := 0
	for operator := range expression {
		if strings.HasPrefix(operator, "$") {
			operators++
		}
	}
	if operators == 0 {
		// a plain object is compared for equality
		return expression, nil
	}
	if operators != len(expression) {
		return nil, inputError("expression for %s mixes operators and fields", key)
	}
	for operator, operand := range expression {
		switch operator {
		case "$exists":
			if _, ok := operand.(bool); !ok {
				return nil, inputError("$exists of %s requires a boolean", key)
			}
		case "$regex":
			pattern, ok := operand.(string)
			if !ok {
				return nil, inputError("$regex of %s requires a string", key)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return nil, inputError("invalid $regex for %s: %s", key, err.Error())
			}
		case "$in", "$nin":
			list, ok := operand.([]interface{})
			if !ok {
				return nil, inputError("%s of %s requires an array", operator, key)
			}
			casted := make([]interface{}, len(list))
			for i, element := range list {
				v, err := castScalar(f, key, element)
				if err != nil {
					return nil, err
				}
				casted[i] = v
			}
			expression[operator] = casted
		case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
			v, err := castScalar(f, key, operand)
			if err != nil {
				return nil, err
			}
			expression[operator] = v
		default:
			return nil, inputError("unsupported operator %s for %s", operator, key)
		}
	}
	return expression, nil
}
