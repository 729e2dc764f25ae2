package store

import (
	"fmt"
	"math"
	"regexp"
)

// EarthRadius is the radius in meters used for spherical distances
const EarthRadius = 6378100.0

// Near is a parsed $nearSphere condition
type Near struct {
	Field       string
	Longitude   float64
	Latitude    float64
	MaxDistance float64 // in meters, 0 means unbounded
}

// Match evaluates filter against doc. It does not evaluate $nearSphere beyond its
// maximum distance; ordering by distance is the caller's business.
func Match(doc Document, filter Document) (bool, error) {
	for key, condition := range filter {
		switch key {
		case "$and", "$or":
			clauses, ok := condition.([]interface{})
			if !ok {
				return false, fmt.Errorf("%w: %s requires an array", ErrInvalidFilter, key)
			}
			matchedAny := false
			for _, clause := range clauses {
				sub, ok := clause.(map[string]interface{})
				if !ok {
					return false, fmt.Errorf("%w: %s requires an array of objects", ErrInvalidFilter, key)
				}
				matched, err := Match(doc, sub)
				if err != nil {
					return false, err
				}
				if key == "$and" && !matched {
					return false, nil
				}
				matchedAny = matchedAny || matched
			}
			if key == "$or" && !matchedAny {
				return false, nil
			}
			continue
		}
		values, exists := Lookup(doc, key)
		matched, err := matchCondition(key, values, exists, condition)
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}

func isOperatorMap(condition interface{}) (map[string]interface{}, bool) {
	m, ok := condition.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if len(key) == 0 || key[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

func matchCondition(path string, values []interface{}, exists bool, condition interface{}) (bool, error) {
	operators, ok := isOperatorMap(condition)
	if !ok {
		return anyEqual(values, condition), nil
	}
	for operator, operand := range operators {
		var matched bool
		switch operator {
		case "$eq":
			matched = anyEqual(values, operand)
		case "$ne":
			matched = !anyEqual(values, operand)
		case "$gt", "$gte", "$lt", "$lte":
			matched = anyCompare(values, operator, operand)
		case "$in", "$nin":
			candidates, ok := operand.([]interface{})
			if !ok {
				return false, fmt.Errorf("%w: %s requires an array", ErrInvalidFilter, operator)
			}
			for _, candidate := range candidates {
				if anyEqual(values, candidate) {
					matched = true
					break
				}
			}
			if operator == "$nin" {
				matched = !matched
			}
		case "$exists":
			want, _ := operand.(bool)
			matched = exists == want
		case "$regex":
			pattern, ok := operand.(string)
			if !ok {
				return false, fmt.Errorf("%w: $regex requires a string", ErrInvalidFilter)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
			}
			for _, value := range flatten(values) {
				if s, ok := value.(string); ok && re.MatchString(s) {
					matched = true
					break
				}
			}
		case "$nearSphere":
			near, err := ParseNear(path, operand)
			if err != nil {
				return false, err
			}
			if len(values) == 0 {
				return false, nil
			}
			distance, ok := near.DistanceTo(values[0])
			matched = ok && (near.MaxDistance == 0 || distance <= near.MaxDistance)
		default:
			return false, fmt.Errorf("%w: %s", ErrUnsupported, operator)
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// flatten expands arrays one level, so that conditions match any element
func flatten(values []interface{}) []interface{} {
	var flat []interface{}
	for _, value := range values {
		if elements, ok := value.([]interface{}); ok {
			flat = append(flat, elements...)
		}
		flat = append(flat, value)
	}
	return flat
}

func anyEqual(values []interface{}, operand interface{}) bool {
	if len(values) == 0 {
		return operand == nil
	}
	for _, value := range flatten(values) {
		if Equal(value, operand) {
			return true
		}
	}
	return false
}

func anyCompare(values []interface{}, operator string, operand interface{}) bool {
	for _, value := range flatten(values) {
		if rank(value) != rank(operand) {
			continue
		}
		c := Compare(value, operand)
		switch operator {
		case "$gt":
			if c > 0 {
				return true
			}
		case "$gte":
			if c >= 0 {
				return true
			}
		case "$lt":
			if c < 0 {
				return true
			}
		case "$lte":
			if c <= 0 {
				return true
			}
		}
	}
	return false
}

// FindNear returns the $nearSphere condition of filter, if any. Only top-level
// conditions are considered.
func FindNear(filter Document) (*Near, error) {
	for key, condition := range filter {
		operators, ok := isOperatorMap(condition)
		if !ok {
			continue
		}
		if operand, ok := operators["$nearSphere"]; ok {
			return ParseNear(key, operand)
		}
	}
	return nil, nil
}

// ParseNear parses the operand of a $nearSphere condition on field
func ParseNear(field string, operand interface{}) (*Near, error) {
	m, ok := operand.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: $nearSphere requires an object", ErrInvalidFilter)
	}
	geometry, _ := m["$geometry"].(map[string]interface{})
	coordinates, _ := geometry["coordinates"].([]interface{})
	if len(coordinates) != 2 {
		return nil, fmt.Errorf("%w: $nearSphere requires a point geometry", ErrInvalidFilter)
	}
	lon, ok1 := toFloat(coordinates[0])
	lat, ok2 := toFloat(coordinates[1])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: $nearSphere requires numeric coordinates", ErrInvalidFilter)
	}
	near := &Near{Field: field, Longitude: lon, Latitude: lat}
	if maxDistance, ok := m["$maxDistance"]; ok {
		if near.MaxDistance, ok = toFloat(maxDistance); !ok {
			return nil, fmt.Errorf("%w: $maxDistance must be a number", ErrInvalidFilter)
		}
	}
	return near, nil
}

// DistanceTo returns the great circle distance in meters from the near point to a
// GeoJSON point value
func (n *Near) DistanceTo(value interface{}) (float64, bool) {
	var coordinates []interface{}
	switch v := value.(type) {
	case map[string]interface{}:
		coordinates, _ = v["coordinates"].([]interface{})
	case []interface{}:
		coordinates = v
	}
	if len(coordinates) != 2 {
		return 0, false
	}
	lon, ok1 := toFloat(coordinates[0])
	lat, ok2 := toFloat(coordinates[1])
	if !ok1 || !ok2 {
		return 0, false
	}
	return Haversine(n.Longitude, n.Latitude, lon, lat), true
}

// Haversine returns the great circle distance in meters between two points
// given in degrees
func Haversine(lon1, lat1, lon2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(a)))
}
