package postgres

import (
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/relabs-tech/autorest/core/store"
)

// TimeLayout is the fixed width format dates are stored in. Fixed width keeps the
// textual order of dates chronological.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func textArray(values []string) interface{} {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func encode(doc store.Document) ([]byte, error) {
	return json.MarshalWithOption(toJSON(doc), json.DisableHTMLEscape())
}

func decode(raw []byte) (store.Document, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return fromJSON(doc).(map[string]interface{}), nil
}

// toJSON replaces dates by their fixed width representation
func toJSON(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for key, value := range v {
			m[key] = toJSON(value)
		}
		return m
	case []interface{}:
		a := make([]interface{}, len(v))
		for i, value := range v {
			a[i] = toJSON(value)
		}
		return a
	case time.Time:
		return v.UTC().Format(TimeLayout)
	}
	return value
}

// fromJSON restores dates stored by toJSON
func fromJSON(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, value := range v {
			v[key] = fromJSON(value)
		}
		return v
	case []interface{}:
		for i, value := range v {
			v[i] = fromJSON(value)
		}
		return v
	case string:
		if len(v) == len(TimeLayout) {
			if t, err := time.Parse(TimeLayout, v); err == nil {
				return t
			}
		}
	}
	return value
}
