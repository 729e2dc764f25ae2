package query

import (
	"fmt"

	"github.com/goccy/go-json"
)

// GeoIndexMessage explains why a proximity search failed
const GeoIndexMessage = "The $nearSphere operator requires a geospatial index on a field holding GeoJSON points. " +
	"Declare one with Schema.AddIndex(map[string]string{field: \"2dsphere\"}) or mark the field with Index: \"2dsphere\"."

// ConfigurationError is returned when a query needs schema support the record
// type does not have, e.g. a proximity search without geospatial index
type ConfigurationError struct {
	Kind    string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Kind + ": " + e.Message
}

// MarshalJSON renders the error as {"error": kind, "message": message}
func (e *ConfigurationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{e.Kind, e.Message})
}

func geoIndexNotFound() *ConfigurationError {
	return &ConfigurationError{Kind: "Geospatial Index Not Found", Message: GeoIndexMessage}
}

// InputError is returned for malformed query parameters
type InputError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *InputError) Error() string {
	return e.Name + ": " + e.Message
}

func inputError(format string, args ...interface{}) *InputError {
	return &InputError{Name: "InputError", Message: fmt.Sprintf(format, args...)}
}
