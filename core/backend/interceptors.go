package backend

import (
	"context"
	"errors"
	"net/http"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/logger"
)

// ErrResponded is returned by a hook which has written the response itself. The
// handler stops without writing anything.
var ErrResponded = errors.New("hook has responded")

// Request is a record request as seen by a hook
type Request struct {
	// Resource is the name of the record type
	Resource string
	// ResourceID is the record identifier, empty for search and create
	ResourceID string
	// Operation for this request
	Operation core.Operation
	// Field is the sub-document field for requests on a sub-document route. The
	// operation is then read or update of the parent record.
	Field string
	// Parameters are the query parameters from the request URL
	Parameters map[string]string
	// Request is the raw HTTP request
	Request *http.Request
	// Writer is the response sink. A hook which writes to it must return ErrResponded.
	Writer http.ResponseWriter
}

// Hook intercepts an operation before it reaches the store, or before the result is
// sent for search and read. data is the in-flight record, or the search result.
// Changes a hook makes to the record are persisted.
//
// Returning nil proceeds. Any other error aborts the operation with status 400 and the
// error as body, rendered to JSON verbatim. ErrResponded aborts without a response.
type Hook func(ctx context.Context, request Request, data interface{}) error

// RegisterHook installs or replaces the hook for a record type and operation. Hooks may be
// registered at any time; they take effect for subsequent requests.
func (b *Backend) RegisterHook(typeName string, operation core.Operation, hook Hook) {
	b.hooksMutex.Lock()
	defer b.hooksMutex.Unlock()
	if b.hooks[typeName] == nil {
		b.hooks[typeName] = map[core.Operation]Hook{}
	}
	logger.Default().Debugf("install hook for %s", requestKey(typeName, operation))
	b.hooks[typeName][operation] = hook
}

func requestKey(resource string, operation core.Operation) string {
	key := resource + "(" + string(operation) + ")"
	return key
}

func (b *Backend) hook(typeName string, operation core.Operation) Hook {
	b.hooksMutex.RLock()
	defer b.hooksMutex.RUnlock()
	return b.hooks[typeName][operation]
}

// intercept calls the hook for the request, if any. It returns false if the request
// is finished, in which case a response has been written.
func (b *Backend) intercept(w http.ResponseWriter, r *http.Request, typeName string, operation core.Operation,
	resourceID string, data interface{}) bool {
	return b.interceptField(w, r, typeName, operation, resourceID, "", data)
}

// interceptField is intercept for sub-document routes of field
func (b *Backend) interceptField(w http.ResponseWriter, r *http.Request, typeName string, operation core.Operation,
	resourceID, field string, data interface{}) bool {
	hook := b.hook(typeName, operation)
	if hook == nil {
		return true
	}
	err := hook(r.Context(), Request{
		Resource:   typeName,
		ResourceID: resourceID,
		Operation:  operation,
		Field:      field,
		Parameters: parameters(r),
		Request:    r,
		Writer:     w,
	}, data)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrResponded) {
		return false
	}
	logger.FromContext(r.Context()).Infof("%s aborted by hook: %v", requestKey(typeName, operation), err)
	respondError(w, http.StatusBadRequest, err)
	return false
}

// parameters flattens the query parameters, keeping the first value of each
func parameters(r *http.Request) map[string]string {
	params := map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}
