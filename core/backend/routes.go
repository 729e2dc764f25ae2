package backend

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/logger"
)

// Route operations beyond the record operations of package core
const (
	OperationBlank      = "blank"
	OperationInvoke     = "invoke"
	OperationStatistics = "statistics"
)

// Route is an entry of the route table
type Route struct {
	Method string
	// Path is the mux path template, with {id} for the record and {sub_id} for the
	// sub-document identifier
	Path string
	// Type is the record type, empty for the statistics route
	Type string
	// Operation is one of the core operations, or blank, invoke or statistics
	Operation string
	// Field is the sub-document field for sub-document routes, or the method name
	// for invoke routes
	Field string
}

// String returns "METHOD path"
func (r Route) String() string {
	return r.Method + " " + r.Path
}

var routeVariable = regexp.MustCompile(`{[^}]*}`)

// routeKey identifies a route independent of variable names, and of case for case-insensitive
// routing
func (b *Backend) routeKey(route Route) string {
	path := routeVariable.ReplaceAllString(route.Path, "{}")
	if !b.config.CaseSensitive {
		path = strings.ToLower(path)
	}
	if !b.config.Strict {
		path = strings.TrimSuffix(path, "/")
	}
	return route.Method + " " + path
}

// muxPath turns static segments into case-insensitive patterns unless routing is
// case sensitive
func (b *Backend) muxPath(path string) string {
	if b.config.CaseSensitive {
		return path
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if s == "" || strings.HasPrefix(s, "{") {
			continue
		}
		segments[i] = fmt.Sprintf("{_s%d:(?i)%s}", i, regexp.QuoteMeta(s))
	}
	return strings.Join(segments, "/")
}

// prefix derives the route prefix of a record type
func (b *Backend) prefix(typeName string) string {
	name := typeName
	if b.config.Pluralize {
		name = core.Plural(name)
	}
	if b.config.Lowercase {
		name = strings.ToLower(name)
	}
	return b.config.Path + name
}

// handleRoutes builds the route table. Types are visited in registration order.
func (b *Backend) handleRoutes() error {
	nillog := logger.FromContext(nil)
	nillog.Debugln("backend: handle routes on", b.config.Path)

	router := b.router.NewRoute().Subrouter()
	router.StrictSlash(!b.config.Strict)
	if b.config.CORS != nil {
		b.handleCORS(router)
	}

	for _, rt := range b.registry.Types() {
		rc := &Resource{backend: b, recordType: rt}
		if b.config.Relate {
			relationships, err := b.registry.Relationships(rt)
			if err != nil {
				return err
			}
			rc.relationships = relationships
		}
		if rt.SchemaID != "" && (b.validator == nil || !b.validator.HasSchema(rt.SchemaID)) {
			nillog.Errorf("ERROR: invalid configuration for record type %s, schemaID %s is unknown. Validation is deactivated for this type",
				rt.Name, rt.SchemaID)
		}
		b.resources[rt.Name] = rc

		if b.config.excluded(rt.Name) {
			nillog.Debugln("exclude record type:", rt.Name)
			continue
		}
		rc.prefix = b.prefix(rt.Name)
		if err := b.handleResourceRoutes(router, rc); err != nil {
			return err
		}
	}

	if b.config.Statistics {
		if err := b.handleStatisticsRoute(router); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) handleResourceRoutes(router *mux.Router, rc *Resource) error {
	rt := rc.recordType
	prefix := rc.prefix
	itemRoute := prefix + "/{id}"
	logger.Default().Debugln("create resource:", rt.Name)

	type entry struct {
		method    string
		path      string
		operation string
		field     string
		handler   http.HandlerFunc
	}
	entries := []entry{
		{http.MethodGet, prefix, string(core.OperationSearch), "", rc.Search},
		{http.MethodPost, prefix, string(core.OperationCreate), "", rc.Create},
	}
	if b.config.Puts {
		entries = append(entries, entry{http.MethodPut, prefix, string(core.OperationCreate), "", rc.Create})
	}
	entries = append(entries,
		entry{http.MethodGet, prefix + "/new", OperationBlank, "", rc.Blank},
		entry{http.MethodGet, itemRoute, string(core.OperationRead), "", rc.Read},
	)
	if b.config.Puts {
		entries = append(entries, entry{http.MethodPut, itemRoute, string(core.OperationUpdate), "", rc.Update})
	}
	entries = append(entries,
		entry{http.MethodPost, itemRoute, string(core.OperationUpdate), "", rc.Update},
		entry{http.MethodDelete, itemRoute, string(core.OperationDelete), "", rc.Delete},
	)
	for _, name := range rt.MethodNames() {
		entries = append(entries, entry{http.MethodPost, itemRoute + "/" + name, OperationInvoke, name, rc.Invoke(name)})
	}

	for _, f := range rt.SubDocumentFields() {
		sub := rc.SubDocument(f.Name)
		listRoute := itemRoute + "/" + f.Name
		subItemRoute := listRoute + "/{sub_id}"
		entries = append(entries,
			entry{http.MethodGet, listRoute, string(core.OperationSearch), f.Name, sub.Search},
			entry{http.MethodPost, listRoute, string(core.OperationCreate), f.Name, sub.Create},
		)
		if b.config.Puts {
			entries = append(entries,
				entry{http.MethodPut, listRoute, string(core.OperationCreate), f.Name, sub.Create},
			)
		}
		entries = append(entries, entry{http.MethodGet, subItemRoute, string(core.OperationRead), f.Name, sub.Read})
		if b.config.Puts {
			entries = append(entries,
				entry{http.MethodPut, subItemRoute, string(core.OperationUpdate), f.Name, sub.Update},
			)
		}
		entries = append(entries,
			entry{http.MethodPost, subItemRoute, string(core.OperationUpdate), f.Name, sub.Update},
			entry{http.MethodDelete, subItemRoute, string(core.OperationDelete), f.Name, sub.Delete},
		)
	}

	for _, e := range entries {
		route := Route{Method: e.method, Path: e.path, Type: rt.Name, Operation: e.operation, Field: e.field}
		if err := b.handle(router, route, e.handler); err != nil {
			return err
		}
	}
	return nil
}

// handle registers a single route. A second route with the same method and path is an
// error.
func (b *Backend) handle(router *mux.Router, route Route, handler http.HandlerFunc) error {
	key := b.routeKey(route)
	if b.routeKeys[key] {
		return fmt.Errorf("duplicate route %s", route)
	}
	b.routeKeys[key] = true
	logger.Default().Debugf("  handle route: %s %s", route.Path, route.Method)

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		handler(w, r)
	})
	if b.metrics != nil {
		h = b.metrics.instrument(route, h)
	}
	h = b.withCompression(h)
	methods := []string{route.Method}
	if b.config.CORS != nil {
		methods = append(methods, http.MethodOptions)
	}
	router.Handle(b.muxPath(route.Path), h).Methods(methods...)
	b.routes = append(b.routes, route)
	return nil
}
