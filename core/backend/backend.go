package backend

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/logger"
	"github.com/relabs-tech/autorest/core/model"
	"github.com/relabs-tech/autorest/core/schema"
	"github.com/relabs-tech/autorest/core/store"
)

// Backend is the generated REST API for all record types of a registry
type Backend struct {
	config    *Configuration
	registry  *model.Registry
	store     store.Store
	router    *mux.Router
	notifier  core.Notifier
	validator *schema.Validator
	metrics   *metrics

	hooksMutex sync.RWMutex
	hooks      map[string]map[core.Operation]Hook

	resources map[string]*Resource
	routes    []Route
	routeKeys map[string]bool

	// in-flight relationship updates
	pending sync.WaitGroup
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON configuration of the backend, see Configuration. An empty
	// config selects the defaults.
	Config string
	// Registry holds all record types. This is mandatory.
	Registry *model.Registry
	// Store persists the records. This is mandatory.
	Store store.Store
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Hooks are the initial hooks, by record type name and operation. This is optional.
	Hooks map[string]map[core.Operation]Hook
	// Notifier receives all successful writes. This is optional.
	Notifier core.Notifier
	// Validator validates records of types with a SchemaID. This is optional.
	Validator *schema.Validator
	// Metrics registers request metrics. This is optional.
	Metrics prometheus.Registerer
}

// New realizes the actual backend. It derives the relationships of all record types
// and adds the routes to the router.
func New(bb *Builder) (*Backend, error) {
	config, err := ParseConfiguration(bb.Config)
	if err != nil {
		return nil, err
	}
	if bb.Registry == nil {
		return nil, fmt.Errorf("registry is missing")
	}
	if bb.Store == nil {
		return nil, fmt.Errorf("store is missing")
	}
	if bb.Router == nil {
		return nil, fmt.Errorf("router is missing")
	}

	b := &Backend{
		config:    config,
		registry:  bb.Registry,
		store:     bb.Store,
		router:    bb.Router,
		notifier:  bb.Notifier,
		validator: bb.Validator,
		hooks:     map[string]map[core.Operation]Hook{},
		resources: map[string]*Resource{},
		routeKeys: map[string]bool{},
	}
	if bb.Metrics != nil {
		if b.metrics, err = newMetrics(bb.Metrics); err != nil {
			return nil, err
		}
	}
	for typeName, operations := range bb.Hooks {
		for operation, hook := range operations {
			b.RegisterHook(typeName, operation, hook)
		}
	}

	if err := b.handleRoutes(); err != nil {
		return nil, err
	}
	return b, nil
}

// MustNew is like New but panics on error
func MustNew(bb *Builder) *Backend {
	b, err := New(bb)
	if err != nil {
		panic(err)
	}
	return b
}

// Routes returns the route table in registration order
func (b *Backend) Routes() []Route {
	routes := make([]Route, len(b.routes))
	copy(routes, b.routes)
	return routes
}

// Resource returns the handlers of a record type. Excluded types have a resource, too.
func (b *Backend) Resource(typeName string) (*Resource, bool) {
	rc, ok := b.resources[typeName]
	return rc, ok
}

// Store returns the store of the backend
func (b *Backend) Store() store.Store {
	return b.store
}

// Registry returns the registry of the backend
func (b *Backend) Registry() *model.Registry {
	return b.registry
}

// Drain waits until all pending relationship updates have finished
func (b *Backend) Drain() {
	b.pending.Wait()
}

// validate checks doc against its model schema and, if the type names one, its JSON schema
func (b *Backend) validate(rt *model.RecordType, doc store.Document) error {
	if err := rt.Validate(doc); err != nil {
		return err
	}
	if rt.SchemaID != "" && b.validator != nil && b.validator.HasSchema(rt.SchemaID) {
		return b.validator.ValidateDocument(doc, rt.SchemaID)
	}
	return nil
}

// notify passes the record to the notifier, if there is one
func (b *Backend) notify(ctx context.Context, typeName string, operation core.Operation, doc store.Document) {
	if b.notifier == nil {
		return
	}
	payload, err := json.MarshalWithOption(doc, json.DisableHTMLEscape())
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 4710: cannot marshal %s notification", typeName)
		return
	}
	b.notifier.Notify(ctx, typeName, operation, payload)
}

func (b *Backend) handleStatisticsRoute(router *mux.Router) error {
	return b.handle(router, Route{
		Method:    http.MethodGet,
		Path:      b.config.Path + "_statistics",
		Operation: OperationStatistics,
	}, b.statistics)
}
