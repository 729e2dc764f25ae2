package backend

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/logger"
	"github.com/relabs-tech/autorest/core/model"
	"github.com/relabs-tech/autorest/core/query"
	"github.com/relabs-tech/autorest/core/store"
)

// Resource holds the handlers of a single record type. The item handlers take the
// record identifier from the mux variable "id", see mux.SetURLVars for calling them
// without router.
type Resource struct {
	backend       *Backend
	recordType    *model.RecordType
	relationships []model.Relationship
	prefix        string
}

// Type returns the record type of the resource
func (rc *Resource) Type() *model.RecordType {
	return rc.recordType
}

// Prefix returns the route prefix, or an empty string if the type is excluded
func (rc *Resource) Prefix() string {
	return rc.prefix
}

// Search responds with the records matching the query parameters
func (rc *Resource) Search(w http.ResponseWriter, r *http.Request) {
	b := rc.backend
	rt := rc.recordType
	nillog := logger.FromContext(r.Context())

	search, err := query.Translate(rt, b.registry, r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	result, err := query.Execute(r.Context(), b.store, rt.Collection(), search)
	if errors.Is(err, store.ErrUnsupported) || errors.Is(err, store.ErrInvalidFilter) {
		respondError(w, http.StatusBadRequest, core.NewError("InputError", err.Error()))
		return
	}
	if err != nil {
		nillog.WithError(err).Errorf("Error 4721: cannot search %s", rt.Name)
		http.Error(w, "Error 4721", http.StatusInternalServerError)
		return
	}
	switch list := result.(type) {
	case []store.Document:
		if list == nil {
			result = []store.Document{}
		}
	case []interface{}:
		if list == nil {
			result = []interface{}{}
		}
	}

	if !b.intercept(w, r, rt.Name, core.OperationSearch, "", result) {
		return
	}
	respond(w, http.StatusOK, result)
}

// Create creates a record from the request body and responds with it
func (rc *Resource) Create(w http.ResponseWriter, r *http.Request) {
	b := rc.backend
	rt := rc.recordType
	ctx := r.Context()
	nillog := logger.FromContext(ctx)

	doc, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	delete(doc, model.VersionField)
	id, _ := doc[model.IDField].(string)
	if id == "" {
		id = model.NewID()
		doc[model.IDField] = id
	}
	rt.ApplyDefaults(doc)
	if err := rt.Cast(doc); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	if !b.intercept(w, r, rt.Name, core.OperationCreate, id, doc) {
		return
	}

	if err := b.validate(rt, doc); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	doc[model.VersionField] = 0
	err = b.store.Insert(ctx, rt.Collection(), doc)
	if errors.Is(err, store.ErrDuplicateKey) {
		respondError(w, http.StatusBadRequest, core.NewError("DuplicateKey", err.Error()))
		return
	}
	if err != nil {
		nillog.WithError(err).Errorf("Error 4722: cannot insert %s", rt.Name)
		http.Error(w, "Error 4722", http.StatusInternalServerError)
		return
	}

	if b.config.Relate {
		b.relate(ctx, rc, doc)
	}
	b.notify(ctx, rt.Name, core.OperationCreate, doc)
	respond(w, http.StatusCreated, doc)
}

// Read responds with a single record. References named in __populate are replaced by
// the referenced records.
func (rc *Resource) Read(w http.ResponseWriter, r *http.Request) {
	b := rc.backend
	rt := rc.recordType
	ctx := r.Context()

	id := mux.Vars(r)["id"]
	doc, ok := rc.find(w, r, id)
	if !ok {
		return
	}
	populate := query.ParsePopulate(rt, b.registry, r.URL.Query().Get(query.ParamPopulate))
	if err := store.Populate(ctx, b.store, []store.Document{doc}, populate); err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 4723: cannot populate %s", rt.Name)
		http.Error(w, "Error 4723", http.StatusInternalServerError)
		return
	}

	if !b.intercept(w, r, rt.Name, core.OperationRead, id, doc) {
		return
	}
	respond(w, http.StatusOK, doc)
}

// Update merges the request body into a record. Only the keys of the body are
// changed, whether the schema declares them or not. The identifier cannot change.
func (rc *Resource) Update(w http.ResponseWriter, r *http.Request) {
	b := rc.backend
	rt := rc.recordType
	ctx := r.Context()

	id := mux.Vars(r)["id"]
	doc, ok := rc.find(w, r, id)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	for key, value := range body {
		if key == model.IDField || key == model.VersionField {
			continue
		}
		doc[key] = value
	}
	if err := rt.Cast(doc); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	if !b.intercept(w, r, rt.Name, core.OperationUpdate, id, doc) {
		return
	}

	if err := b.validate(rt, doc); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if !rc.save(w, r, doc) {
		return
	}
	b.notify(ctx, rt.Name, core.OperationUpdate, doc)
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a record
func (rc *Resource) Delete(w http.ResponseWriter, r *http.Request) {
	b := rc.backend
	rt := rc.recordType
	ctx := r.Context()

	id := mux.Vars(r)["id"]
	doc, ok := rc.find(w, r, id)
	if !ok {
		return
	}

	if !b.intercept(w, r, rt.Name, core.OperationDelete, id, doc) {
		return
	}

	removed, err := b.store.FindByIDAndRemove(ctx, rt.Collection(), id)
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 4724: cannot delete %s %s", rt.Name, id)
		http.Error(w, "Error 4724", http.StatusInternalServerError)
		return
	}

	if b.config.Relate {
		b.unrelate(ctx, rc, removed)
	}
	b.notify(ctx, rt.Name, core.OperationDelete, removed)
	w.WriteHeader(http.StatusNoContent)
}

// Blank responds with a record of default values. Nothing is stored.
func (rc *Resource) Blank(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, rc.recordType.Blank())
}

// Invoke returns the handler for the instance method name. The method gets the record,
// the query parameters and the request body. Its result is the response, an error
// responds 400.
func (rc *Resource) Invoke(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method, ok := rc.recordType.Method(name)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		doc, ok := rc.find(w, r, mux.Vars(r)["id"])
		if !ok {
			return
		}
		body, err := readBody(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		result, err := method(r.Context(), doc, parameters(r), body)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		respond(w, http.StatusOK, result)
	}
}

// find fetches the record id. If it returns false, the response has been written.
func (rc *Resource) find(w http.ResponseWriter, r *http.Request, id string) (store.Document, bool) {
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return nil, false
	}
	doc, err := rc.backend.store.FindByID(r.Context(), rc.recordType.Collection(), id)
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorf("Error 4727: cannot find %s %s", rc.recordType.Name, id)
		http.Error(w, "Error 4727", http.StatusInternalServerError)
		return nil, false
	}
	return doc, true
}

// save writes the full record. If it returns false, the response has been written.
func (rc *Resource) save(w http.ResponseWriter, r *http.Request, doc store.Document) bool {
	err := rc.backend.store.Save(r.Context(), rc.recordType.Collection(), doc)
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return false
	}
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorf("Error 4728: cannot save %s", rc.recordType.Name)
		http.Error(w, "Error 4728", http.StatusInternalServerError)
		return false
	}
	return true
}
