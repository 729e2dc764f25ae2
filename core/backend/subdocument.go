package backend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/model"
	"github.com/relabs-tech/autorest/core/store"
)

// SubDocument holds the handlers of an array of nested documents. The parent is taken
// from the mux variable "id", the element from "sub_id". Every change is persisted by
// saving the whole parent, which validates all of its sub-documents.
//
// Sub-document requests run the hooks of the parent type with Request.Field set: read
// for search and read, update for create, update and delete. The hook gets the parent.
type SubDocument struct {
	resource *Resource
	field    string
}

// SubDocument returns the handlers of the sub-document array field
func (rc *Resource) SubDocument(field string) *SubDocument {
	return &SubDocument{resource: rc, field: field}
}

// Search responds with all elements
func (sd *SubDocument) Search(w http.ResponseWriter, r *http.Request) {
	parent, ok := sd.parent(w, r)
	if !ok {
		return
	}
	if !sd.intercept(w, r, core.OperationRead, parent) {
		return
	}
	respond(w, http.StatusOK, elements(parent, sd.field))
}

// Create appends an element and responds with it, including its generated identifier
func (sd *SubDocument) Create(w http.ResponseWriter, r *http.Request) {
	parent, ok := sd.parent(w, r)
	if !ok {
		return
	}
	element, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	f, _ := sd.resource.recordType.Field(sd.field)
	f.Schema.ApplyDefaults(element)
	id, _ := element[model.IDField].(string)
	if id == "" {
		id = model.NewID()
		element[model.IDField] = id
	}
	if index(parent, sd.field, id) >= 0 {
		respondError(w, http.StatusBadRequest, core.NewError("DuplicateKey", "duplicate key "+id+" in "+sd.field))
		return
	}
	parent[sd.field] = append(elements(parent, sd.field), element)

	if !sd.save(w, r, parent) {
		return
	}
	respond(w, http.StatusCreated, element)
}

// Read responds with a single element
func (sd *SubDocument) Read(w http.ResponseWriter, r *http.Request) {
	parent, ok := sd.parent(w, r)
	if !ok {
		return
	}
	i := index(parent, sd.field, mux.Vars(r)["sub_id"])
	if i < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !sd.intercept(w, r, core.OperationRead, parent) {
		return
	}
	respond(w, http.StatusOK, elements(parent, sd.field)[i])
}

// Update merges the request body into an element
func (sd *SubDocument) Update(w http.ResponseWriter, r *http.Request) {
	parent, ok := sd.parent(w, r)
	if !ok {
		return
	}
	i := index(parent, sd.field, mux.Vars(r)["sub_id"])
	if i < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	element := elements(parent, sd.field)[i].(map[string]interface{})
	for key, value := range body {
		if key == model.IDField {
			continue
		}
		element[key] = value
	}

	if !sd.save(w, r, parent) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes an element
func (sd *SubDocument) Delete(w http.ResponseWriter, r *http.Request) {
	parent, ok := sd.parent(w, r)
	if !ok {
		return
	}
	i := index(parent, sd.field, mux.Vars(r)["sub_id"])
	if i < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	list := elements(parent, sd.field)
	parent[sd.field] = append(list[:i:i], list[i+1:]...)

	if !sd.save(w, r, parent) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parent fetches the parent record. If it returns false, the response has been written.
func (sd *SubDocument) parent(w http.ResponseWriter, r *http.Request) (store.Document, bool) {
	if f, ok := sd.resource.recordType.Field(sd.field); !ok || !f.IsSubDocumentArray() {
		w.WriteHeader(http.StatusNotFound)
		return nil, false
	}
	return sd.resource.find(w, r, mux.Vars(r)["id"])
}

// intercept runs the parent type's hook for operation
func (sd *SubDocument) intercept(w http.ResponseWriter, r *http.Request, operation core.Operation, parent store.Document) bool {
	rc := sd.resource
	return rc.backend.interceptField(w, r, rc.recordType.Name, operation, mux.Vars(r)["id"], sd.field, parent)
}

// save casts the parent, runs the update hook, validates and saves. If it returns
// false, the response has been written.
func (sd *SubDocument) save(w http.ResponseWriter, r *http.Request, parent store.Document) bool {
	rc := sd.resource
	rt := rc.recordType
	if err := rt.Cast(parent); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return false
	}
	if !sd.intercept(w, r, core.OperationUpdate, parent) {
		return false
	}
	if err := rc.backend.validate(rt, parent); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return false
	}
	if !rc.save(w, r, parent) {
		return false
	}
	rc.backend.notify(r.Context(), rt.Name, core.OperationUpdate, parent)
	return true
}

// elements returns the array field of doc, or an empty list
func elements(doc store.Document, field string) []interface{} {
	list, ok := doc[field].([]interface{})
	if !ok || list == nil {
		return []interface{}{}
	}
	return list
}

// index returns the position of the element with identifier id, or -1
func index(doc store.Document, field, id string) int {
	for i, element := range elements(doc, field) {
		if sub, ok := element.(map[string]interface{}); ok && sub[model.IDField] == id {
			return i
		}
	}
	return -1
}
