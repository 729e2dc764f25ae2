// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is the tool of choice if one request handler needs to call other handlers to fulfill
its task. It is also perfectly suited for unit tests.

The same client works against a remote server, see NewWithURL.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		if k != key {
			headers[k] = v
		}
	}
	c.defaultHeaders = headers
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the base context of all requests
func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Raw makes a request and returns status and body, whatever the status is. body is
// marshalled to JSON unless it is a []byte; nil sends no body.
func (c Client) Raw(method, path string, body interface{}) (int, []byte, error) {
	status, _, resBody, err := c.do(method, path, nil, body)
	return status, resBody, err
}

func (c Client) do(method, path string, headers map[string]string, body interface{}) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			var err error
			j, err = json.Marshal(body)
			if err != nil {
				return http.StatusBadRequest, nil, nil, fmt.Errorf("%s to %s: %w", method, path, err)
			}
		}
		reader = bytes.NewBuffer(j)
	}

	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return http.StatusBadRequest, nil, nil, fmt.Errorf("%s to %s: %w", method, path, err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range headers {
		r.Header.Add(key, value)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, res.Header, rec.Body.Bytes(), nil
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	return res.StatusCode, res.Header, resBody, err
}

// request makes a request and unmarshals the response into result if the status is one
// of expected. result may be a *[]byte for the raw body.
func (c Client) request(method, path string, headers map[string]string, body, result interface{}, expected ...int) (int, http.Header, error) {
	status, header, resBody, err := c.do(method, path, headers, body)
	if err != nil {
		return status, header, err
	}
	ok := false
	for _, e := range expected {
		ok = ok || status == e
	}
	if !ok {
		return status, header, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, expected[0], strings.TrimSpace(string(resBody)))
	}
	if status == http.StatusNoContent || len(resBody) == 0 || result == nil {
		return status, header, nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return status, header, nil
	}
	return status, header, json.Unmarshal(resBody, result)
}

// RawGet makes a GET request and expects 200
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, _, err := c.request(http.MethodGet, path, nil, nil, result, http.StatusOK, http.StatusNoContent)
	return status, err
}

// RawGetWithHeader makes a GET request with additional headers and expects 200. It
// returns the response header.
func (c Client) RawGetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	return c.request(http.MethodGet, path, header, nil, result, http.StatusOK, http.StatusNoContent, http.StatusNotModified)
}

// RawPost makes a POST request and expects 200, 201 or 204
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.request(http.MethodPost, path, nil, body, result, http.StatusCreated, http.StatusOK, http.StatusNoContent)
	return status, err
}

// RawPut makes a PUT request and expects 200, 201 or 204
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.request(http.MethodPut, path, nil, body, result, http.StatusCreated, http.StatusOK, http.StatusNoContent)
	return status, err
}

// RawDelete makes a DELETE request and expects 204
func (c Client) RawDelete(path string) (int, error) {
	status, _, err := c.request(http.MethodDelete, path, nil, nil, nil, http.StatusNoContent, http.StatusOK)
	return status, err
}

// Collection represents the records under a route prefix
type Collection struct {
	client     *Client
	path       string
	parameters url.Values
}

// Collection returns a new collection client for the route prefix, e.g. "/posts"
func (c Client) Collection(prefix string) Collection {
	return Collection{
		client: &c,
		path:   "/" + strings.Trim(prefix, "/"),
	}
}

// WithParameter returns a new collection client with a query parameter added
func (r Collection) WithParameter(key string, value string) Collection {
	parameters := url.Values{}
	for k, v := range r.parameters {
		parameters[k] = append([]string{}, v...)
	}
	parameters.Add(key, value)
	r.parameters = parameters
	return r
}

// WithParameters returns a new collection client with all parameters added
func (r Collection) WithParameters(keyValues map[string]string) Collection {
	keys := make([]string, 0, len(keyValues))
	for k := range keyValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r = r.WithParameter(k, keyValues[k])
	}
	return r
}

// WithFilter is a shortcut for WithParameter. value may be an operator expression
// like {"$gte":100}.
func (r Collection) WithFilter(key string, value string) Collection {
	return r.WithParameter(key, value)
}

// CollectionPath returns the path of the collection including query parameters
func (r Collection) CollectionPath() string {
	if len(r.parameters) == 0 {
		return r.path
	}
	return r.path + "?" + r.parameters.Encode()
}

// Create creates a record and expects 201
func (r Collection) Create(body interface{}, result interface{}) (int, error) {
	status, _, err := r.client.request(http.MethodPost, r.path, nil, body, result, http.StatusCreated)
	return status, err
}

// List lists the records matching the parameters
func (r Collection) List(result interface{}) (int, error) {
	return r.client.RawGet(r.CollectionPath(), result)
}

// Count returns the number of records matching the parameters
func (r Collection) Count() (int64, error) {
	var count []int64
	if _, err := r.WithParameter("__count", "true").List(&count); err != nil {
		return 0, err
	}
	if len(count) != 1 {
		return 0, fmt.Errorf("unexpected count response %v", count)
	}
	return count[0], nil
}

// Blank reads a record of default values
func (r Collection) Blank(result interface{}) (int, error) {
	return r.client.RawGet(r.path+"/new", result)
}

// Item returns a client for a single record
func (r Collection) Item(id string) Item {
	return Item{collection: r, id: id}
}

// Item represents a single record
type Item struct {
	collection Collection
	id         string
	parameters url.Values
}

// WithParameter returns a new item client with a query parameter added
func (r Item) WithParameter(key string, value string) Item {
	parameters := url.Values{}
	for k, v := range r.parameters {
		parameters[k] = append([]string{}, v...)
	}
	parameters.Add(key, value)
	r.parameters = parameters
	return r
}

// Path returns the path of the item including query parameters
func (r Item) Path() string {
	path := r.collection.path + "/" + url.PathEscape(r.id)
	if len(r.parameters) > 0 {
		path += "?" + r.parameters.Encode()
	}
	return path
}

// Subcollection returns the collection of a sub-document array field
func (r Item) Subcollection(field string) Collection {
	return Collection{
		client: r.collection.client,
		path:   r.collection.path + "/" + url.PathEscape(r.id) + "/" + field,
	}
}

// Read reads the record
func (r Item) Read(result interface{}) (int, error) {
	return r.collection.client.RawGet(r.Path(), result)
}

// Update merges body into the record and expects 204
func (r Item) Update(body interface{}) (int, error) {
	status, _, err := r.collection.client.request(http.MethodPost, r.Path(), nil, body, nil, http.StatusNoContent)
	return status, err
}

// Delete deletes the record
func (r Item) Delete() (int, error) {
	return r.collection.client.RawDelete(r.Path())
}

// Invoke calls the instance method name and expects 200
func (r Item) Invoke(name string, body interface{}, result interface{}) (int, error) {
	path := r.collection.path + "/" + url.PathEscape(r.id) + "/" + name
	if len(r.parameters) > 0 {
		path += "?" + r.parameters.Encode()
	}
	status, _, err := r.collection.client.request(http.MethodPost, path, nil, body, result, http.StatusOK)
	return status, err
}
