package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/backend"
	"github.com/relabs-tech/autorest/core/model"
	"github.com/relabs-tech/autorest/core/store"
)

type record = map[string]interface{}

func (s *TestService) create(t *testing.T, prefix string, body record) record {
	t.Helper()
	var created record
	status, err := s.client.Collection(prefix).Create(body, &created)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	return created
}

func (s *TestService) read(t *testing.T, prefix, id string) record {
	t.Helper()
	var result record
	_, err := s.client.Collection(prefix).Item(id).Read(&result)
	require.NoError(t, err)
	return result
}

func TestRoutes(t *testing.T) {
	s := CreateTestService(`{"pluralize": true, "exclude": ["Secret"]}`)

	var posts []string
	for _, route := range s.backend.Routes() {
		assert.NotEqual(t, "Secret", route.Type)
		if route.Type == "Post" {
			posts = append(posts, route.String())
		}
	}
	assert.Equal(t, []string{
		"GET /posts",
		"POST /posts",
		"GET /posts/new",
		"GET /posts/{id}",
		"POST /posts/{id}",
		"DELETE /posts/{id}",
		"POST /posts/{id}/publish",
		"POST /posts/{id}/shout",
		"GET /posts/{id}/comments",
		"POST /posts/{id}/comments",
		"GET /posts/{id}/comments/{sub_id}",
		"POST /posts/{id}/comments/{sub_id}",
		"DELETE /posts/{id}/comments/{sub_id}",
	}, posts)

	routes := s.backend.Routes()
	assert.Equal(t, backend.Route{Method: http.MethodGet, Path: "/users", Type: "User", Operation: "search"}, routes[0])

	// the route table is reproducible
	again := CreateTestService(`{"pluralize": true, "exclude": ["Secret"]}`)
	assert.Equal(t, routes, again.backend.Routes())
}

func TestRoutesWithPuts(t *testing.T) {
	s := CreateTestService(`{"path": "api", "puts": true}`)

	var places []string
	for _, route := range s.backend.Routes() {
		if route.Type == "Place" {
			places = append(places, route.String())
		}
	}
	assert.Equal(t, []string{
		"GET /api/place",
		"POST /api/place",
		"PUT /api/place",
		"GET /api/place/new",
		"GET /api/place/{id}",
		"PUT /api/place/{id}",
		"POST /api/place/{id}",
		"DELETE /api/place/{id}",
	}, places)

	var created record
	status, err := s.client.RawPut("/api/place", record{"name": "Berlin"}, &created)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	status, err = s.client.RawPut("/api/place/"+created["_id"].(string), record{"name": "Potsdam"}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "Potsdam", s.read(t, "/api/place", created["_id"].(string))["name"])
}

func TestDuplicateRoutes(t *testing.T) {
	registry := model.NewRegistry()
	comment := model.NewSchema(model.Field{Name: "message", Type: model.String})
	registry.MustRegister("Post", model.NewSchema(
		model.Field{Name: "comments", Schema: comment, Array: true},
	).AddMethod("comments", func(ctx context.Context, record map[string]interface{}, params map[string]string, body map[string]interface{}) (interface{}, error) {
		return nil, nil
	}))

	_, err := backend.New(&backend.Builder{Registry: registry, Store: nil, Router: mux.NewRouter()})
	require.Error(t, err, "store is mandatory")

	s := CreateTestService("")
	_, err = backend.New(&backend.Builder{Registry: registry, Store: s.Store, Router: mux.NewRouter()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate route POST /post/{id}/comments")

	assert.Panics(t, func() {
		backend.MustNew(&backend.Builder{Config: "{", Registry: registry, Store: s.Store, Router: mux.NewRouter()})
	})
}

func TestCreateWithDefaults(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)

	user := s.create(t, "/users", record{"name": "Dave"})
	before := time.Now()
	post := s.create(t, "/posts", record{"title": "X", "author": user["_id"]})

	assert.NotEmpty(t, post["_id"])
	assert.Equal(t, 0.0, post["__v"])
	assert.Equal(t, "article", post["type"])
	assert.Equal(t, user["_id"], post["author"])
	createdAt, err := time.Parse(time.RFC3339Nano, post["createdAt"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, before, createdAt, time.Second)

	stored, err := s.Store.FindByID(context.Background(), "posts", post["_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "X", stored["title"])

	// the identifier may be chosen by the client, but only once
	s.create(t, "/users", record{"_id": "dave", "name": "Dave"})
	status, body, err := s.client.Raw(http.MethodPost, "/users", record{"_id": "dave", "name": "Dave"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), `"name":"DuplicateKey"`)
}

func TestValidation(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)

	for _, body := range []record{
		{},
		{"title": "X", "type": "poem"},
		{"title": "X", "views": "many"},
		{"title": "X", "views": "NaN"},
		{"title": "X", "views": "-Inf"},
	} {
		status, raw, err := s.client.Raw(http.MethodPost, "/posts", body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, status)
		var verr model.ValidationError
		require.NoError(t, json.Unmarshal(raw, &verr), string(raw))
		assert.Equal(t, "ValidationError", verr.Name)
		assert.NotEmpty(t, verr.Errors)
	}

	status, raw, err := s.client.Raw(http.MethodPost, "/posts", []byte(`{"title":`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(raw), `"name":"InputError"`)

	count, err := s.client.Collection("/posts").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// a rejected number leaves the record and the collection intact
	post := s.create(t, "/posts", record{"title": "X", "views": 7})
	status, err = s.client.Collection("/posts").Item(post["_id"].(string)).Update(record{"views": "Inf"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	var list []record
	status, err = s.client.Collection("/posts").List(&list)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, list, 1)
	assert.Equal(t, 7.0, list[0]["views"])
}

func TestSearch(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	for i, views := range []float64{5, 50, 500} {
		postType := "article"
		if i == 1 {
			postType = "review"
		}
		s.create(t, "/posts", record{"title": string(rune('A' + i)), "views": views, "type": postType})
	}
	posts := s.client.Collection("/posts")

	var result []record
	_, err := posts.WithFilter("type", "review").List(&result)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "B", result[0]["title"])

	_, err = posts.WithFilter("views", `{"$gte":50}`).WithParameter("__sort", "-views").List(&result)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 500.0, result[0]["views"])
	assert.Equal(t, 50.0, result[1]["views"])

	_, err = posts.WithFilter("views", "50").List(&result)
	require.NoError(t, err)
	require.Len(t, result, 1)

	_, err = posts.WithParameter("__sort", "title").WithParameter("__skip", "1").WithParameter("__limit", "1").List(&result)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "B", result[0]["title"])

	count, err := posts.WithFilter("type", "article").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var distinct []string
	_, err = posts.WithParameter("__distinct", "type").List(&distinct)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"article", "review"}, distinct)

	_, err = posts.WithFilter("title", "nothing").List(&result)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)

	status, raw, err := s.client.Raw(http.MethodGet, "/posts?views=%7B%22%24gte%22%3A%7D", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(raw), `"name":"InputError"`)
}

func TestSearchInputErrors(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	s.create(t, "/posts", record{"title": "Hello"})

	for _, path := range []string{
		`/posts?title={"$regex":"("}`,
		`/posts?title={"$where":"sleep(100)"}`,
		`/posts?$and=x`,
		`/posts?$where=sleep(100)`,
		`/posts?views={"$in":5}`,
	} {
		status, raw, err := s.client.Raw(http.MethodGet, path, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, status, path)
		assert.Contains(t, string(raw), `"name":"InputError"`, path)
	}

	var result []record
	_, err := s.client.Collection("/posts").WithFilter("title", `{"$regex":"^Hel"}`).List(&result)
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestSearchWithPopulate(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	user := s.create(t, "/users", record{"name": "Dave"})
	post := s.create(t, "/posts", record{"title": "X", "author": user["_id"]})

	var result []record
	_, err := s.client.Collection("/posts").WithParameter("__populate", "author").List(&result)
	require.NoError(t, err)
	require.Len(t, result, 1)
	author, ok := result[0]["author"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Dave", author["name"])

	read := s.read(t, "/posts", post["_id"].(string))
	assert.Equal(t, user["_id"], read["author"])

	var populated record
	_, err = s.client.Collection("/posts").Item(post["_id"].(string)).WithParameter("__populate", "author").Read(&populated)
	require.NoError(t, err)
	assert.Equal(t, "Dave", populated["author"].(map[string]interface{})["name"])
}

func TestNear(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)

	status, raw, err := s.client.Raw(http.MethodGet, "/posts?__near=13.4,52.5", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	var cerr map[string]string
	require.NoError(t, json.Unmarshal(raw, &cerr))
	assert.Equal(t, "Geospatial Index Not Found", cerr["error"])
	assert.NotEmpty(t, cerr["message"])

	s.create(t, "/places", record{"name": "Potsdam", "location": record{"type": "Point", "coordinates": []float64{13.06, 52.39}}})
	s.create(t, "/places", record{"name": "Munich", "location": record{"type": "Point", "coordinates": []float64{11.58, 48.14}}})
	s.create(t, "/places", record{"name": "Berlin", "location": []float64{13.40, 52.52}})

	var places []record
	_, err = s.client.Collection("/places").WithParameter("__near", "13.4,52.5").List(&places)
	require.NoError(t, err)
	require.Len(t, places, 3)
	assert.Equal(t, "Berlin", places[0]["name"])
	assert.Equal(t, "Potsdam", places[1]["name"])
	assert.Equal(t, "Munich", places[2]["name"])

	_, err = s.client.Collection("/places").WithParameter("__near", "13.4,52.5,50000").List(&places)
	require.NoError(t, err)
	require.Len(t, places, 2)

	status, _, err = s.client.Raw(http.MethodGet, "/places?__near=13.4", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestReadUpdateDelete(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	post := s.create(t, "/posts", record{"title": "X", "views": 1})
	id := post["_id"].(string)
	item := s.client.Collection("/posts").Item(id)

	status, err := item.Update(record{"views": 2, "mood": "happy", "_id": "other"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	updated := s.read(t, "/posts", id)
	assert.Equal(t, id, updated["_id"])
	assert.Equal(t, "X", updated["title"])
	assert.Equal(t, 2.0, updated["views"])
	assert.Equal(t, "happy", updated["mood"])
	assert.Equal(t, post["createdAt"], updated["createdAt"])

	status, raw, err := s.client.Raw(http.MethodPost, "/posts/"+id, record{"type": "poem"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(raw), `"name":"ValidationError"`)
	assert.Equal(t, "article", s.read(t, "/posts", id)["type"])

	status, err = item.Delete()
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		status, raw, err := s.client.Raw(method, "/posts/"+id, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, status, method)
		assert.Empty(t, raw, method)
	}
}

func TestBlank(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)

	var blank record
	_, err := s.client.Collection("/posts").Blank(&blank)
	require.NoError(t, err)
	assert.Equal(t, "article", blank["type"])
	assert.Nil(t, blank["title"])
	assert.Contains(t, blank, "title")
	assert.Equal(t, []interface{}{}, blank["comments"])
	assert.NotNil(t, blank["createdAt"])
	assert.NotContains(t, blank, "_id")
	assert.NotContains(t, blank, "__v")

	count, err := s.client.Collection("/posts").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMethods(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	post := s.create(t, "/posts", record{"title": "loud"})
	item := s.client.Collection("/posts").Item(post["_id"].(string))

	var published record
	status, err := item.WithParameter("channel", "news").Invoke("publish", nil, &published)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, record{"published": post["_id"], "channel": "news"}, published)

	var shouted string
	_, err = item.Invoke("shout", record{}, &shouted)
	require.NoError(t, err)
	assert.Equal(t, "LOUD", shouted)

	status, _, err = s.client.Raw(http.MethodPost, "/posts/unknown/publish", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)

	require.NoError(t, s.Store.Save(context.Background(), "posts", store.Document{"_id": post["_id"], "title": ""}))
	status, raw, err := s.client.Raw(http.MethodPost, "/posts/"+post["_id"].(string)+"/publish", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"name":"PublishError","message":"a post needs a title"}`, string(raw))
}

func TestSubDocuments(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	post := s.create(t, "/posts", record{"title": "X"})
	comments := s.client.Collection("/posts").Item(post["_id"].(string)).Subcollection("comments")

	status, raw, err := s.client.Raw(http.MethodPost, comments.CollectionPath(), record{"message": "Hi"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	var cerr core.Error
	require.NoError(t, json.Unmarshal(raw, &cerr))
	assert.Equal(t, "ValidateLength", cerr.Name)

	var comment record
	status, err = comments.Create(record{"message": "Marvelous."}, &comment)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, comment["_id"])
	assert.Equal(t, "Marvelous.", comment["message"])
	assert.NotNil(t, comment["createdAt"])
	commentID := comment["_id"].(string)

	var list []record
	_, err = comments.List(&list)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, commentID, list[0]["_id"])

	status, err = comments.Item(commentID).Update(record{"message": "Even better."})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	var read record
	_, err = comments.Item(commentID).Read(&read)
	require.NoError(t, err)
	assert.Equal(t, "Even better.", read["message"])

	status, _, err = s.client.Raw(http.MethodPost, comments.Item(commentID).Path(), record{"message": "Meh"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, err = s.client.Raw(http.MethodGet, comments.Item("unknown").Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)

	status, err = comments.Item(commentID).Delete()
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	_, err = comments.List(&list)
	require.NoError(t, err)
	assert.Empty(t, list)

	status, _, err = s.client.Raw(http.MethodGet, "/posts/unknown/comments", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSubDocumentHooks(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	post := s.create(t, "/posts", record{"title": "X"})
	postID := post["_id"].(string)
	comments := s.client.Collection("/posts").Item(postID).Subcollection("comments")

	var comment record
	status, err := comments.Create(record{"_id": "c1", "message": "Marvelous."}, &comment)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)

	status, raw, err := s.client.Raw(http.MethodPost, comments.CollectionPath(), record{"_id": "c1", "message": "Again and again."})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	var cerr core.Error
	require.NoError(t, json.Unmarshal(raw, &cerr))
	assert.Equal(t, "DuplicateKey", cerr.Name)

	var requests []backend.Request
	s.backend.RegisterHook("Post", core.OperationUpdate, func(ctx context.Context, request backend.Request, data interface{}) error {
		requests = append(requests, request)
		return core.NewError("Frozen", "")
	})

	status, raw, err = s.client.Raw(http.MethodPost, comments.CollectionPath(), record{"message": "Too late."})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, `{"name":"Frozen"}`, string(raw))
	status, _, err = s.client.Raw(http.MethodDelete, comments.Item("c1").Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)

	require.Len(t, requests, 2)
	for _, request := range requests {
		assert.Equal(t, "Post", request.Resource)
		assert.Equal(t, core.OperationUpdate, request.Operation)
		assert.Equal(t, postID, request.ResourceID)
		assert.Equal(t, "comments", request.Field)
	}

	var list []record
	_, err = comments.List(&list)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Marvelous.", list[0]["message"])

	s.backend.RegisterHook("Post", core.OperationRead, func(ctx context.Context, request backend.Request, data interface{}) error {
		assert.Equal(t, "comments", request.Field)
		return core.NewError("Hidden", "")
	})
	status, _, err = s.client.Raw(http.MethodGet, comments.Item("c1").Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRelate(t *testing.T) {
	s := CreateTestService(`{"pluralize": true, "relate": true}`)

	user := s.create(t, "/users", record{"name": "Dave"})
	userID := user["_id"].(string)
	post := s.create(t, "/posts", record{"title": "X", "author": userID})
	postID := post["_id"].(string)
	s.backend.Drain()
	assert.Equal(t, []interface{}{postID}, s.read(t, "/users", userID)["posts"])

	// adding is idempotent
	other := s.create(t, "/posts", record{"title": "Y", "author": userID})
	s.backend.Drain()
	assert.Equal(t, []interface{}{postID, other["_id"]}, s.read(t, "/users", userID)["posts"])

	_, err := s.client.Collection("/posts").Item(postID).Delete()
	require.NoError(t, err)
	s.backend.Drain()
	assert.Equal(t, []interface{}{other["_id"]}, s.read(t, "/users", userID)["posts"])

	// deleting the user unsets the author of its posts
	_, err = s.client.Collection("/users").Item(userID).Delete()
	require.NoError(t, err)
	s.backend.Drain()
	assert.NotContains(t, s.read(t, "/posts", other["_id"].(string)), "author")

	// references to missing records do not fail the request
	s.create(t, "/posts", record{"title": "Z", "author": "nobody"})
	s.backend.Drain()
}

func TestRelateDisabled(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	user := s.create(t, "/users", record{"name": "Dave"})
	s.create(t, "/posts", record{"title": "X", "author": user["_id"]})
	s.backend.Drain()
	assert.Equal(t, []interface{}{}, s.read(t, "/users", user["_id"].(string))["posts"])
}

func TestExcluded(t *testing.T) {
	s := CreateTestService(`{"pluralize": true, "exclude": ["Secret"]}`)

	status, _, err := s.client.Raw(http.MethodGet, "/secrets", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)

	secrets, ok := s.backend.Resource("Secret")
	require.True(t, ok)
	assert.Equal(t, "", secrets.Prefix())
	posts, ok := s.backend.Resource("Post")
	require.True(t, ok)
	assert.Equal(t, "/posts", posts.Prefix())

	rec := httptest.NewRecorder()
	secrets.Create(rec, httptest.NewRequest(http.MethodPost, "/anywhere", strings.NewReader(`{"value":"42"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/anywhere", nil), map[string]string{"id": created["_id"].(string)})
	secrets.Read(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	var read record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
	assert.Equal(t, "42", read["value"])

	rec = httptest.NewRecorder()
	secrets.Search(rec, httptest.NewRequest(http.MethodGet, "/anywhere?value=42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var found []record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	assert.Len(t, found, 1)

	_, ok = s.backend.Resource("Unknown")
	assert.False(t, ok)
}

func TestHooks(t *testing.T) {
	s := CreateTestService(`{"pluralize": true}`)
	s.backend.RegisterHook("Post", core.OperationCreate, func(ctx context.Context, request backend.Request, data interface{}) error {
		return core.NewError("Blocked", "")
	})

	status, raw, err := s.client.Raw(http.MethodPost, "/posts", record{"title": "X"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, `{"name":"Blocked"}`, string(raw))
	count, err := s.Store.Count(context.Background(), "posts", store.Document{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// hooks can be replaced and change the record before it is stored
	s.backend.RegisterHook("Post", core.OperationCreate, func(ctx context.Context, request backend.Request, data interface{}) error {
		assert.Equal(t, "Post", request.Resource)
		assert.Equal(t, core.OperationCreate, request.Operation)
		assert.NotEmpty(t, request.ResourceID)
		data.(map[string]interface{})["title"] = "hooked"
		return nil
	})
	post := s.create(t, "/posts", record{"title": "X"})
	assert.Equal(t, "hooked", post["title"])
	assert.Equal(t, "hooked", s.read(t, "/posts", post["_id"].(string))["title"])

	s.backend.RegisterHook("Post", core.OperationRead, func(ctx context.Context, request backend.Request, data interface{}) error {
		if request.Parameters["secret"] == "yes" {
			request.Writer.WriteHeader(http.StatusTeapot)
			return backend.ErrResponded
		}
		data.(map[string]interface{})["seen"] = true
		return nil
	})
	assert.Equal(t, true, s.read(t, "/posts", post["_id"].(string))["seen"])
	status, _, err = s.client.Raw(http.MethodGet, "/posts/"+post["_id"].(string)+"?secret=yes", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, status)

	s.backend.RegisterHook("Post", core.OperationSearch, func(ctx context.Context, request backend.Request, data interface{}) error {
		assert.Len(t, data, 1)
		return nil
	})
	var posts []record
	_, err = s.client.Collection("/posts").List(&posts)
	require.NoError(t, err)

	s.backend.RegisterHook("Post", core.OperationDelete, func(ctx context.Context, request backend.Request, data interface{}) error {
		return core.NewError("Forbidden", "posts are forever")
	})
	status, raw, err = s.client.Raw(http.MethodDelete, "/posts/"+post["_id"].(string), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"name":"Forbidden","message":"posts are forever"}`, string(raw))
	s.read(t, "/posts", post["_id"].(string))
}

func TestHooksFromBuilder(t *testing.T) {
	var updated []string
	s := createTestServiceWithBuilder(&backend.Builder{
		Config: `{"pluralize": true}`,
		Hooks: map[string]map[core.Operation]backend.Hook{
			"Post": {
				core.OperationUpdate: func(ctx context.Context, request backend.Request, data interface{}) error {
					updated = append(updated, request.ResourceID)
					return nil
				},
			},
		},
	})
	post := s.create(t, "/posts", record{"title": "X"})
	_, err := s.client.Collection("/posts").Item(post["_id"].(string)).Update(record{"views": 3})
	require.NoError(t, err)
	assert.Equal(t, []string{post["_id"].(string)}, updated)
}
