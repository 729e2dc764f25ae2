// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend_test

import (
	"context"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/backend"
	"github.com/relabs-tech/autorest/core/client"
	"github.com/relabs-tech/autorest/core/model"
	"github.com/relabs-tech/autorest/core/store/memory"
)

// TestService bundles a backend on an in-memory store with a client talking to its router
type TestService struct {
	Router   *mux.Router
	Store    *memory.Store
	Registry *model.Registry
	backend  *backend.Backend
	client   client.Client
}

// CreateTestService creates a new service that can be used for testing, with the blog
// model registered
func CreateTestService(config string) *TestService {
	return createTestServiceWithBuilder(&backend.Builder{Config: config})
}

// createTestServiceWithBuilder completes builder with a fresh store and router. Without
// registry the blog model is used.
func createTestServiceWithBuilder(builder *backend.Builder) *TestService {
	s := TestService{
		Router:   mux.NewRouter(),
		Store:    memory.New(),
		Registry: builder.Registry,
	}
	if s.Registry == nil {
		s.Registry = blogRegistry()
	}
	builder.Registry = s.Registry
	builder.Store = s.Store
	builder.Router = s.Router
	s.backend = backend.MustNew(builder)
	s.client = client.NewWithRouter(s.Router)
	return &s
}

// blogRegistry registers User, Post with embedded comments, Place with a geospatial
// index and Secret
func blogRegistry() *model.Registry {
	registry := model.NewRegistry()

	registry.MustRegister("User", model.NewSchema(
		model.Field{Name: "name", Type: model.String, Required: true},
		model.Field{Name: "email", Type: model.String},
		model.Field{Name: "posts", Type: model.ObjectID, Ref: "Post", Array: true},
	))

	comment := model.NewSchema(
		model.Field{Name: "message", Type: model.String},
		model.Field{Name: "createdAt", Type: model.Date, Default: model.Now},
	).AddPreSave(func(doc map[string]interface{}) error {
		if message, _ := doc["message"].(string); len(message) <= 5 {
			return core.NewError("ValidateLength", "Comments must be longer than 5 characters.")
		}
		return nil
	})

	registry.MustRegister("Post", model.NewSchema(
		model.Field{Name: "title", Type: model.String, Required: true},
		model.Field{Name: "author", Type: model.ObjectID, Ref: "User"},
		model.Field{Name: "comments", Schema: comment, Array: true},
		model.Field{Name: "type", Type: model.String, Default: "article", Enum: []string{"article", "review"}},
		model.Field{Name: "views", Type: model.Number},
		model.Field{Name: "createdAt", Type: model.Date, Default: model.Now},
	).AddMethod("publish", func(ctx context.Context, record map[string]interface{}, params map[string]string, body map[string]interface{}) (interface{}, error) {
		if record["title"] == "" {
			return nil, core.NewError("PublishError", "a post needs a title")
		}
		return map[string]interface{}{"published": record["_id"], "channel": params["channel"]}, nil
	}).AddMethod("shout", func(ctx context.Context, record map[string]interface{}, params map[string]string, body map[string]interface{}) (interface{}, error) {
		title, _ := record["title"].(string)
		return strings.ToUpper(title), nil
	}))

	registry.MustRegister("Place", model.NewSchema(
		model.Field{Name: "name", Type: model.String},
		model.Field{Name: "location", Type: model.Point},
	).AddIndex(map[string]string{"location": model.GeoIndex}))

	registry.MustRegister("Secret", model.NewSchema(
		model.Field{Name: "value", Type: model.String},
	))
	return registry
}
