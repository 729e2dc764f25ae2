/*
Package backend implements the generated REST API

A backend takes a registry of record types, a store and a mux router, and derives all
routes from the schemas of the record types. No handler code is written per type.

Configuration

The configuration is done via JSON. All keys are optional.

Example:
  {
	"path": "/api",
	"pluralize": true,
	"lowercase": true,
	"exclude": ["Secret"],
	"puts": false,
	"relate": true,
	"case_sensitive": true,
	"strict": true,
	"cors": { "origins": ["https://example.com"] },
	"compress": true,
	"statistics": true
  }

"path" is the mount path and always ends with a slash. The route prefix of a record type is
the mount path plus the type name, pluralized with "pluralize" and lower-cased unless
"lowercase" is false. Types listed in "exclude" get no routes, but Backend.Resource still
returns their handlers for direct invocation.

For a type Post with an instance method "publish" and a sub-document array "comments", the
example creates these routes, in this order:
	GET /api/posts
	POST /api/posts
	GET /api/posts/new
	GET /api/posts/{id}
	POST /api/posts/{id}
	DELETE /api/posts/{id}
	POST /api/posts/{id}/publish
	GET /api/posts/{id}/comments
	POST /api/posts/{id}/comments
	GET /api/posts/{id}/comments/{sub_id}
	POST /api/posts/{id}/comments/{sub_id}
	DELETE /api/posts/{id}/comments/{sub_id}

With "puts", PUT is an alias of POST on the collection and item routes. Types are visited in
registration order, so the route table is the same for every run. Backend.Routes returns it.

Operations

	GET prefix                search, responds 200 with a list of records
	POST prefix               create, responds 201 with the new record
	GET prefix/new            responds 200 with a record of defaults, nothing is stored
	GET prefix/{id}           read, responds 200 or 404
	POST prefix/{id}          update, merges the body into the record, responds 204 or 404
	DELETE prefix/{id}        delete, responds 204 or 404
	POST prefix/{id}/{name}   invokes the instance method, responds 200 with its result

Validation errors respond 400 with a structured body:

	{"name":"ValidationError","message":"Validation failed","errors":{"title":{...}}}

Errors of pre-save functions and hooks are passed to the client as they render to JSON.
Unexpected store errors respond 500 with a numbered error code, which is logged together
with the cause.

Queries

The query parameters of search are translated by package query: every parameter not starting
with a double underscore is a filter, e.g.

	GET /api/posts?type=review&views={"$gte":100}&__sort=-createdAt&__limit=10

Read supports __populate, which replaces references by the referenced records.

Relationships

With "relate", creating a record adds its identifier to the inverse reference field of every
record it references, and deleting it removes the identifier again. A Post with an author
referencing User appears in the posts field of that user. These updates run in the
background after the response has been sent and failures are only logged. Backend.Drain
waits for them.

Hooks

A hook intercepts one operation of one record type:

	b.RegisterHook("Post", core.OperationCreate, func(ctx context.Context, request backend.Request, data interface{}) error {
		post := data.(map[string]interface{})
		if post["title"] == "" {
			return core.NewError("Blocked", "posts need a title")
		}
		return nil
	})

Create, update and delete hooks run before the store is changed and see the in-flight record.
Search and read hooks see the result before it is sent. A hook error responds 400 with the
error as body.

Notifications

If the builder has a notifier, every successful create, update and delete is passed to it as
JSON. Package notifier publishes them to Kafka.
*/
package backend
