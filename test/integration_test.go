package test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/backend"
	"github.com/relabs-tech/autorest/core/client"
	"github.com/relabs-tech/autorest/core/model"
	"github.com/relabs-tech/autorest/core/notifier"
	"github.com/relabs-tech/autorest/core/store"
	"github.com/relabs-tech/autorest/core/store/postgres"
)

type record = map[string]interface{}

type StoresTestSuite struct {
	IntegrationTestSuite
}

func TestStoresTestSuite(t *testing.T) {
	if !integrationEnabled() {
		t.Skip("set " + IntegrationEnv + " to run the integration tests")
	}
	suite.Run(t, &StoresTestSuite{})
}

func blogRegistry() *model.Registry {
	registry := model.NewRegistry()
	registry.MustRegister("User", model.NewSchema(
		model.Field{Name: "name", Type: model.String, Required: true},
		model.Field{Name: "posts", Type: model.ObjectID, Ref: "Post", Array: true},
	))
	comment := model.NewSchema(
		model.Field{Name: "message", Type: model.String},
	)
	registry.MustRegister("Post", model.NewSchema(
		model.Field{Name: "title", Type: model.String, Required: true},
		model.Field{Name: "author", Type: model.ObjectID, Ref: "User"},
		model.Field{Name: "comments", Schema: comment, Array: true},
		model.Field{Name: "views", Type: model.Number},
		model.Field{Name: "createdAt", Type: model.Date, Default: model.Now},
	))
	return registry
}

func (s *StoresTestSuite) newBackend(st store.Store, n core.Notifier) (*backend.Backend, client.Client) {
	router := s.newRouter()
	b := backend.MustNew(&backend.Builder{
		Config:   `{"pluralize": true}`,
		Registry: blogRegistry(),
		Store:    st,
		Router:   router,
		Notifier: n,
	})
	return b, client.NewWithRouter(router)
}

func (s *StoresTestSuite) postgresStore() store.Store {
	s.dbConn.ClearSchema()
	var collections []string
	for _, rt := range blogRegistry().Types() {
		collections = append(collections, rt.Collection())
	}
	st, err := postgres.New(s.ctx, s.dbConn, collections...)
	s.Require().NoError(err)
	return st
}

func (s *StoresTestSuite) mongoStore() store.Store {
	s.Require().NoError(s.mongo.Database().Drop(s.ctx))
	return s.mongo
}

func (s *StoresTestSuite) TestPostgres() {
	s.exercise(s.postgresStore())
}

func (s *StoresTestSuite) TestMongo() {
	s.exercise(s.mongoStore())
}

// exercise runs the same record lifecycle against a store
func (s *StoresTestSuite) exercise(st store.Store) {
	b, c := s.newBackend(st, nil)
	users := c.Collection("/users")
	posts := c.Collection("/posts")

	var user record
	_, err := users.Create(record{"name": "Dave"}, &user)
	s.Require().NoError(err)
	userID := user["_id"].(string)

	ids := []string{}
	for i, title := range []string{"Alpha", "Beta", "Gamma"} {
		var post record
		_, err = posts.Create(record{"title": title, "views": i * 10, "author": userID}, &post)
		s.Require().NoError(err)
		s.Equal(0.0, post["__v"])
		ids = append(ids, post["_id"].(string))
	}
	b.Drain()

	var read record
	_, err = users.Item(userID).Read(&read)
	s.Require().NoError(err)
	s.ElementsMatch(ids, read["posts"])

	var list []record
	_, err = posts.WithFilter("views", `{"$gte":10}`).WithParameter("__sort", "-views").List(&list)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("Gamma", list[0]["title"])
	s.Equal("Beta", list[1]["title"])

	count, err := posts.Count()
	s.Require().NoError(err)
	s.Equal(int64(3), count)

	list = nil
	_, err = posts.WithFilter("title", "Alpha").WithParameter("__populate", "author").List(&list)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("Dave", list[0]["author"].(record)["name"])

	item := posts.Item(ids[0])
	_, err = item.Update(record{"views": 99})
	s.Require().NoError(err)
	var comment record
	_, err = item.Subcollection("comments").Create(record{"message": "Marvelous."}, &comment)
	s.Require().NoError(err)
	read = nil
	_, err = item.Read(&read)
	s.Require().NoError(err)
	s.Equal(99.0, read["views"])
	s.Len(read["comments"], 1)

	_, err = item.Delete()
	s.Require().NoError(err)
	b.Drain()
	status, _, err := c.Raw(http.MethodGet, item.Path(), nil)
	s.Require().NoError(err)
	s.Equal(http.StatusNotFound, status)

	read = nil
	_, err = users.Item(userID).Read(&read)
	s.Require().NoError(err)
	s.ElementsMatch(ids[1:], read["posts"])
}

func (s *StoresTestSuite) TestKafkaNotifications() {
	topic := "records." + uuid.New().String()
	s.Require().NoError(s.createTopic(topic, 1))
	defer s.deleteTopic(topic)

	kn := notifier.NewKafka(notifier.KafkaBuilder{Brokers: []string{s.kafkaAddr}, Topic: topic})
	defer kn.Close()
	_, c := s.newBackend(s.mongoStore(), kn)

	var post record
	_, err := c.Collection("/posts").Create(record{"title": "Alpha"}, &post)
	s.Require().NoError(err)
	_, err = c.Collection("/posts").Item(post["_id"].(string)).Delete()
	s.Require().NoError(err)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   []string{s.kafkaAddr},
		Topic:     topic,
		Partition: 0,
		MaxWait:   time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	operations := []string{}
	for len(operations) < 2 {
		m, err := reader.ReadMessage(ctx)
		s.Require().NoError(err)
		s.Equal("Post", string(m.Key))
		for _, h := range m.Headers {
			if h.Key == notifier.HeaderOperation {
				operations = append(operations, string(h.Value))
			}
		}
		var payload record
		s.Require().NoError(json.Unmarshal(m.Value, &payload))
		s.Equal(post["_id"], payload["_id"])
	}
	s.Equal([]string{"create", "delete"}, operations)
}
