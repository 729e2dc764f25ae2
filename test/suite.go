// Package test runs the backend against real databases and a kafka broker in
// docker containers. The tests only run with INTEGRATION set.
package test

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/autorest/core/csql"
	"github.com/relabs-tech/autorest/core/store/mongo"
)

// IntegrationEnv enables the integration tests when set
const IntegrationEnv = "INTEGRATION"

func integrationEnabled() bool {
	return os.Getenv(IntegrationEnv) != ""
}

// IntegrationTestSuite starts postgres, mongodb and kafka containers on a shared network
type IntegrationTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc

	network    testcontainers.Network
	containers []testcontainers.Container

	kafkaConn *kafka.Conn
	kafkaAddr string

	mongoURI string
	mongo    *mongo.Store

	dbConn *csql.DB
}

func (s *IntegrationTestSuite) start(req testcontainers.ContainerRequest) testcontainers.Container {
	c, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err, "cannot start %s", req.Image)
	s.containers = append(s.containers, c)
	return c
}

func (s *IntegrationTestSuite) endpoint(c testcontainers.Container, port string) string {
	host, err := c.Host(s.ctx)
	s.Require().NoError(err)
	mapped, err := c.MappedPort(s.ctx, nat.Port(port))
	s.Require().NoError(err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func (s *IntegrationTestSuite) createTopic(topic string, numPartitions int) error {
	if s.kafkaConn == nil {
		return fmt.Errorf("kafka connection is not established")
	}
	err := s.kafkaConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	return nil
}

func (s *IntegrationTestSuite) deleteTopic(topic string) error {
	if s.kafkaConn == nil {
		return fmt.Errorf("kafka connection is not established")
	}
	if err := s.kafkaConn.DeleteTopics(topic); err != nil {
		return fmt.Errorf("failed to delete topic %s: %w", topic, err)
	}
	return nil
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	networkName := "test-autorest-network_" + fmt.Sprintf("%d", time.Now().Unix())
	network, err := testcontainers.GenericNetwork(s.ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:           networkName,
			CheckDuplicate: true,
		},
	})
	s.Require().NoError(err)
	s.network = network

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"
	pgC := s.start(testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"postgres"}},
		WaitingFor:     wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})
	pgHost, err := pgC.Host(s.ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(s.ctx, "5432")
	s.Require().NoError(err)
	s.dbConn = csql.OpenWithSchema(fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB), postgresPassword, "autorest")

	mongoC := s.start(testcontainers.ContainerRequest{
		Image:          "mongo:7",
		ExposedPorts:   []string{"27017/tcp"},
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"mongo"}},
		WaitingFor:     wait.ForListeningPort("27017/tcp"),
	})
	s.mongoURI = "mongodb://" + s.endpoint(mongoC, "27017")
	s.mongo, err = mongo.Connect(s.ctx, s.mongoURI, "autorest")
	s.Require().NoError(err)

	s.start(testcontainers.ContainerRequest{
		Image:        "confluentinc/cp-zookeeper:7.5.0",
		ExposedPorts: []string{"2181/tcp"},
		Env: map[string]string{
			"ZOOKEEPER_CLIENT_PORT": "2181",
			"ZOOKEEPER_TICK_TIME":   "2000",
		},
		WaitingFor:     wait.ForListeningPort("2181/tcp"),
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"zookeeper"}},
	})
	kafkaC := s.start(testcontainers.ContainerRequest{
		Image:        "confluentinc/cp-kafka:7.5.0",
		ExposedPorts: []string{"9092:9092/tcp", "29092:29092/tcp"},
		Env: map[string]string{
			"KAFKA_BROKER_ID":                        "1",
			"KAFKA_ZOOKEEPER_CONNECT":                "zookeeper:2181",
			"KAFKA_LISTENERS":                        "PLAINTEXT://0.0.0.0:9092,PLAINTEXT_HOST://0.0.0.0:29092,EXTERNAL://0.0.0.0:9093",
			"KAFKA_ADVERTISED_LISTENERS":             "PLAINTEXT://localhost:9092,PLAINTEXT_HOST://localhost:29092,EXTERNAL://kafka:9093",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "PLAINTEXT:PLAINTEXT,PLAINTEXT_HOST:PLAINTEXT,EXTERNAL:PLAINTEXT",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
			"ALLOW_PLAINTEXT_LISTENER":               "yes",
		},
		WaitingFor:     wait.ForLog("started (kafka.server.KafkaServer)"),
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"kafka"}},
	})
	s.kafkaAddr = s.endpoint(kafkaC, "9092")
	s.kafkaConn, err = kafka.Dial("tcp", s.kafkaAddr)
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.kafkaConn != nil {
		s.kafkaConn.Close()
	}
	if s.dbConn != nil {
		s.dbConn.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	for i := len(s.containers) - 1; i >= 0; i-- {
		s.NoError(s.containers[i].Terminate(ctx))
	}
	if s.network != nil {
		s.NoError(s.network.Remove(ctx))
	}
}

// newRouter returns a fresh router for one backend under test
func (s *IntegrationTestSuite) newRouter() *mux.Router {
	return mux.NewRouter()
}
