package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/linemk/order-service/internal/config"
	"github.com/stretchr/testify/assert"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "config_test_*.yaml")
	assert.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(content)
	assert.NoError(t, err)
	assert.NoError(t, tmpFile.Close())

	return tmpFile.Name()
}

func TestMustLoadByPath_Success(t *testing.T) {
	// обязательные переменные окружения
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")

	content := `
env: "local"
http_server:
  address: "localhost:8080"
  timeout: "4s"
  idle_timeout: "60s"
database:
  host: "localhost"
  port: 5432
  user: "postgres"
  name: "orders"
jwt:
  token_ttl: 60
  trust_user_header: true
migrations:
  path: "./migrations"
orders:
  free_shipping_threshold: 1500
  default_shipping_cost: 75.5
  order_number_prefix: "SHOP"
  default_country: "Russia"
clients:
  product_service_url: "http://products:3002/api"
  auth_service_url: "http://auth:3001/api"
  timeout: "2s"
circuit_breaker:
  max_failures: 3
  timeout: "10s"
  max_requests: 1
kafka:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: "order-events"
`
	cfg := config.MustLoadByPath(writeTempConfig(t, content))

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "localhost:8080", cfg.HTTPServer.Address)
	assert.Equal(t, 4*time.Second, cfg.HTTPServer.Timeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPServer.IdleTimeout)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "orders", cfg.Database.Name)
	assert.Equal(t, "mypassword", cfg.Database.Password)
	assert.Equal(t, "mysecret", cfg.JWT.Secret)
	assert.Equal(t, 60, cfg.JWT.TokenTTL)
	assert.True(t, cfg.JWT.TrustUserHeader)
	assert.Equal(t, "./migrations", cfg.Migrations.Path)

	assert.Equal(t, 1500.0, cfg.Orders.FreeShippingThreshold)
	assert.Equal(t, 75.5, cfg.Orders.DefaultShippingCost)
	assert.Equal(t, "SHOP", cfg.Orders.OrderNumberPrefix)
	assert.Equal(t, "Russia", cfg.Orders.DefaultCountry)

	assert.Equal(t, "http://products:3002/api", cfg.Clients.ProductServiceURL)
	assert.Equal(t, "http://auth:3001/api", cfg.Clients.AuthServiceURL)
	assert.Equal(t, 2*time.Second, cfg.Clients.Timeout)

	assert.Equal(t, 3, cfg.CircuitBreaker.MaxFailures)
	assert.Equal(t, 10*time.Second, cfg.CircuitBreaker.Timeout)
	assert.Equal(t, 1, cfg.CircuitBreaker.MaxRequests)

	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "order-events", cfg.Kafka.Topic)
}

func TestMustLoadByPath_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")

	content := `
database:
  user: "postgres"
  name: "orders"
`
	cfg := config.MustLoadByPath(writeTempConfig(t, content))

	// значения по умолчанию
	assert.Equal(t, 1000.0, cfg.Orders.FreeShippingThreshold)
	assert.Equal(t, 50.0, cfg.Orders.DefaultShippingCost)
	assert.Equal(t, "ORD", cfg.Orders.OrderNumberPrefix)
	assert.Equal(t, 10, cfg.Orders.DefaultPageLimit)
	assert.Equal(t, 100, cfg.Orders.MaxPageLimit)
	assert.Equal(t, 5, cfg.CircuitBreaker.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.Timeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.False(t, cfg.JWT.TrustUserHeader, "X-User-Id is not trusted unless enabled")
}

func TestMustLoadByPath_EnvOverride(t *testing.T) {
	t.Setenv("DB_PASSWORD", "mypassword")
	t.Setenv("JWT_SECRET", "mysecret")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "300")
	t.Setenv("ORDER_NUMBER_PREFIX", "ENV")

	content := `
database:
  user: "postgres"
  name: "orders"
orders:
  free_shipping_threshold: 1000
  order_number_prefix: "YAML"
`
	cfg := config.MustLoadByPath(writeTempConfig(t, content))

	assert.Equal(t, 300.0, cfg.Orders.FreeShippingThreshold)
	assert.Equal(t, "ENV", cfg.Orders.OrderNumberPrefix)
}

func TestMustLoadByPath_FileNotFound(t *testing.T) {
	// паника, если файла не существует
	assert.Panics(t, func() {
		config.MustLoadByPath("non_existent_config.yaml")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "orders",
		Password: "p@ss:word",
		Name:     "orders",
		SSLMode:  "require",
	}

	assert.Equal(t, "postgres://orders:p%40ss%3Aword@db:5433/orders?sslmode=require", db.DSN())
}
