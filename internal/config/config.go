package config

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env            string               `yaml:"env" env-default:"development"` // environment
	HTTPServer     HTTPServerConfig     `yaml:"http_server"`
	Database       DatabaseConfig       `yaml:"database"`
	JWT            JWTConfig            `yaml:"jwt"`
	Migrations     MigrationsConfig     `yaml:"migrations"`
	Orders         OrdersConfig         `yaml:"orders"`
	Clients        ClientsConfig        `yaml:"clients"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Kafka          KafkaConfig          `yaml:"kafka"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
	SSLMode  string `yaml:"ssl_mode" env-default:"disable"`
}

// DSN строка подключения для lib/pq и golang-migrate
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// JWTConfig настройка jwt
type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"60"`

	// X-User-Id без токена принимается только за gateway, включать явно
	TrustUserHeader bool `yaml:"trust_user_header" env:"JWT_TRUST_USER_HEADER" env-default:"false"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// OrdersConfig параметры расчёта заказа
type OrdersConfig struct {
	FreeShippingThreshold float64 `yaml:"free_shipping_threshold" env:"FREE_SHIPPING_THRESHOLD" env-default:"1000"`
	DefaultShippingCost   float64 `yaml:"default_shipping_cost" env:"DEFAULT_SHIPPING_COST" env-default:"50"`
	OrderNumberPrefix     string  `yaml:"order_number_prefix" env:"ORDER_NUMBER_PREFIX" env-default:"ORD"`
	DefaultCountry        string  `yaml:"default_country" env-default:"Bangladesh"`
	DefaultPageLimit      int     `yaml:"default_page_limit" env-default:"10"`
	MaxPageLimit          int     `yaml:"max_page_limit" env-default:"100"`
}

// ClientsConfig адреса соседних сервисов
type ClientsConfig struct {
	ProductServiceURL string        `yaml:"product_service_url" env:"PRODUCT_SERVICE_URL" env-default:"http://localhost:3002"`
	AuthServiceURL    string        `yaml:"auth_service_url" env:"AUTH_SERVICE_URL" env-default:"http://localhost:3001"`
	Timeout           time.Duration `yaml:"timeout" env-default:"5s"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `yaml:"max_failures" env-default:"5"`
	Timeout     time.Duration `yaml:"timeout" env-default:"30s"`
	MaxRequests int           `yaml:"max_requests" env-default:"3"`
}

// KafkaConfig публикация событий заказов
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env-default:"orders"`
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	// .env необязателен
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %v", configPath, err)
	}

	return &cfg
}
