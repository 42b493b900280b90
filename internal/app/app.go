package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/linemk/order-service/internal/clients/identity"
	"github.com/linemk/order-service/internal/clients/product"
	"github.com/linemk/order-service/internal/config"
	"github.com/linemk/order-service/internal/events"
	"github.com/linemk/order-service/internal/lib/circuitbreaker"
	"github.com/linemk/order-service/internal/lib/metrics"
	"github.com/linemk/order-service/internal/service"
	"github.com/linemk/order-service/internal/storage"
	"github.com/linemk/order-service/internal/websocket"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sql.DB

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Breakers *circuitbreaker.Manager

	Orders       storage.OrderStorage
	Products     *product.Client
	Identity     *identity.Client
	Hub          *websocket.Hub
	OrderService service.OrderService

	kafka *events.KafkaPublisher
}

// NewApp создаёт новый экземпляр App: подключение к БД, клиенты соседних сервисов,
// получатели событий и сервис заказов
func NewApp(log *slog.Logger, cfg *config.Config) (*App, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "failed to ping database")
	}

	app, err := newApp(log, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(log *slog.Logger, cfg *config.Config, db *sql.DB) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	breakers := circuitbreaker.NewManager(log, func(name string, from, to circuitbreaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		log.Warn("circuit breaker state changed",
			slog.String("circuit_breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	breakerCfg := circuitbreaker.Config{
		MaxFailures: cfg.CircuitBreaker.MaxFailures,
		Timeout:     cfg.CircuitBreaker.Timeout,
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
	}

	products := product.New(log, cfg.Clients.ProductServiceURL, cfg.Clients.Timeout,
		breakers.GetOrCreate("product-service", breakerCfg), m)
	identityClient := identity.New(log, cfg.Clients.AuthServiceURL, cfg.Clients.Timeout,
		breakers.GetOrCreate("auth-service", breakerCfg), m)

	hub := websocket.NewHub(log, m)
	sinks := []events.Sink{{Name: "websocket", Publisher: hub}}

	var kafka *events.KafkaPublisher
	if cfg.Kafka.Enabled {
		var err error
		kafka, err = events.NewKafkaPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to connect to kafka")
		}
		sinks = append(sinks, events.Sink{Name: "kafka", Publisher: kafka})
		log.Info("kafka publisher enabled", slog.Any("brokers", cfg.Kafka.Brokers), slog.String("topic", cfg.Kafka.Topic))
	}

	orders := storage.NewOrderRepository(db)
	orderService := service.NewOrderService(log, db, orders, products,
		events.NewMultiPublisher(log, m, sinks...), m, OrderConfig(cfg.Orders))

	return &App{
		Config:       cfg,
		Logger:       log,
		DB:           db,
		Registry:     registry,
		Metrics:      m,
		Breakers:     breakers,
		Orders:       orders,
		Products:     products,
		Identity:     identityClient,
		Hub:          hub,
		OrderService: orderService,
		kafka:        kafka,
	}, nil
}

// OrderConfig переводит настройки из файла в параметры сервиса заказов
func OrderConfig(cfg config.OrdersConfig) service.OrderConfig {
	return service.OrderConfig{
		FreeShippingThreshold: decimal.NewFromFloat(cfg.FreeShippingThreshold),
		DefaultShippingCost:   decimal.NewFromFloat(cfg.DefaultShippingCost),
		OrderNumberPrefix:     cfg.OrderNumberPrefix,
		DefaultCountry:        cfg.DefaultCountry,
		DefaultPageLimit:      cfg.DefaultPageLimit,
		MaxPageLimit:          cfg.MaxPageLimit,
	}
}

// Close освобождает producer Kafka и соединения с БД
func (a *App) Close() error {
	var errs []error
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			errs = append(errs, pkgerrors.Wrap(err, "close kafka producer"))
		}
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, pkgerrors.Wrap(err, "close database"))
	}
	return errors.Join(errs...)
}
