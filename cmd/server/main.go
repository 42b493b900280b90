package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/order-service/internal/app"
	"github.com/linemk/order-service/internal/app/handlers"
	"github.com/linemk/order-service/internal/config"
	"github.com/linemk/order-service/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/order-service/internal/lib/logger"
	"github.com/linemk/order-service/internal/lib/logger/handlers/urllog"
	"github.com/linemk/order-service/internal/lib/metrics"
	"github.com/pkg/errors"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting order service", slog.String("env", cfg.Env))

	// БД, клиенты соседних сервисов, получатели событий
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Error("failed to release resources", slog.Any("error", err))
		}
	}()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go application.Hub.Run(hubCtx)

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(application.Metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	orderService := application.OrderService

	router.Handle("/metrics", metrics.Handler(application.Registry))
	router.Get("/ws/orders", application.Hub.HandleWebSocket)

	router.Route("/api/orders", func(r chi.Router) {
		r.Get("/health", handlers.HealthHandler(log, application.Orders, application.Identity, application.Breakers))

		r.Group(func(r chi.Router) {
			r.Use(jwtmiddleware.NewJWTMiddleware(cfg.JWT.Secret, cfg.JWT.TrustUserHeader))

			r.Post("/", handlers.CreateOrderHandler(log, orderService))
			r.Get("/", handlers.ListOrdersHandler(log, orderService))
			r.Get("/stats", handlers.OrderStatsHandler(log, orderService))
			r.Get("/my", handlers.MyOrdersHandler(log, orderService))
			r.Get("/user/{userId}", handlers.UserOrdersHandler(log, orderService))
			r.Get("/number/{orderNumber}", handlers.GetOrderByNumberHandler(log, orderService))
			r.Get("/{id}", handlers.GetOrderHandler(log, orderService))
			r.Patch("/{id}/status", handlers.UpdateOrderStatusHandler(log, orderService))
			r.Post("/{id}/cancel", handlers.CancelOrderHandler(log, orderService))
		})
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	stopHub()
	log.Info("server gracefully stopped")
}
