package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/linemk/order-service/internal/lib/logger/handlers/slogpretty"
)

// окружения из config.Env
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const serviceName = "order-service"

// SetupLogger логгер сервиса заказов в stdout
func SetupLogger(env string) *slog.Logger {
	return New(env, os.Stdout)
}

// New local - цветной pretty с debug, dev - JSON с debug, prod - JSON с info и источником.
// Неизвестное окружение пишет как prod и предупреждает об этом.
func New(env string, out io.Writer) *slog.Logger {
	var handler slog.Handler

	switch env {
	case EnvLocal:
		color.NoColor = false
		handler = slogpretty.PrettyHandlerOptions{
			SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug},
		}.NewPrettyHandler(out)
	case EnvDev:
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	case EnvProd:
		handler = prodHandler(out)
	default:
		log := slog.New(prodHandler(out)).With(slog.String("service", serviceName))
		log.Warn("unknown env, using prod logging", slog.String("env", env))
		return log
	}

	return slog.New(handler).With(slog.String("service", serviceName))
}

func prodHandler(out io.Writer) slog.Handler {
	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo, AddSource: true})
}
