package logger

import (
	"log/slog"
	"os"
)

var log *slog.Logger = slog.Default()

// Init configures the global logger. Production gets JSON output,
// everything else gets text with debug enabled.
func Init(environment string) {
	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	log = slog.New(handler)
}

func Debug(msg string, keysAndValues ...any) {
	log.Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	log.Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	log.Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	log.Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	log.Error(msg, keysAndValues...)
	os.Exit(1)
}
