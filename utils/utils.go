package utils

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// GetLogger returns the process-wide structured logger. LOG_LEVEL selects the
// minimum level (debug, info, warn, error) and LOG_FORMAT=json switches the
// handler to JSON output.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}
		var handler slog.Handler
		if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(os.Stderr, opts)
		}
		logger = slog.New(handler)
	})
	return logger
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnv reads an environment variable, falling back to def when unset or blank.
func GetEnv(key string, def ...string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" && len(def) > 0 {
		return def[0]
	}
	return value
}

// CreateFolder creates the folder and any missing parents.
func CreateFolder(folderPath string) error {
	return os.MkdirAll(folderPath, 0755)
}

// GenerateUniqueID returns a random 32-bit identifier.
func GenerateUniqueID() uint32 {
	return uuid.New().ID()
}

// NewRecordID returns a random UUID string for stored records.
func NewRecordID() string {
	return uuid.NewString()
}
