package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the global logger instance every component derives from.
var Logger zerolog.Logger

// Initialize sets up the global logger. Level comes from the given string
// ("debug", "info", "warn", "error"); anything else means info. When
// LOG_FILE is set, output is duplicated to that file alongside the console.
func Initialize(logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}

	var writer io.Writer = consoleWriter
	if path := os.Getenv("LOG_FILE"); path != "" {
		fileWriter, err := FileWriter(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to open log file, console only")
		} else {
			writer = zerolog.MultiLevelWriter(consoleWriter, fileWriter)
		}
	}

	Logger = zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()

	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Replace standard log with zerolog
	log.Logger = Logger
}

// Get returns the global logger instance.
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a writer to a log file for optional use alongside console logging.
func FileWriter(path string) (io.Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return file, nil
}
