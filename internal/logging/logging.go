package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the name of the rotating log file inside the log directory.
const LogFileName = "worklog-report.log"

// Init initializes the global logger with dual sinks: os.Stderr and a rotating file.
// It returns the directory the file sink writes to.
func Init(verbose bool) (string, error) {
	// Init runs before config.Load, so LOGS_FOLDER may still live in the binary's .env.
	exePath, err := os.Executable()
	if err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exePath), ".env"))
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	logDir := os.Getenv("LOGS_FOLDER")
	if logDir == "" {
		if dataPath := os.Getenv("DATA_PATH"); dataPath != "" {
			logDir = filepath.Join(dataPath, "logs")
		} else if err == nil {
			logDir = filepath.Join(filepath.Dir(exePath), "logs")
		} else {
			logDir = "logs"
		}
	}

	fileWriter, err := NewFileWriter(logDir)
	if err != nil {
		// Console logging still works; the caller decides whether that is fatal.
		log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
		return logDir, err
	}

	multi := zerolog.MultiLevelWriter(io.Writer(consoleWriter), fileWriter)
	log.Logger = zerolog.New(multi).
		With().
		Timestamp().
		Logger()
	return logDir, nil
}

// NewFileWriter returns a rotating writer for LogFileName inside logDir, creating
// the directory and checking it is writable.
func NewFileWriter(logDir string) (io.Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", logDir, err)
	}

	testFile := filepath.Join(logDir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return nil, fmt.Errorf("log directory %q is not writable: %w", logDir, err)
	}
	_ = os.Remove(testFile)

	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFileName),
		MaxSize:    16, // megabytes
		MaxBackups: 32,
		MaxAge:     365, // days
		Compress:   true,
	}, nil
}

// WithRun returns a child of the global logger tagged with the run id.
func WithRun(runID string) zerolog.Logger {
	return log.Logger.With().Str("run_id", runID).Logger()
}
