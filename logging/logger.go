package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/mesh/pkg/paths"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
//
// Because the mesh shares a terminal with the hosting agent runtime, structured
// output goes to a per-component file under the base directory by default and
// to stderr only when debugging or when stderr is not a terminal.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()

	// Configure Level
	levelStr := "info"
	if env := os.Getenv("MESH_LOG_LEVEL"); env != "" {
		levelStr = env
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("MESH_LOG_CALLER") == "true" {
		logger.SetReportCaller(true)
	}

	switch os.Getenv("MESH_LOG_FORMAT") {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&TextFormatter{})
	}

	var writers []io.Writer

	// File sink: <base>/logs/<component>-<date>.log
	logFilePath := filepath.Join(paths.LogsDir(), fmt.Sprintf("%s-%s.log", component, time.Now().Format("2006-01-02")))
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err == nil {
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			writers = append(writers, file)
		}
	}

	// Stderr sink: only in debug mode or when stderr is piped, so interactive
	// agent sessions stay clean.
	isDebug := os.Getenv("MESH_DEBUG") == "1" || logger.GetLevel() == logrus.DebugLevel
	isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if isDebug || !isInteractive {
		writers = append(writers, os.Stderr)
	}

	if len(writers) == 0 {
		logger.SetOutput(io.Discard)
	} else {
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}
