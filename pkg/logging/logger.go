// Package logging sets up the process-wide zerolog logger.
//
// Logs go to a run-specific file under the log directory plus a console
// writer on stderr. Stdout is never written to: it carries the MCP stream.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	runID     string
	runIDOnce sync.Once
)

// RunID returns the id for this process execution, used in the log file
// name.
func RunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// DefaultLogDir returns ~/.scout/logs.
func DefaultLogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".scout", "logs"), nil
}

// Setup builds the root logger. dir selects the log directory (empty means
// DefaultLogDir); level is a zerolog level name. The returned closer flushes
// and closes the log file.
//
// If the log file cannot be opened the logger falls back to stderr only;
// logging must never take the server down.
func Setup(dir, level string) (zerolog.Logger, func() error, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}

	file, fileErr := openLogFile(dir)
	var writer io.Writer = console
	closer := func() error { return nil }
	if fileErr == nil {
		writer = zerolog.MultiLevelWriter(console, file)
		closer = file.Close
	}

	log := zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
	if fileErr != nil {
		log.Warn().Err(fileErr).Msg("file logging unavailable, using stderr only")
	}
	return log, closer, nil
}

func openLogFile(dir string) (*os.File, error) {
	if dir == "" {
		var err error
		dir, err = DefaultLogDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-scout.log", RunID()))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}
