package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/bnema/archectl/internal/config"
)

func init() {
	// Silence the default charmbracelet/log logger
	// All logging should go through our custom logger instance
	log.SetLevel(log.FatalLevel)
}

var (
	// Log is the global logger instance
	Log *log.Logger

	logFile *os.File
)

// Init initializes the logger.
// When verbose is false, logs go to file only.
// When verbose is true, logs go to both file and stderr at debug level.
func Init(verbose bool) error {
	logDir := config.StateDir()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		Log = stderrLogger(verbose)
		return nil
	}

	var err error
	logFile, err = os.OpenFile(Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		Log = stderrLogger(verbose)
		return nil
	}

	var output io.Writer = logFile
	if verbose {
		output = io.MultiWriter(logFile, os.Stderr)
	}

	Log = log.NewWithOptions(output, log.Options{
		ReportTimestamp: true,
	})

	if verbose {
		Log.SetLevel(log.DebugLevel)
	} else {
		Log.SetLevel(log.InfoLevel)
	}

	return nil
}

func stderrLogger(verbose bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.WarnLevel)
	}
	return l
}

// Get returns the global logger, or a discarding one before Init ran.
func Get() *log.Logger {
	if Log == nil {
		return log.New(io.Discard)
	}
	return Log
}

// Named returns a child logger with the given prefix.
func Named(prefix string) *log.Logger {
	return Get().WithPrefix(prefix)
}

// Close closes the log file
func Close() {
	if logFile != nil {
		_ = logFile.Close()
	}
}

// Path returns the path to the log file
func Path() string {
	return filepath.Join(config.StateDir(), config.AppName+".log")
}
