package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger // Main logger instance

// Options controls where and how much the application logs.
type Options struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Dir    string // directory for the log file when ToFile is set
	ToFile bool   // write to Dir/tradelens.log instead of stdout
}

// Initialize sets up the logger. The CLI logs to a file so that interactive
// output stays readable; the server logs to stdout.
func Initialize(opts Options) {
	l := logrus.New()
	l.SetLevel(parseLevel(opts.Level))
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableColors:   opts.ToFile,
	})
	l.SetOutput(os.Stdout)

	if opts.ToFile {
		if out, path, err := openLogFile(opts.Dir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, logging to stderr: %v\n", err)
			l.SetOutput(os.Stderr)
		} else {
			l.SetOutput(out)
			l.SetReportCaller(true)
			defer l.WithField("log_file", path).Debug("Logging system initialized")
		}
	}

	Logger = l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func openLogFile(dir string) (io.Writer, string, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", err
	}
	path := filepath.Join(dir, "tradelens.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// GetLogger returns the configured logger, falling back to INFO on stdout.
func GetLogger() *logrus.Logger {
	if Logger == nil {
		Initialize(Options{Level: os.Getenv("LOG_LEVEL")})
	}
	return Logger
}

// WithContext creates a logger with additional context fields
func WithContext(fields map[string]interface{}) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithFile creates a logger scoped to one journal file
func WithFile(fileID string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"file_id":   fileID,
		"component": "session",
	})
}

// WithStore creates a logger for a store operation
func WithStore(op string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"op":        op,
		"component": "store",
	})
}

// WithLLM creates a logger with LLM service context
func WithLLM(provider, callType string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"component": "llm_service",
		"provider":  provider,
		"call_type": callType,
	})
}

// WithError creates a logger with error context
func WithError(err error, component string) *logrus.Entry {
	fields := logrus.Fields{
		"error":     err.Error(),
		"component": component,
	}

	if GetLogger().GetLevel() >= logrus.DebugLevel {
		fields["stack_trace"] = getStackTrace()
	}

	return GetLogger().WithFields(fields)
}

// getStackTrace returns a formatted stack trace
func getStackTrace() string {
	var stack []string
	for i := 2; i < 10; i++ {
		if pc, file, line, ok := runtime.Caller(i); ok {
			fn := runtime.FuncForPC(pc)
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}
	return strings.Join(stack, "\n")
}

func Debug(msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	GetLogger().WithFields(fields).Debug(msg)
}

func Info(msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	GetLogger().WithFields(fields).Info(msg)
}

func Warn(msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	GetLogger().WithFields(fields).Warn(msg)
}

func Error(msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	GetLogger().WithFields(fields).Error(msg)
}

func Fatal(msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	GetLogger().WithFields(fields).Fatal(msg)
}
