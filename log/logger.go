package log

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/conf"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

const sourceApp = "clinical-data-gateway"

var (
	API     logrus.FieldLogger
	Request logrus.FieldLogger

	PDS      logrus.FieldLogger
	SDS      logrus.FieldLogger
	Provider logrus.FieldLogger

	Mock logrus.FieldLogger
)

func init() {
	SetupLoggers()
}

// SetupLoggers (re)creates every package level logger from the current
// configuration. Tests call it after pointing a log variable at a temp file.
func SetupLoggers() {
	env := conf.GetEnv("DEPLOYMENT_TARGET")

	API = Logger(logrus.New(), conf.GetEnv("GATEWAY_ERROR_LOG"), "api", env)
	Request = Logger(logrus.New(), conf.GetEnv("GATEWAY_REQUEST_LOG"), "api", env)

	PDS = Logger(logrus.New(), conf.GetEnv("GATEWAY_UPSTREAM_LOG"), "pds", env)
	SDS = Logger(logrus.New(), conf.GetEnv("GATEWAY_UPSTREAM_LOG"), "sds", env)
	Provider = Logger(logrus.New(), conf.GetEnv("GATEWAY_UPSTREAM_LOG"), "provider", env)

	Mock = Logger(logrus.New(), conf.GetEnv("GATEWAY_ERROR_LOG"), "mock", env)
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	} else if conf.GetEnv("GATEWAY_LOG_FORMAT") == "text" {
		// Local runs only; deployed log shipping expects JSON
		logger.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
		logger.SetOutput(colorable.NewColorableStderr())
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment,
		"source_app":  sourceApp,
		"version":     constants.Version})
}

type CtxLoggerKeyType string

// CtxLoggerKey is the context key holding the request scoped *StructuredLoggerEntry.
const CtxLoggerKey CtxLoggerKeyType = "ctxLogger"

// StructuredLoggerEntry is the per request log entry. It satisfies chi's
// middleware.LogEntry so the request logger can place it on the context.
type StructuredLoggerEntry struct {
	Logger logrus.FieldLogger
}

func (l *StructuredLoggerEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	l.Logger = l.Logger.WithFields(logrus.Fields{
		"resp_status": status, "resp_bytes_length": bytes,
		"resp_elapsed_ms": float64(elapsed.Nanoseconds()) / 1000000.0,
	})

	l.Logger.Infoln("request complete")
}

func (l *StructuredLoggerEntry) Panic(v interface{}, stack []byte) {
	l.Logger = l.Logger.WithFields(logrus.Fields{
		"stack": string(stack),
		"panic": fmt.Sprintf("%+v", v),
	})
}

// GetCtxLogger returns the request scoped logger, falling back to API when the
// context has none.
func GetCtxLogger(ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return API
	}
	if entry, ok := ctx.Value(CtxLoggerKey).(*StructuredLoggerEntry); ok && entry.Logger != nil {
		return entry.Logger
	}
	return API
}

// SetCtxLogger adds a single field to the request scoped logger.
func SetCtxLogger(ctx context.Context, key string, value interface{}) (context.Context, logrus.FieldLogger) {
	return SetLoggerFields(ctx, logrus.Fields{key: value})
}

// SetLoggerFields adds fields to the request scoped logger and stores the
// result back on the returned context.
func SetLoggerFields(ctx context.Context, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	logger := GetCtxLogger(ctx).WithFields(fields)
	if entry, ok := ctx.Value(CtxLoggerKey).(*StructuredLoggerEntry); ok {
		entry.Logger = logger
		return ctx, logger
	}
	return context.WithValue(ctx, CtxLoggerKey, &StructuredLoggerEntry{Logger: logger}), logger
}

func WriteErrorWithFields(ctx context.Context, msg string, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	ctx, logger := SetLoggerFields(ctx, fields)
	logger.Error(msg)
	return ctx, logger
}

func WriteWarnWithFields(ctx context.Context, msg string, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	ctx, logger := SetLoggerFields(ctx, fields)
	logger.Warn(msg)
	return ctx, logger
}

func WriteInfoWithFields(ctx context.Context, msg string, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	ctx, logger := SetLoggerFields(ctx, fields)
	logger.Info(msg)
	return ctx, logger
}
