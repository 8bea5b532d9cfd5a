package logging

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/servicemux"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// https://github.com/go-chi/chi/blob/master/_examples/logging/main.go

func NewStructuredLogger() func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&StructuredLogger{Logger: log.Request})
}

type StructuredLogger struct {
	Logger logrus.FieldLogger
}

func (l *StructuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	logFields := requestFields(r)
	logFields["ts"] = time.Now().UTC().Format(time.RFC1123)
	return &log.StructuredLoggerEntry{Logger: l.Logger.WithFields(logFields)}
}

// NewCtxLogger places a request scoped API logger on the context so handlers
// and upstream clients log with the same request fields.
func NewCtxLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logFields := requestFields(r)
		entry := &log.StructuredLoggerEntry{Logger: log.API.WithFields(logFields)}
		ctx := context.WithValue(r.Context(), log.CtxLoggerKey, entry)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestFields(r *http.Request) logrus.Fields {
	scheme := "http"
	if servicemux.IsHTTPS(r) {
		scheme = "https"
	}

	logFields := logrus.Fields{
		"http_scheme":     scheme,
		"http_proto":      r.Proto,
		"http_method":     r.Method,
		"remote_addr":     r.RemoteAddr,
		"forwarded_for":   r.Header.Get("X-Forwarded-For"),
		"user_agent":      r.UserAgent(),
		"accept_encoding": r.Header.Get("Accept-Encoding"),
		"uri":             fmt.Sprintf("%s://%s%s", scheme, r.Host, Redact(r.RequestURI)),
	}

	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		logFields["request_id"] = reqID
	}
	if traceID := r.Header.Get(constants.TraceIDHeader); traceID != "" {
		logFields["ssp_trace_id"] = traceID
	}
	if odsFrom := r.Header.Get(constants.ODSFromHeader); odsFrom != "" {
		logFields["ods_from"] = odsFrom
	}
	return logFields
}

var bearerToken = regexp.MustCompile(`(?i)Bearer(%20|\+)([^&]+)(&|$)`)

// Redact masks bearer tokens passed as query parameters.
func Redact(uri string) string {
	return bearerToken.ReplaceAllString(uri, "Bearer$1<redacted>$3")
}
