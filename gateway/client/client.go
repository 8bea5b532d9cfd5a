package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// HTTPConfig holds the settings shared by every upstream client.
type HTTPConfig struct {
	TimeoutSeconds int `conf:"UPSTREAM_TIMEOUT_SECONDS"`
	RetryMax       int `conf:"UPSTREAM_RETRY_MAX"`
	RetryWaitMinMS int `conf:"UPSTREAM_RETRY_WAIT_MIN_MS"`
	RetryWaitMaxMS int `conf:"UPSTREAM_RETRY_WAIT_MAX_MS"`

	// Optional mutual TLS material for Spine facing calls
	ClientCertFile string `conf:"UPSTREAM_CLIENT_CERT_FILE"`
	ClientKeyFile  string `conf:"UPSTREAM_CLIENT_KEY_FILE"`
	CAFile         string `conf:"UPSTREAM_CA_FILE"`
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		TimeoutSeconds: 10,
		RetryMax:       2,
		RetryWaitMinMS: 100,
		RetryWaitMaxMS: 2000,
	}
}

// NewHTTPClient builds a retrying *http.Client. Retries cover connection
// failures and 5xx responses; once they are exhausted the last response is
// handed back so callers can see the upstream status.
func NewHTTPClient(cfg HTTPConfig, logger logrus.FieldLogger) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	tlsConfig, err := tlsConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = time.Duration(cfg.RetryWaitMinMS) * time.Millisecond
	rc.RetryWaitMax = time.Duration(cfg.RetryWaitMaxMS) * time.Millisecond
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = checkRetry
	rc.Logger = &leveledLogger{logger}

	return rc.StandardClient(), nil
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func tlsConfig(cfg HTTPConfig) (*tls.Config, error) {
	if cfg.ClientCertFile == "" && cfg.CAFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.ClientCertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "could not load upstream client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(filepath.Clean(cfg.CAFile))
		if err != nil {
			return nil, errors.Wrap(err, "could not read upstream CA file")
		}
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
			return nil, errors.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}

// leveledLogger routes retryablehttp's logging into logrus.
type leveledLogger struct {
	logger logrus.FieldLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Error(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Info(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Warn(msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}

func logRequest(logger logrus.FieldLogger, req *http.Request, fields logrus.Fields) {
	logger.WithFields(fields).WithFields(logrus.Fields{
		"method": req.Method,
		"uri":    req.URL.String(),
	}).Infoln("upstream request")
}

func logResponse(logger logrus.FieldLogger, req *http.Request, statusCode int, elapsed time.Duration, err error) {
	entry := logger.WithFields(logrus.Fields{
		"method":          req.Method,
		"uri":             req.URL.String(),
		"resp_code":       statusCode,
		"resp_elapsed_ms": float64(elapsed.Nanoseconds()) / 1000000.0,
	})
	if err != nil {
		entry.WithError(err).Errorln("upstream response")
		return
	}
	entry.Infoln("upstream response")
}
