package service

import (
	"github.com/NHSDigital/clinical-data-gateway-api/conf"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/pkg/errors"
)

// Config holds the upstream settings for the structured record flow.
type Config struct {
	PDSBaseURL           string `conf:"PDS_BASE_URL"`
	SDSBaseURL           string `conf:"SDS_BASE_URL"`
	SDSAPIKey            string `conf:"SDS_API_KEY"`
	SessionURID          string `conf:"NHSD_SESSION_URID"`
	ServiceInteractionID string `conf:"GPC_SERVICE_INTERACTION_ID"`

	client.HTTPConfig `conf:",squash"`
}

// LoadConfig starts from the sandbox defaults and overlays whatever is set in
// the config file or environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		PDSBaseURL:           constants.PDSSandboxURL,
		SDSBaseURL:           constants.SDSSandboxURL,
		ServiceInteractionID: constants.DefaultServiceInteractionID,
		HTTPConfig:           client.DefaultHTTPConfig(),
	}
	if err := conf.Checkout(cfg); err != nil {
		return nil, errors.Wrap(err, "could not load gateway configuration")
	}
	if cfg.TimeoutSeconds <= 0 {
		return nil, errors.Errorf("UPSTREAM_TIMEOUT_SECONDS must be positive, got %d", cfg.TimeoutSeconds)
	}
	if cfg.RetryMax < 0 {
		return nil, errors.Errorf("UPSTREAM_RETRY_MAX must not be negative, got %d", cfg.RetryMax)
	}
	return cfg, nil
}
