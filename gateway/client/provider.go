package client

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/metrics"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Provider calls a GP Connect provider through the Spine Secure Proxy.
type Provider interface {
	// AccessStructuredRecord returns the provider's response whatever its
	// status. Only a failure to get a response is an error.
	AccessStructuredRecord(ctx context.Context, req ProviderRequest) (*fhir.RawResponse, error)
}

type ProviderRequest struct {
	// Endpoint is the provider base address registered in SDS.
	Endpoint     string
	ProviderASID string
	ConsumerASID string
	TraceID      string
	// Body is the caller's Parameters resource, forwarded as is.
	Body []byte
}

type ProviderClient struct {
	client fhir.Client
	logger logrus.FieldLogger
}

var _ Provider = &ProviderClient{}

func NewProviderClient(httpClient *http.Client) *ProviderClient {
	return &ProviderClient{
		client: fhir.NewClient(httpClient),
		logger: log.Provider,
	}
}

func (c *ProviderClient) AccessStructuredRecord(ctx context.Context, pr ProviderRequest) (*fhir.RawResponse, error) {
	url := strings.TrimRight(pr.Endpoint, "/") + constants.StructuredRecordPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(pr.Body))
	if err != nil {
		return nil, errors.Wrap(err, "could not build GP Connect request")
	}

	req.Header.Set(constants.SspTraceIDHeader, pr.TraceID)
	req.Header.Set(constants.SspFromHeader, pr.ConsumerASID)
	req.Header.Set(constants.SspToHeader, pr.ProviderASID)
	req.Header.Set(constants.SspInteractionIDHeader, constants.StructuredRecordInteractionID)
	req.Header.Set(constants.ContentType, constants.FHIRJsonContentType)
	req.Header.Set(constants.Accept, constants.FHIRJsonContentType)

	logRequest(c.logger, req, logrus.Fields{
		"ssp_trace_id":  pr.TraceID,
		"provider_asid": pr.ProviderASID,
		"consumer_asid": pr.ConsumerASID,
	})

	start := time.Now()
	resp, err := c.client.DoRaw(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	logResponse(c.logger, req, status, time.Since(start), err)
	metrics.ObserveUpstream("provider", status, time.Since(start))

	if err != nil {
		return nil, errors.Wrap(err, "GP Connect request failed")
	}
	return resp, nil
}
