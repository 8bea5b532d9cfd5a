package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/NHSDigital/clinical-data-gateway-api/middleware"
	"github.com/sirupsen/logrus"
)

// StructuredRecordRequest is an already validated structured record call.
type StructuredRecordRequest struct {
	NHSNumber   string
	TraceID     string
	ConsumerODS string
	// AuthToken is the caller's Authorization header, forwarded to PDS.
	AuthToken string
	// Body is the original Parameters resource sent to the provider.
	Body []byte
}

// Controller orchestrates PDS -> SDS -> GP Connect.
type Controller struct {
	pds      client.PDS
	sds      client.SDS
	provider client.Provider
}

func NewController(pds client.PDS, sds client.SDS, provider client.Provider) *Controller {
	return &Controller{pds: pds, sds: sds, provider: provider}
}

// NewControllerFromConfig wires the real upstream clients.
func NewControllerFromConfig(cfg *Config) (*Controller, error) {
	pdsHTTP, err := client.NewHTTPClient(cfg.HTTPConfig, log.PDS)
	if err != nil {
		return nil, err
	}
	sdsHTTP, err := client.NewHTTPClient(cfg.HTTPConfig, log.SDS)
	if err != nil {
		return nil, err
	}
	providerHTTP, err := client.NewHTTPClient(cfg.HTTPConfig, log.Provider)
	if err != nil {
		return nil, err
	}

	return NewController(
		client.NewPDSClient(cfg.PDSBaseURL, cfg.SessionURID, pdsHTTP),
		client.NewSDSClient(cfg.SDSBaseURL, cfg.SDSAPIKey, cfg.ServiceInteractionID, sdsHTTP),
		client.NewProviderClient(providerHTTP),
	), nil
}

// GetStructuredRecord returns the provider's response unchanged. Every
// failure on the gateway side is a *errors.RequestError carrying the status
// the caller should see.
func (c *Controller) GetStructuredRecord(ctx context.Context, req StructuredRecordRequest) (*fhir.RawResponse, error) {
	logger := log.GetCtxLogger(ctx).WithFields(logrus.Fields{
		"ssp_trace_id": req.TraceID,
		"consumer_ods": req.ConsumerODS,
	})
	correlationID := middleware.GetTransactionID(ctx)

	providerODS, err := c.providerODS(ctx, req, correlationID)
	if err != nil {
		return nil, err
	}

	consumerASID, providerASID, providerEndpoint, err := c.sdsDetails(ctx, req.ConsumerODS, providerODS, correlationID)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"provider_ods":  providerODS,
		"provider_asid": providerASID,
		"consumer_asid": consumerASID,
	}).Info("Calling GP Connect provider")

	resp, err := c.provider.AccessStructuredRecord(ctx, client.ProviderRequest{
		Endpoint:     providerEndpoint,
		ProviderASID: providerASID,
		ConsumerASID: consumerASID,
		TraceID:      req.TraceID,
		Body:         req.Body,
	})
	if err != nil || resp == nil {
		logger.WithError(err).Error("No response from GP Connect provider")
		return nil, gwerrors.NewRequestError(http.StatusBadGateway, constants.GPConnectServiceErr)
	}
	return resp, nil
}

func (c *Controller) providerODS(ctx context.Context, req StructuredRecordRequest, correlationID string) (string, error) {
	result, err := c.pds.SearchPatientByNHSNumber(ctx, req.NHSNumber, client.PDSRequestOptions{
		AuthToken:     req.AuthToken,
		EndUserODS:    req.ConsumerODS,
		CorrelationID: correlationID,
	})
	if err != nil {
		return "", upstreamError(ctx, err)
	}
	if result == nil {
		return "", gwerrors.NewRequestError(http.StatusNotFound,
			"No PDS patient found for NHS number %s", req.NHSNumber)
	}

	odsCode := strings.TrimSpace(result.GPODSCode)
	if odsCode == "" {
		return "", gwerrors.NewRequestError(http.StatusNotFound,
			"PDS patient %s did not contain a current provider ODS code", req.NHSNumber)
	}
	return odsCode, nil
}

func (c *Controller) sdsDetails(ctx context.Context, consumerODS, providerODS, correlationID string) (consumerASID, providerASID, providerEndpoint string, err error) {
	provider, err := c.sds.GetOrgDetails(ctx, providerODS, correlationID)
	if err != nil {
		return "", "", "", upstreamError(ctx, err)
	}
	if provider == nil {
		return "", "", "", gwerrors.NewRequestError(http.StatusNotFound,
			"No SDS org found for provider ODS code %s", providerODS)
	}

	providerASID = strings.TrimSpace(provider.ASID)
	if providerASID == "" {
		return "", "", "", gwerrors.NewRequestError(http.StatusNotFound,
			"SDS result for provider ODS code %s did not contain a current ASID", providerODS)
	}
	providerEndpoint = strings.TrimSpace(provider.Endpoint)
	if providerEndpoint == "" {
		return "", "", "", gwerrors.NewRequestError(http.StatusNotFound,
			"SDS result for provider ODS code %s did not contain a current endpoint", providerODS)
	}

	consumer, err := c.sds.GetOrgDetails(ctx, consumerODS, correlationID)
	if err != nil {
		return "", "", "", upstreamError(ctx, err)
	}
	if consumer == nil {
		return "", "", "", gwerrors.NewRequestError(http.StatusNotFound,
			"No SDS org found for consumer ODS code %s", consumerODS)
	}

	consumerASID = strings.TrimSpace(consumer.ASID)
	if consumerASID == "" {
		return "", "", "", gwerrors.NewRequestError(http.StatusNotFound,
			"SDS result for consumer ODS code %s did not contain a current ASID", consumerODS)
	}
	return consumerASID, providerASID, providerEndpoint, nil
}

func upstreamError(ctx context.Context, err error) *gwerrors.RequestError {
	log.GetCtxLogger(ctx).WithError(err).Error("Upstream lookup failed")
	return gwerrors.NewRequestError(http.StatusBadGateway, "%s", err.Error())
}
