package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/metrics"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SDS resolves organisations to their Spine ASID and GP Connect endpoint.
type SDS interface {
	// GetOrgDetails returns (nil, nil) when SDS has no device registered for
	// the organisation.
	GetOrgDetails(ctx context.Context, odsCode, correlationID string) (*models.SDSSearchResult, error)
}

type SDSClient struct {
	baseURL       string
	apiKey        string
	interactionID string
	client        fhir.Client
	logger        logrus.FieldLogger
}

var _ SDS = &SDSClient{}

// NewSDSClient falls back to the GP Connect metadata interaction when
// interactionID is empty.
func NewSDSClient(baseURL, apiKey, interactionID string, httpClient *http.Client) *SDSClient {
	if interactionID == "" {
		interactionID = constants.DefaultServiceInteractionID
	}
	return &SDSClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		interactionID: interactionID,
		client:        fhir.NewClient(httpClient),
		logger:        log.SDS,
	}
}

func (c *SDSClient) GetOrgDetails(ctx context.Context, odsCode, correlationID string) (*models.SDSSearchResult, error) {
	deviceBundle, err := c.search(ctx, models.DeviceResourceType, odsCode, "", correlationID)
	if err != nil {
		return nil, err
	}

	var device models.Device
	found, err := firstEntry(deviceBundle, &device)
	if err != nil {
		return nil, &gwerrors.MalformedResponseError{Err: err, Service: "SDS"}
	}
	if !found {
		return nil, nil
	}

	result := &models.SDSSearchResult{
		ASID: models.IdentifierValue(device.Identifier, constants.ASIDSystem),
	}

	partyKey := models.IdentifierValue(device.Identifier, constants.PartyKeySystem)
	if partyKey == "" {
		return result, nil
	}

	endpointBundle, err := c.search(ctx, models.EndpointResourceType, odsCode, partyKey, correlationID)
	if err != nil {
		return nil, err
	}

	var endpoint models.Endpoint
	found, err = firstEntry(endpointBundle, &endpoint)
	if err != nil {
		return nil, &gwerrors.MalformedResponseError{Err: err, Service: "SDS"}
	}
	if found {
		result.Endpoint = strings.TrimSpace(endpoint.Address)
	}
	return result, nil
}

func (c *SDSClient) search(ctx context.Context, resourceType, odsCode, partyKey, correlationID string) (*models.Bundle, error) {
	params := url.Values{}
	params.Set("organization", constants.ODSOrganisationSystem+"|"+odsCode)
	params.Add("identifier", constants.ServiceInteractionSystem+"|"+c.interactionID)
	if partyKey != "" {
		params.Add("identifier", constants.PartyKeySystem+"|"+partyKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+resourceType+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build SDS /%s request", resourceType)
	}
	req.Header.Set(constants.Accept, constants.FHIRJsonContentType)
	req.Header.Set(constants.APIKeyHeader, c.apiKey)
	if correlationID != "" {
		req.Header.Set(constants.SDSCorrelationIDHeader, correlationID)
	}

	logRequest(c.logger, req, logrus.Fields{
		"ods_code":           odsCode,
		"sds_correlation_id": correlationID,
	})

	start := time.Now()
	var bundle models.Bundle
	err = c.client.DoJSON(req, &bundle)
	status := responseStatus(err)
	logResponse(c.logger, req, status, time.Since(start), err)
	metrics.ObserveUpstream("sds", status, time.Since(start))

	if err != nil {
		return nil, errors.Wrapf(err, "SDS /%s request failed", resourceType)
	}
	return &bundle, nil
}

// firstEntry decodes the first entry of a searchset into v. It reports false
// for an empty bundle.
func firstEntry(bundle *models.Bundle, v interface{}) (bool, error) {
	if len(bundle.Entry) == 0 || len(bundle.Entry[0].Resource) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(bundle.Entry[0].Resource, v); err != nil {
		return false, err
	}
	return true, nil
}
