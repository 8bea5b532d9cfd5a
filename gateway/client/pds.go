package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/metrics"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const isoDate = "2006-01-02"

// PDS looks up patients in the Personal Demographics Service.
type PDS interface {
	// SearchPatientByNHSNumber returns (nil, nil) when PDS has no such patient.
	SearchPatientByNHSNumber(ctx context.Context, nhsNumber string, opts PDSRequestOptions) (*models.PDSSearchResult, error)
}

// PDSRequestOptions carries the per request values PDS needs.
type PDSRequestOptions struct {
	// AuthToken is sent as "Bearer <token>". A leading "Bearer " is tolerated.
	AuthToken  string
	EndUserODS string
	// RequestID is generated when empty. Reuse it when retrying a call.
	RequestID     string
	CorrelationID string
}

type PDSClient struct {
	baseURL     string
	sessionURID string
	client      fhir.Client
	logger      logrus.FieldLogger
	now         func() time.Time
}

var _ PDS = &PDSClient{}

func NewPDSClient(baseURL, sessionURID string, httpClient *http.Client) *PDSClient {
	return &PDSClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		sessionURID: sessionURID,
		client:      fhir.NewClient(httpClient),
		logger:      log.PDS,
		now:         time.Now,
	}
}

func (c *PDSClient) SearchPatientByNHSNumber(ctx context.Context, nhsNumber string, opts PDSRequestOptions) (*models.PDSSearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/Patient/"+nhsNumber, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build PDS request")
	}
	c.addRequestHeaders(req, opts)

	logRequest(c.logger, req, logrus.Fields{
		"pds_request_id":     req.Header.Get(constants.RequestIDHeader),
		"pds_correlation_id": opts.CorrelationID,
	})

	start := time.Now()
	var body json.RawMessage
	err = c.client.DoJSON(req, &body)
	status := responseStatus(err)
	logResponse(c.logger, req, status, time.Since(start), err)
	metrics.ObserveUpstream("pds", status, time.Since(start))

	if err != nil {
		var statusErr *gwerrors.UnexpectedStatusCodeError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "PDS request failed")
	}

	result, err := extractSearchResult(body, c.now())
	if err != nil {
		return nil, &gwerrors.MalformedResponseError{Err: err, Service: "PDS"}
	}
	return result, nil
}

func (c *PDSClient) addRequestHeaders(req *http.Request, opts PDSRequestOptions) {
	requestID := opts.RequestID
	if requestID == "" {
		requestID = uuid.New()
	}

	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(opts.AuthToken), "Bearer "))
	if token != "" {
		req.Header.Set(constants.AuthorizationHeader, "Bearer "+token)
	}
	req.Header.Set(constants.RequestIDHeader, requestID)
	req.Header.Set(constants.EndUserODSHeader, opts.EndUserODS)
	req.Header.Set(constants.Accept, constants.FHIRJsonContentType)

	if c.sessionURID != "" {
		req.Header.Set(constants.SessionURIDHeader, c.sessionURID)
	}
	if opts.CorrelationID != "" {
		req.Header.Set(constants.CorrelationIDHeader, opts.CorrelationID)
	}
}

// extractSearchResult accepts either a Patient (GET /Patient/{id}) or a Bundle
// of Patients (search endpoints), in which case the first entry is used.
func extractSearchResult(body json.RawMessage, now time.Time) (*models.PDSSearchResult, error) {
	var header models.ResourceHeader
	if err := json.Unmarshal(body, &header); err != nil {
		return nil, err
	}

	patientJSON := body
	if header.ResourceType != models.PatientResourceType {
		var bundle models.Bundle
		if err := json.Unmarshal(body, &bundle); err != nil {
			return nil, err
		}
		if len(bundle.Entry) == 0 {
			return nil, errors.New("PDS response contains no patient entries")
		}
		patientJSON = bundle.Entry[0].Resource
	}

	var patient models.Patient
	if err := json.Unmarshal(patientJSON, &patient); err != nil {
		return nil, err
	}

	nhsNumber := strings.TrimSpace(patient.ID)
	if nhsNumber == "" {
		return nil, errors.New("PDS patient resource missing NHS number")
	}

	today := utcDate(now)

	name, err := findCurrentName(patient.Name, today)
	if err != nil {
		return nil, err
	}
	if name == nil {
		return nil, errors.New("PDS patient has no current name record")
	}

	gp, err := findCurrentGP(patient.GeneralPractitioner, today)
	if err != nil {
		return nil, err
	}

	result := &models.PDSSearchResult{
		GivenNames: strings.TrimSpace(strings.Join(name.Given, " ")),
		FamilyName: name.Family,
		NHSNumber:  nhsNumber,
	}
	if gp != nil {
		result.GPODSCode = strings.TrimSpace(gp.Identifier.Value)
	}
	return result, nil
}

// findCurrentName returns the first name whose period covers today. Names
// without a complete period are malformed upstream data.
func findCurrentName(names []models.HumanName, today time.Time) (*models.HumanName, error) {
	for i := range names {
		current, err := isCurrent(names[i].Period, today)
		if err != nil {
			return nil, errors.Wrap(err, "PDS name record")
		}
		if current {
			return &names[i], nil
		}
	}
	return nil, nil
}

// findCurrentGP returns the first generalPractitioner whose identifier period
// covers today.
func findCurrentGP(gps []models.Reference, today time.Time) (*models.Reference, error) {
	for i := range gps {
		if gps[i].Identifier == nil {
			return nil, errors.New("PDS generalPractitioner record missing identifier")
		}
		current, err := isCurrent(gps[i].Identifier.Period, today)
		if err != nil {
			return nil, errors.Wrap(err, "PDS generalPractitioner record")
		}
		if current {
			return &gps[i], nil
		}
	}
	return nil, nil
}

// isCurrent reports whether start <= today <= end, inclusive on both ends.
func isCurrent(period *models.Period, today time.Time) (bool, error) {
	if period == nil || period.Start == "" || period.End == "" {
		return false, errors.New("missing period start or end")
	}

	start, err := time.Parse(isoDate, period.Start)
	if err != nil {
		return false, errors.Wrapf(err, "invalid period start %q", period.Start)
	}
	end, err := time.Parse(isoDate, period.End)
	if err != nil {
		return false, errors.Wrapf(err, "invalid period end %q", period.End)
	}

	return !today.Before(start) && !today.After(end), nil
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// responseStatus recovers the upstream status for logging and metrics. Zero
// means no response was received.
func responseStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var statusErr *gwerrors.UnexpectedStatusCodeError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
