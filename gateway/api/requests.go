package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/service"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/utils"
	"github.com/dimchansky/utfbom"
	"github.com/pkg/errors"
)

// Larger bodies are rejected before decoding.
const maxRequestBodyBytes = 1 << 20

// GetStructuredRecordRequest is an inbound $gpc.getstructuredrecord call.
type GetStructuredRecordRequest struct {
	TraceID   string
	ODSFrom   string
	NHSNumber string
	AuthToken string
	Body      []byte
}

// ParseGetStructuredRecordRequest validates headers and body. Every failure is
// a *errors.RequestError with status 400.
func ParseGetStructuredRecordRequest(r *http.Request) (*GetStructuredRecordRequest, error) {
	traceID, err := requiredHeader(r, constants.TraceIDHeader)
	if err != nil {
		return nil, err
	}
	odsFrom, err := requiredHeader(r, constants.ODSFromHeader)
	if err != nil {
		return nil, err
	}

	// Some clients prefix the JSON with a UTF-8 byte order mark
	body, err := io.ReadAll(utfbom.SkipOnly(io.LimitReader(r.Body, maxRequestBodyBytes+1)))
	if err != nil {
		return nil, gwerrors.NewRequestError(http.StatusBadRequest, "Could not read request body")
	}
	if len(body) > maxRequestBodyBytes {
		return nil, gwerrors.NewRequestError(http.StatusBadRequest, "Request body is too large")
	}

	var params models.Parameters
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, gwerrors.NewRequestError(http.StatusBadRequest,
			"Request body must be a FHIR Parameters resource")
	}
	if params.ResourceType != models.ParametersResourceType {
		return nil, gwerrors.NewRequestError(http.StatusBadRequest,
			"Request body must be a FHIR Parameters resource, got resourceType %q", params.ResourceType)
	}

	param, ok := params.FindParameter(constants.PatientNHSNumberParam)
	if !ok || param.ValueIdentifier == nil || strings.TrimSpace(param.ValueIdentifier.Value) == "" {
		return nil, gwerrors.NewRequestError(http.StatusBadRequest,
			"Missing required parameter %q with a valueIdentifier", constants.PatientNHSNumberParam)
	}

	nhsNumber, err := utils.CoerceNHSNumber(param.ValueIdentifier.Value)
	if err != nil {
		var validationErr *gwerrors.ValidationError
		if errors.As(err, &validationErr) {
			return nil, gwerrors.NewRequestError(http.StatusBadRequest,
				"Invalid NHS number %q: %s", validationErr.Msg, validationErr.Err)
		}
		return nil, gwerrors.NewRequestError(http.StatusBadRequest, "%s", err)
	}

	return &GetStructuredRecordRequest{
		TraceID:   traceID,
		ODSFrom:   odsFrom,
		NHSNumber: nhsNumber,
		AuthToken: r.Header.Get(constants.AuthorizationHeader),
		Body:      body,
	}, nil
}

func (req *GetStructuredRecordRequest) ServiceRequest() service.StructuredRecordRequest {
	return service.StructuredRecordRequest{
		NHSNumber:   req.NHSNumber,
		TraceID:     req.TraceID,
		ConsumerODS: req.ODSFrom,
		AuthToken:   req.AuthToken,
		Body:        req.Body,
	}
}

func requiredHeader(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.Header.Get(name))
	if value == "" {
		return "", gwerrors.NewRequestError(http.StatusBadRequest, "Missing or empty required header %q", name)
	}
	return value, nil
}
