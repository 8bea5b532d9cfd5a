package responseutils

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/NHSDigital/clinical-data-gateway-api/log"

	"github.com/google/fhir/go/fhirversion"
	"github.com/google/fhir/go/jsonformat"
	fhircodes "github.com/google/fhir/go/proto/google/fhir/proto/stu3/codes_go_proto"
	fhirdatatypes "github.com/google/fhir/go/proto/google/fhir/proto/stu3/datatypes_go_proto"
	fhirmodels "github.com/google/fhir/go/proto/google/fhir/proto/stu3/resources_go_proto"
)

type ResponseWriter struct {
	marshaller *jsonformat.Marshaller
}

func NewResponseWriter() ResponseWriter {
	// Serialized resources are written as a single line.
	marshaller, err := jsonformat.NewMarshaller(false, "", "", fhirversion.STU3)
	if err != nil {
		log.API.Fatalf("Failed to create marshaller %s", err)
	}
	return ResponseWriter{marshaller: marshaller}
}

func (r ResponseWriter) Exception(ctx context.Context, w http.ResponseWriter, statusCode int, errType, errMsg string) {
	oo := r.CreateOpOutcome(fhircodes.IssueSeverityCode_ERROR, fhircodes.IssueTypeCode_EXCEPTION, errType, errMsg)
	r.WriteError(ctx, oo, w, statusCode)
}

func (r ResponseWriter) NotFound(ctx context.Context, w http.ResponseWriter, statusCode int, errType, errMsg string) {
	oo := r.CreateOpOutcome(fhircodes.IssueSeverityCode_ERROR, fhircodes.IssueTypeCode_NOT_FOUND, errType, errMsg)
	r.WriteError(ctx, oo, w, statusCode)
}

func (r ResponseWriter) Invalid(ctx context.Context, w http.ResponseWriter, statusCode int, errType, errMsg string) {
	oo := r.CreateOpOutcome(fhircodes.IssueSeverityCode_ERROR, fhircodes.IssueTypeCode_INVALID, errType, errMsg)
	r.WriteError(ctx, oo, w, statusCode)
}

func (r ResponseWriter) Transient(ctx context.Context, w http.ResponseWriter, statusCode int, errType, errMsg string) {
	oo := r.CreateOpOutcome(fhircodes.IssueSeverityCode_ERROR, fhircodes.IssueTypeCode_TRANSIENT, errType, errMsg)
	r.WriteError(ctx, oo, w, statusCode)
}

// ForStatus picks the issue type that matches the HTTP status the gateway
// answers with.
func (r ResponseWriter) ForStatus(ctx context.Context, w http.ResponseWriter, statusCode int, errType, errMsg string) {
	switch {
	case statusCode == http.StatusNotFound:
		r.NotFound(ctx, w, statusCode, errType, errMsg)
	case statusCode == http.StatusBadRequest:
		r.Invalid(ctx, w, statusCode, errType, errMsg)
	case statusCode == http.StatusBadGateway, statusCode == http.StatusServiceUnavailable,
		statusCode == http.StatusGatewayTimeout:
		r.Transient(ctx, w, statusCode, errType, errMsg)
	default:
		r.Exception(ctx, w, statusCode, errType, errMsg)
	}
}

func (r ResponseWriter) CreateOpOutcome(severity fhircodes.IssueSeverityCode_Value, code fhircodes.IssueTypeCode_Value,
	errType, diagnostics string) *fhirmodels.OperationOutcome {

	issue := &fhirmodels.OperationOutcome_Issue{
		Severity:    &fhircodes.IssueSeverityCode{Value: severity},
		Code:        &fhircodes.IssueTypeCode{Value: code},
		Diagnostics: &fhirdatatypes.String{Value: diagnostics},
	}
	if errType != "" {
		issue.Details = &fhirdatatypes.CodeableConcept{Text: &fhirdatatypes.String{Value: errType}}
	}

	return &fhirmodels.OperationOutcome{
		Issue: []*fhirmodels.OperationOutcome_Issue{issue},
	}
}

func (r ResponseWriter) WriteError(ctx context.Context, outcome *fhirmodels.OperationOutcome, w http.ResponseWriter, code int) {
	logger := log.GetCtxLogger(ctx)
	w.Header().Set(constants.ContentType, constants.FHIRJsonContentType)
	if code == http.StatusServiceUnavailable {
		includeRetryAfterHeader(w)
	}
	w.WriteHeader(code)
	_, err := r.WriteOperationOutcome(w, outcome)
	if err != nil {
		logger.Error(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func includeRetryAfterHeader(w http.ResponseWriter) {
	retrySeconds := strconv.FormatInt(int64(1), 10)
	w.Header().Set("Retry-After", retrySeconds)
}

func (r ResponseWriter) WriteOperationOutcome(w io.Writer, outcome *fhirmodels.OperationOutcome) (int, error) {
	resource := &fhirmodels.ContainedResource{
		OneofResource: &fhirmodels.ContainedResource_OperationOutcome{OperationOutcome: outcome},
	}
	outcomeJSON, err := r.marshaller.Marshal(resource)
	if err != nil {
		return -1, err
	}

	return w.Write(outcomeJSON)
}

func (r ResponseWriter) WriteBundleResponse(ctx context.Context, bundle *fhirmodels.Bundle, w http.ResponseWriter) {
	logger := log.GetCtxLogger(ctx)
	resource := &fhirmodels.ContainedResource{
		OneofResource: &fhirmodels.ContainedResource_Bundle{Bundle: bundle},
	}
	resourceJSON, err := r.marshaller.Marshal(resource)
	if err != nil {
		logger.Error(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(constants.ContentType, constants.FHIRJsonContentType)
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(resourceJSON); err != nil {
		logger.Error(err)
	}
}

// WriteJSON writes an already shaped FHIR JSON document, such as the resources
// served by the upstream stubs.
func WriteJSON(ctx context.Context, w http.ResponseWriter, statusCode int, body interface{}) {
	logger := log.GetCtxLogger(ctx)
	data, err := json.Marshal(body)
	if err != nil {
		logger.Error(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(constants.ContentType, constants.FHIRJsonContentType)
	w.WriteHeader(statusCode)
	if _, err = w.Write(data); err != nil {
		logger.Error(err)
	}
}
