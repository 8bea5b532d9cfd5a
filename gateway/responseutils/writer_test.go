package responseutils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/google/fhir/go/fhirversion"
	"github.com/google/fhir/go/jsonformat"
	fhircodes "github.com/google/fhir/go/proto/google/fhir/proto/stu3/codes_go_proto"
	fhirdatatypes "github.com/google/fhir/go/proto/google/fhir/proto/stu3/datatypes_go_proto"
	fhirmodels "github.com/google/fhir/go/proto/google/fhir/proto/stu3/resources_go_proto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ResponseUtilsWriterTestSuite struct {
	suite.Suite
	rr           *httptest.ResponseRecorder
	unmarshaller *jsonformat.Unmarshaller
	ctx          context.Context
}

func (s *ResponseUtilsWriterTestSuite) SetupTest() {
	var err error
	s.rr = httptest.NewRecorder()
	s.unmarshaller, err = jsonformat.NewUnmarshaller("UTC", fhirversion.STU3)
	assert.NoError(s.T(), err)

	entry := &log.StructuredLoggerEntry{Logger: logrus.New().WithField("foo", "bar")}
	s.ctx = context.WithValue(context.Background(), log.CtxLoggerKey, entry)
}

func TestResponseUtilsWriterTestSuite(t *testing.T) {
	suite.Run(t, new(ResponseUtilsWriterTestSuite))
}

func (s *ResponseUtilsWriterTestSuite) operationOutcome() *fhirmodels.OperationOutcome {
	res, err := s.unmarshaller.Unmarshal(s.rr.Body.Bytes())
	assert.NoError(s.T(), err)
	cr := res.(*fhirmodels.ContainedResource)
	return cr.GetOperationOutcome()
}

func (s *ResponseUtilsWriterTestSuite) TestResponseWriterException() {
	rw := NewResponseWriter()
	rw.Exception(s.ctx, s.rr, http.StatusInternalServerError, constants.InternalErr, "TestResponseWriterException")

	respOO := s.operationOutcome()
	assert.Equal(s.T(), http.StatusInternalServerError, s.rr.Code)
	assert.Equal(s.T(), fhircodes.IssueSeverityCode_ERROR, respOO.Issue[0].Severity.Value)
	assert.Equal(s.T(), fhircodes.IssueTypeCode_EXCEPTION, respOO.Issue[0].Code.Value)
	assert.Equal(s.T(), "TestResponseWriterException", respOO.Issue[0].Diagnostics.Value)
	assert.Equal(s.T(), constants.InternalErr, respOO.Issue[0].Details.Text.Value)
	assert.Equal(s.T(), constants.FHIRJsonContentType, s.rr.Header().Get("Content-Type"))
}

func (s *ResponseUtilsWriterTestSuite) TestResponseWriterNotFound() {
	rw := NewResponseWriter()
	rw.NotFound(s.ctx, s.rr, http.StatusNotFound, constants.NotFoundErr, "TestResponseWriterNotFound")

	respOO := s.operationOutcome()
	assert.Equal(s.T(), http.StatusNotFound, s.rr.Code)
	assert.Equal(s.T(), fhircodes.IssueTypeCode_NOT_FOUND, respOO.Issue[0].Code.Value)
	assert.Equal(s.T(), "TestResponseWriterNotFound", respOO.Issue[0].Diagnostics.Value)
	assert.Equal(s.T(), constants.FHIRJsonContentType, s.rr.Header().Get("Content-Type"))
}

func (s *ResponseUtilsWriterTestSuite) TestForStatus() {
	tests := []struct {
		status int
		code   fhircodes.IssueTypeCode_Value
	}{
		{http.StatusBadRequest, fhircodes.IssueTypeCode_INVALID},
		{http.StatusNotFound, fhircodes.IssueTypeCode_NOT_FOUND},
		{http.StatusBadGateway, fhircodes.IssueTypeCode_TRANSIENT},
		{http.StatusServiceUnavailable, fhircodes.IssueTypeCode_TRANSIENT},
		{http.StatusInternalServerError, fhircodes.IssueTypeCode_EXCEPTION},
	}
	rw := NewResponseWriter()
	for _, tt := range tests {
		s.rr = httptest.NewRecorder()
		rw.ForStatus(s.ctx, s.rr, tt.status, constants.RequestErr, "diagnostics")

		respOO := s.operationOutcome()
		assert.Equal(s.T(), tt.status, s.rr.Code)
		assert.Equal(s.T(), tt.code, respOO.Issue[0].Code.Value, "status %d", tt.status)
	}
}

func (s *ResponseUtilsWriterTestSuite) TestWriteErrorServiceUnavailableSetsRetryAfter() {
	rw := NewResponseWriter()
	rw.Transient(s.ctx, s.rr, http.StatusServiceUnavailable, constants.UpstreamErr, "busy")

	assert.Equal(s.T(), http.StatusServiceUnavailable, s.rr.Code)
	assert.Equal(s.T(), "1", s.rr.Header().Get("Retry-After"))
}

func (s *ResponseUtilsWriterTestSuite) TestCreateOpOutcome() {
	rw := NewResponseWriter()
	oo := rw.CreateOpOutcome(fhircodes.IssueSeverityCode_ERROR, fhircodes.IssueTypeCode_EXCEPTION, "", "TestCreateOpOutcome")
	assert.Equal(s.T(), fhircodes.IssueSeverityCode_ERROR, oo.Issue[0].Severity.Value)
	assert.Equal(s.T(), fhircodes.IssueTypeCode_EXCEPTION, oo.Issue[0].Code.Value)
	assert.Equal(s.T(), "TestCreateOpOutcome", oo.Issue[0].Diagnostics.Value)
	assert.Nil(s.T(), oo.Issue[0].Details)
}

func (s *ResponseUtilsWriterTestSuite) TestWriteOperationOutcomeIsPlainFHIRJSON() {
	rw := NewResponseWriter()
	rw.Invalid(s.ctx, s.rr, http.StatusBadRequest, constants.RequestErr, `Missing or empty required header "ODS-from"`)

	var body map[string]interface{}
	assert.NoError(s.T(), json.Unmarshal(s.rr.Body.Bytes(), &body))
	assert.Equal(s.T(), "OperationOutcome", body["resourceType"])
	issue := body["issue"].([]interface{})[0].(map[string]interface{})
	assert.Equal(s.T(), Error, issue["severity"])
	assert.Equal(s.T(), Invalid, issue["code"])
}

func (s *ResponseUtilsWriterTestSuite) TestWriteBundleResponse() {
	rw := NewResponseWriter()
	bundle := &fhirmodels.Bundle{
		Type: &fhircodes.BundleTypeCode{Value: fhircodes.BundleTypeCode_COLLECTION},
		Entry: []*fhirmodels.Bundle_Entry{
			{
				Resource: &fhirmodels.ContainedResource{
					OneofResource: &fhirmodels.ContainedResource_Patient{Patient: &fhirmodels.Patient{
						Identifier: []*fhirdatatypes.Identifier{{
							System: &fhirdatatypes.Uri{Value: constants.NHSNumberSystem},
							Value:  &fhirdatatypes.String{Value: "9690938118"},
						}},
					}},
				},
			},
		},
	}
	rw.WriteBundleResponse(s.ctx, bundle, s.rr)

	res, err := s.unmarshaller.Unmarshal(s.rr.Body.Bytes())
	assert.NoError(s.T(), err)
	respBundle := res.(*fhirmodels.ContainedResource).GetBundle()

	assert.Equal(s.T(), http.StatusOK, s.rr.Code)
	assert.Equal(s.T(), fhircodes.BundleTypeCode_COLLECTION, respBundle.Type.Value)
	assert.Equal(s.T(), "9690938118", respBundle.Entry[0].Resource.GetPatient().Identifier[0].Value.Value)
}

func (s *ResponseUtilsWriterTestSuite) TestWriteJSON() {
	WriteJSON(s.ctx, s.rr, http.StatusCreated, map[string]string{"resourceType": "Patient"})

	assert.Equal(s.T(), http.StatusCreated, s.rr.Code)
	assert.Equal(s.T(), constants.FHIRJsonContentType, s.rr.Header().Get("Content-Type"))
	assert.JSONEq(s.T(), `{"resourceType":"Patient"}`, s.rr.Body.String())
}
