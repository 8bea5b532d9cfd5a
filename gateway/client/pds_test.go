package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const currentPatient = `{
  "resourceType": "Patient",
  "id": "9999999999",
  "name": [
    {"use": "old", "family": "Smith", "given": ["Alice"], "period": {"start": "1900-01-01", "end": "1999-12-31"}},
    {"use": "official", "family": "Jones", "given": ["Alice", "Mary"], "period": {"start": "2000-01-01", "end": "9999-12-31"}}
  ],
  "generalPractitioner": [
    {"identifier": {"system": "https://fhir.nhs.uk/Id/ods-organization-code", "value": "OLDGP", "period": {"start": "1900-01-01", "end": "2019-12-31"}}},
    {"identifier": {"system": "https://fhir.nhs.uk/Id/ods-organization-code", "value": " PROVIDER ", "period": {"start": "2020-01-01", "end": "2020-06-01"}}}
  ]
}`

type PDSClientTestSuite struct {
	suite.Suite
	handler http.HandlerFunc
	ts      *httptest.Server
	client  *PDSClient
	req     *http.Request
}

func (s *PDSClientTestSuite) SetupTest() {
	s.req = nil
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(currentPatient))
	}
	s.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.req = r
		s.handler(w, r)
	}))
	s.client = NewPDSClient(s.ts.URL+"/", "session-urid", s.ts.Client())
	s.client.now = func() time.Time { return time.Date(2020, 6, 1, 23, 0, 0, 0, time.UTC) }
}

func (s *PDSClientTestSuite) TearDownTest() {
	s.ts.Close()
}

func TestPDSClientTestSuite(t *testing.T) {
	suite.Run(t, new(PDSClientTestSuite))
}

func (s *PDSClientTestSuite) TestSearchPatientByNHSNumber() {
	result, err := s.client.SearchPatientByNHSNumber(context.Background(), "9999999999", PDSRequestOptions{
		AuthToken:     "Bearer abc123",
		EndUserODS:    "CONSUMER",
		CorrelationID: "corr-1",
	})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "9999999999", result.NHSNumber)
	assert.Equal(s.T(), "Alice Mary", result.GivenNames)
	assert.Equal(s.T(), "Jones", result.FamilyName)
	assert.Equal(s.T(), "PROVIDER", result.GPODSCode)

	assert.Equal(s.T(), "/Patient/9999999999", s.req.URL.Path)
	assert.Equal(s.T(), "Bearer abc123", s.req.Header.Get("Authorization"))
	assert.Equal(s.T(), "CONSUMER", s.req.Header.Get("NHSD-End-User-Organisation-ODS"))
	assert.Equal(s.T(), "session-urid", s.req.Header.Get("NHSD-Session-URID"))
	assert.Equal(s.T(), "corr-1", s.req.Header.Get("X-Correlation-ID"))
	assert.Equal(s.T(), "application/fhir+json", s.req.Header.Get("Accept"))
	assert.NotNil(s.T(), uuid.Parse(s.req.Header.Get("X-Request-ID")))
}

func (s *PDSClientTestSuite) TestOptionalHeadersOmitted() {
	_, err := s.client.SearchPatientByNHSNumber(context.Background(), "9999999999", PDSRequestOptions{RequestID: "fixed-id"})
	assert.NoError(s.T(), err)

	assert.Equal(s.T(), "fixed-id", s.req.Header.Get("X-Request-ID"))
	assert.Empty(s.T(), s.req.Header.Get("Authorization"))
	_, ok := s.req.Header["X-Correlation-Id"]
	assert.False(s.T(), ok)
}

func (s *PDSClientTestSuite) TestNotFound() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"resourceType":"OperationOutcome","issue":[]}`))
	}

	result, err := s.client.SearchPatientByNHSNumber(context.Background(), "9000000009", PDSRequestOptions{})
	assert.NoError(s.T(), err)
	assert.Nil(s.T(), result)
}

func (s *PDSClientTestSuite) TestUpstreamError() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"resourceType":"OperationOutcome","issue":[]}`))
	}

	result, err := s.client.SearchPatientByNHSNumber(context.Background(), "9000000009", PDSRequestOptions{})
	assert.Nil(s.T(), result)
	var statusErr *gwerrors.UnexpectedStatusCodeError
	assert.ErrorAs(s.T(), err, &statusErr)
	assert.Equal(s.T(), http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(s.T(), err.Error(), "PDS request failed")
}

func (s *PDSClientTestSuite) TestBundleResponse() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","entry":[{"resource":` + currentPatient + `}]}`))
	}

	result, err := s.client.SearchPatientByNHSNumber(context.Background(), "9999999999", PDSRequestOptions{})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "PROVIDER", result.GPODSCode)
}

func (s *PDSClientTestSuite) TestNoCurrentGP() {
	s.client.now = func() time.Time { return time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC) }

	result, err := s.client.SearchPatientByNHSNumber(context.Background(), "9999999999", PDSRequestOptions{})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "Jones", result.FamilyName)
	assert.Empty(s.T(), result.GPODSCode)
}

func (s *PDSClientTestSuite) TestMalformedResponses() {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing id", `{"resourceType":"Patient","name":[]}`, "missing NHS number"},
		{"no current name", `{"resourceType":"Patient","id":"9999999999","name":[{"family":"Old","period":{"start":"1900-01-01","end":"1901-01-01"}}]}`, "no current name"},
		{"name without period", `{"resourceType":"Patient","id":"9999999999","name":[{"family":"Jones"}]}`, "missing period start or end"},
		{"bad gp period", `{"resourceType":"Patient","id":"9999999999","name":[{"family":"Jones","period":{"start":"1900-01-01","end":"9999-12-31"}}],"generalPractitioner":[{"identifier":{"value":"X","period":{"start":"yesterday","end":"9999-12-31"}}}]}`, "invalid period start"},
		{"empty bundle", `{"resourceType":"Bundle","type":"searchset","entry":[]}`, "no patient entries"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			body := tt.body
			s.handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}

			result, err := s.client.SearchPatientByNHSNumber(context.Background(), "9999999999", PDSRequestOptions{})
			assert.Nil(s.T(), result)
			var malformed *gwerrors.MalformedResponseError
			assert.ErrorAs(s.T(), err, &malformed)
			assert.Contains(s.T(), err.Error(), tt.msg)
		})
	}
}

func TestIsCurrentBoundaries(t *testing.T) {
	today := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		start, end string
		expected   bool
	}{
		{"2024-03-01", "2024-03-01", true},
		{"2024-02-01", "2024-02-29", false},
		{"2024-03-02", "2025-01-01", false},
		{"1900-01-01", "9999-12-31", true},
	}
	for _, tt := range tests {
		current, err := isCurrent(&models.Period{Start: tt.start, End: tt.end}, today)
		assert.NoError(t, err)
		assert.Equal(t, tt.expected, current, "%s..%s", tt.start, tt.end)
	}
}
