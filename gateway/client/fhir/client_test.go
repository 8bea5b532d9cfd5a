package fhir_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client/fhir"
	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type FHIRClientTestSuite struct {
	suite.Suite
	ts     *httptest.Server
	client fhir.Client
}

func (s *FHIRClientTestSuite) SetupTest() {
	mux := http.NewServeMux()
	mux.HandleFunc("/Patient/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		w.Header().Set("ETag", `W/"1"`)
		_, _ = w.Write([]byte(`{"resourceType":"Patient","id":"9000000009"}`))
	})
	mux.HandleFunc("/Patient/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"resourceType":"OperationOutcome"}`))
	})
	mux.HandleFunc("/Patient/garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	s.ts = httptest.NewServer(mux)
	s.client = fhir.NewClient(s.ts.Client())
}

func (s *FHIRClientTestSuite) TearDownTest() {
	s.ts.Close()
}

func TestFHIRClientTestSuite(t *testing.T) {
	suite.Run(t, new(FHIRClientTestSuite))
}

func (s *FHIRClientTestSuite) TestDoJSON() {
	req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/Patient/ok", nil)
	assert.NoError(s.T(), err)

	var body struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	assert.NoError(s.T(), s.client.DoJSON(req, &body))
	assert.Equal(s.T(), "Patient", body.ResourceType)
	assert.Equal(s.T(), "9000000009", body.ID)
}

func (s *FHIRClientTestSuite) TestDoJSONUnexpectedStatus() {
	req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/Patient/missing", nil)
	assert.NoError(s.T(), err)

	var body map[string]interface{}
	err = s.client.DoJSON(req, &body)

	var statusErr *gwerrors.UnexpectedStatusCodeError
	assert.ErrorAs(s.T(), err, &statusErr)
	assert.Equal(s.T(), http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(s.T(), statusErr.Body, "OperationOutcome")
}

func (s *FHIRClientTestSuite) TestDoJSONUndecodableBody() {
	req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/Patient/garbage", nil)
	assert.NoError(s.T(), err)

	var body map[string]interface{}
	err = s.client.DoJSON(req, &body)
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "failed to decode response from /Patient/garbage")
}

func (s *FHIRClientTestSuite) TestDoRawPassesStatusThrough() {
	req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/Patient/missing", nil)
	assert.NoError(s.T(), err)

	resp, err := s.client.DoRaw(req)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(s.T(), `{"resourceType":"OperationOutcome"}`, string(resp.Body))

	req, err = http.NewRequest(http.MethodGet, s.ts.URL+"/Patient/ok", nil)
	assert.NoError(s.T(), err)
	resp, err = s.client.DoRaw(req)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), `W/"1"`, resp.Header.Get("ETag"))
}

func (s *FHIRClientTestSuite) TestDoRawTransportError() {
	url := s.ts.URL
	s.ts.Close()

	req, err := http.NewRequest(http.MethodGet, url+"/Patient/ok", nil)
	assert.NoError(s.T(), err)

	resp, err := s.client.DoRaw(req)
	assert.Nil(s.T(), resp)
	assert.Error(s.T(), err)
}
