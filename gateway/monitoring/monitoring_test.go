package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type MonitoringTestSuite struct {
	suite.Suite
}

func TestMonitoringTestSuite(t *testing.T) {
	suite.Run(t, new(MonitoringTestSuite))
}

func (s *MonitoringTestSuite) serve(m *apm) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get(m.WrapHandler("/patient/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(chi.URLParam(r, "id")))
	}))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/patient/9000000009", nil))
	return rr
}

func (s *MonitoringTestSuite) TestGetMonitorIsSingleton() {
	assert.Same(s.T(), GetMonitor(), GetMonitor())
}

func (s *MonitoringTestSuite) TestDisabledWithoutLicense() {
	m := newMonitor("")
	assert.NotNil(s.T(), m.App)

	rr := s.serve(m)
	assert.Equal(s.T(), http.StatusAccepted, rr.Code)
	assert.Equal(s.T(), "9000000009", rr.Body.String())
	m.Shutdown(time.Second)
}

func (s *MonitoringTestSuite) TestNoApplication() {
	m := &apm{}

	pattern, _ := m.WrapHandler("/health", func(w http.ResponseWriter, r *http.Request) {})
	assert.Equal(s.T(), "/health", pattern)

	rr := s.serve(m)
	assert.Equal(s.T(), http.StatusAccepted, rr.Code)
	m.Shutdown(time.Second)
}
