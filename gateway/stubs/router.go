// Package stubs holds in-memory stand-ins for PDS, SDS and a GP Connect
// provider, served over HTTP for local runs and integration tests.
package stubs

import (
	"net/http"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Mount points of each stub on the router built by NewRouter.
const (
	PDSPrefix      = "/pds"
	SDSPrefix      = "/sds"
	ProviderPrefix = "/provider"
)

type Stubs struct {
	PDS      *PDSStub
	SDS      *SDSStub
	Provider *ProviderStub
}

// New seeds all three stubs. baseURL is where the router will be served, so
// the PROVIDER endpoint registered in SDS points back at the provider stub.
func New(baseURL string) *Stubs {
	return &Stubs{
		PDS:      NewPDSStub(true),
		SDS:      NewSDSStub(baseURL + ProviderPrefix),
		Provider: NewProviderStub(),
	}
}

func NewRouter(s *Stubs) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Route(PDSPrefix, func(r chi.Router) {
		r.Get("/Patient/{id}", s.PDS.GetPatient)
	})
	r.Route(SDSPrefix, func(r chi.Router) {
		r.Get("/Device", s.SDS.GetDevices)
		r.Get("/Endpoint", s.SDS.GetEndpoints)
	})
	r.Post(ProviderPrefix+constants.StructuredRecordPath, s.Provider.AccessStructuredRecord)

	return r
}
