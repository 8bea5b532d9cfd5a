// Package mockserver serves a fixed structured record for manual testing of
// API consumers. It does not look at PDS, SDS or any provider.
package mockserver

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/responseutils"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	gwmiddleware "github.com/NHSDigital/clinical-data-gateway-api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	fhircodes "github.com/google/fhir/go/proto/google/fhir/proto/stu3/codes_go_proto"
	fhirdatatypes "github.com/google/fhir/go/proto/google/fhir/proto/stu3/datatypes_go_proto"
	fhirmodels "github.com/google/fhir/go/proto/google/fhir/proto/stu3/resources_go_proto"
)

// FixtureNHSNumber is returned whatever patient the caller asked for.
const FixtureNHSNumber = "9690938118"

type server struct {
	rw responseutils.ResponseWriter
}

func NewRouter() http.Handler {
	s := &server{rw: responseutils.NewResponseWriter()}

	r := chi.NewRouter()
	r.Use(gwmiddleware.UnescapePath, middleware.RequestID, middleware.Recoverer)
	r.Post(constants.StructuredRecordPath, s.structuredRecord)
	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)
	return r
}

func (s *server) structuredRecord(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.rw.Invalid(r.Context(), w, http.StatusBadRequest, constants.RequestErr, "Could not read request body")
		return
	}

	var header models.ResourceHeader
	if err := json.Unmarshal(body, &header); err != nil || header.ResourceType != models.ParametersResourceType {
		log.Mock.WithField("resource_type", header.ResourceType).Warn("Rejected non Parameters body")
		s.rw.Invalid(r.Context(), w, http.StatusBadRequest, constants.RequestErr,
			"Request body must be a FHIR Parameters resource")
		return
	}

	log.Mock.Info("Serving fixture structured record")
	s.rw.WriteBundleResponse(r.Context(), FixtureBundle(), w)
}

func (s *server) notFound(w http.ResponseWriter, r *http.Request) {
	s.rw.NotFound(r.Context(), w, http.StatusNotFound, constants.NotFoundErr,
		"No mock registered for "+r.Method+" "+r.URL.Path)
}

// FixtureBundle is a collection Bundle holding a single Patient.
func FixtureBundle() *fhirmodels.Bundle {
	birthDate := time.Date(1941, time.December, 10, 0, 0, 0, 0, time.UTC)

	patient := &fhirmodels.Patient{
		Id: &fhirdatatypes.Id{Value: "2"},
		Identifier: []*fhirdatatypes.Identifier{{
			System: &fhirdatatypes.Uri{Value: constants.NHSNumberSystem},
			Value:  &fhirdatatypes.String{Value: FixtureNHSNumber},
		}},
		Name: []*fhirdatatypes.HumanName{{
			Family: &fhirdatatypes.String{Value: "Hurst"},
			Given:  []*fhirdatatypes.String{{Value: "Sarah"}},
			Prefix: []*fhirdatatypes.String{{Value: "Mrs"}},
		}},
		Gender: &fhircodes.AdministrativeGenderCode{Value: fhircodes.AdministrativeGenderCode_FEMALE},
		BirthDate: &fhirdatatypes.Date{
			ValueUs:   birthDate.UnixNano() / int64(time.Microsecond),
			Precision: fhirdatatypes.Date_DAY,
		},
	}

	return &fhirmodels.Bundle{
		Type: &fhircodes.BundleTypeCode{Value: fhircodes.BundleTypeCode_COLLECTION},
		Entry: []*fhirmodels.Bundle_Entry{{
			Resource: &fhirmodels.ContainedResource{
				OneofResource: &fhirmodels.ContainedResource_Patient{Patient: patient},
			},
		}},
	}
}
