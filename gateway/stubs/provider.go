package stubs

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/responseutils"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/pkg/errors"
)

const (
	structuredRecordBundleProfile = "https://fhir.nhs.uk/STU3/StructureDefinition/GPConnect-StructuredRecord-Bundle-1"
	gpcPatientProfile             = "https://fhir.nhs.uk/STU3/StructureDefinition/CareConnect-GPC-Patient-1"
)

// ProviderStub answers the GP Connect structured record operation for the
// records it holds, keyed by NHS number.
type ProviderStub struct {
	mu      sync.RWMutex
	records map[string]models.Bundle
}

func NewProviderStub() *ProviderStub {
	s := &ProviderStub{records: make(map[string]models.Bundle)}
	active := true
	err := s.SetRecord("9999999999", models.Patient{
		ID: "04603d77-1a4e-4d63-b246-d7504f8bd833",
		Meta: &models.Meta{
			VersionID: "1469448000000",
			Profile:   []string{gpcPatientProfile},
		},
		Identifier: []models.Identifier{{System: constants.NHSNumberSystem, Value: "9999999999"}},
		Active:     &active,
		Name: []models.HumanName{{
			Use:    "official",
			Text:   "JACKSON Jane (Miss)",
			Family: "Jackson",
			Given:  []string{"Jane"},
			Prefix: []string{"Miss"},
		}},
		Gender:    "female",
		BirthDate: "1952-05-31",
	})
	if err != nil {
		log.Mock.WithError(err).Error("Could not seed provider stub")
	}
	return s
}

// SetRecord stores a structured record bundle containing patient.
func (s *ProviderStub) SetRecord(nhsNumber string, patient models.Patient) error {
	patient.ResourceType = models.PatientResourceType
	raw, err := json.Marshal(patient)
	if err != nil {
		return errors.Wrapf(err, "could not marshal structured record for %s", nhsNumber)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[nhsNumber] = models.Bundle{
		ResourceType: models.BundleResourceType,
		Type:         models.BundleTypeCollection,
		Meta:         &models.Meta{Profile: []string{structuredRecordBundleProfile}},
		Entry:        []models.BundleEntry{{Resource: raw}},
	}
	return nil
}

// Record returns the structured record held for nhsNumber, or an
// *errors.EntityNotFoundError.
func (s *ProviderStub) Record(nhsNumber string) (models.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[nhsNumber]
	if !ok {
		return models.Bundle{}, &gwerrors.EntityNotFoundError{Err: errors.New("no structured record held"), Kind: models.BundleResourceType, Key: nhsNumber}
	}
	return record, nil
}

func (s *ProviderStub) AccessStructuredRecord(w http.ResponseWriter, r *http.Request) {
	for _, header := range []string{constants.SspTraceIDHeader, constants.SspFromHeader, constants.SspToHeader} {
		if strings.TrimSpace(r.Header.Get(header)) == "" {
			writeOutcome(w, r, http.StatusBadRequest, responseutils.Invalid, "Missing required header "+header)
			return
		}
	}
	if r.Header.Get(constants.SspInteractionIDHeader) != constants.StructuredRecordInteractionID {
		writeOutcome(w, r, http.StatusBadRequest, responseutils.Invalid, "Unsupported Ssp-InteractionID")
		return
	}

	var params models.Parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil || params.ResourceType != models.ParametersResourceType {
		writeOutcome(w, r, http.StatusBadRequest, responseutils.Invalid, "Request body must be a Parameters resource")
		return
	}

	param, ok := params.FindParameter(constants.PatientNHSNumberParam)
	if !ok || param.ValueIdentifier == nil {
		writeOutcome(w, r, http.StatusBadRequest, responseutils.Invalid, "Missing patientNHSNumber parameter")
		return
	}

	record, err := s.Record(strings.TrimSpace(param.ValueIdentifier.Value))
	if err != nil {
		var notFound *gwerrors.EntityNotFoundError
		if errors.As(err, &notFound) {
			writeOutcome(w, r, http.StatusNotFound, responseutils.NotFound, "Patient record not found")
			return
		}
		writeOutcome(w, r, http.StatusInternalServerError, responseutils.Exception, err.Error())
		return
	}

	responseutils.WriteJSON(r.Context(), w, http.StatusOK, record)
}

func writeOutcome(w http.ResponseWriter, r *http.Request, status int, code, diagnostics string) {
	responseutils.WriteJSON(r.Context(), w, status, models.OperationOutcome{
		ResourceType: models.OperationOutcomeResourceType,
		Issue: []models.Issue{{
			Severity:    responseutils.Error,
			Code:        code,
			Diagnostics: diagnostics,
		}},
	})
}
