package stubs

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/responseutils"
	"github.com/go-chi/chi/v5"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
)

var tenDigits = regexp.MustCompile(`^\d{10}$`)

type storedPatient struct {
	patient models.Patient
	version int
}

// PDSStub serves GET /Patient/{id} from an in-memory store.
type PDSStub struct {
	// StrictHeaders requires a UUID X-Request-ID on every call.
	StrictHeaders bool

	mu       sync.RWMutex
	patients map[string]storedPatient
}

func NewPDSStub(strictHeaders bool) *PDSStub {
	s := &PDSStub{StrictHeaders: strictHeaders, patients: make(map[string]storedPatient)}
	s.seed()
	return s
}

func (s *PDSStub) seed() {

	_ = s.UpsertPatient("9000000009", models.Patient{
		Meta:       &models.Meta{LastUpdated: "2020-01-01T00:00:00Z"},
		Identifier: []models.Identifier{{System: constants.NHSNumberSystem, Value: "9000000009"}},
		Name:       []models.HumanName{{Use: "official", Family: "Smith", Given: []string{"Jane"}, Period: wholeLife}},
		Gender:     "female",
		BirthDate:  "1970-01-01",
	}, 1)

	_ = s.UpsertPatient("9999999999", models.Patient{
		Meta:       &models.Meta{LastUpdated: "2020-01-01T00:00:00Z"},
		Identifier: []models.Identifier{{System: constants.NHSNumberSystem, Value: "9999999999"}},
		Name:       []models.HumanName{{Use: "official", Family: "Jones", Given: []string{"Alice"}, Period: wholeLife}},
		Gender:     "female",
		BirthDate:  "1980-01-01",
		GeneralPractitioner: []models.Reference{{
			Identifier: &models.Identifier{System: constants.ODSOrganisationSystem, Value: "PROVIDER", Period: wholeLife},
		}},
	}, 1)
}

// UpsertPatient inserts or replaces a patient. The id and meta.versionId are
// set from nhsNumber and version.
func (s *PDSStub) UpsertPatient(nhsNumber string, patient models.Patient, version int) error {
	if !tenDigits.MatchString(nhsNumber) {
		return errors.New("NHS Number must be exactly 10 digits")
	}

	patient.ResourceType = models.PatientResourceType
	patient.ID = nhsNumber
	meta := models.Meta{}
	if patient.Meta != nil {
		meta = *patient.Meta
	}
	meta.VersionID = strconv.Itoa(version)
	if meta.LastUpdated == "" {
		meta.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	}
	patient.Meta = &meta

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[nhsNumber] = storedPatient{patient: patient, version: version}
	return nil
}

func (s *PDSStub) RemovePatient(nhsNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patients, nhsNumber)
}

func (s *PDSStub) GetPatient(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(constants.RequestIDHeader)
	correlationID := r.Header.Get(constants.CorrelationIDHeader)

	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	if correlationID != "" {
		w.Header().Set("X-Correlation-Id", correlationID)
	}

	if s.StrictHeaders {
		if requestID == "" {
			writeSpineError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "Missing X-Request-ID")
			return
		}
		if uuid.Parse(requestID) == nil {
			writeSpineError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "Invalid X-Request-ID (must be a UUID)")
			return
		}
	}

	nhsNumber := chi.URLParam(r, "id")
	if !tenDigits.MatchString(nhsNumber) {
		writeSpineError(w, r, http.StatusBadRequest, "INVALID_RESOURCE_ID", "Resource Id is invalid")
		return
	}

	patient, version, err := s.Patient(nhsNumber)
	if err != nil {
		var notFound *gwerrors.EntityNotFoundError
		if errors.As(err, &notFound) {
			writeSpineError(w, r, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Patient not found")
			return
		}
		writeSpineError(w, r, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err.Error())
		return
	}

	w.Header().Set("ETag", fmt.Sprintf(`W/"%d"`, version))
	responseutils.WriteJSON(r.Context(), w, http.StatusOK, patient)
}

// Patient returns the stored patient and its version, or an
// *errors.EntityNotFoundError.
func (s *PDSStub) Patient(nhsNumber string) (models.Patient, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.patients[nhsNumber]
	if !ok {
		return models.Patient{}, 0, &gwerrors.EntityNotFoundError{Err: errors.New("not in PDS stub"), Kind: models.PatientResourceType, Key: nhsNumber}
	}
	return stored.patient, stored.version, nil
}

// writeSpineError writes the OperationOutcome shape PDS and SDS use, with the
// Spine error code in issue details.
func writeSpineError(w http.ResponseWriter, r *http.Request, status int, code, display string) {
	responseutils.WriteJSON(r.Context(), w, status, models.OperationOutcome{
		ResourceType: models.OperationOutcomeResourceType,
		Issue: []models.Issue{{
			Severity: responseutils.Error,
			Code:     responseutils.Value,
			Details: &models.CodeableConcept{Coding: []models.Coding{{
				System:  constants.SpineErrorCodeSystem,
				Version: "1",
				Code:    code,
				Display: display,
			}}},
		}},
	})
}
