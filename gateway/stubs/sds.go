package stubs

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/responseutils"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
)

const (
	sdsFullURLBase = "https://sandbox.api.service.nhs.uk/spine-directory/FHIR/R4/"

	connectionTypeSystem = "http://terminology.hl7.org/CodeSystem/endpoint-connection-type"
	payloadTypeSystem    = "http://terminology.hl7.org/CodeSystem/endpoint-payload-type"

	// DefaultProviderAddress is the endpoint seeded for the PROVIDER organisation.
	DefaultProviderAddress = "https://provider.example.com/fhir"
)

// sdsKey identifies a registration. Empty fields act as wildcards for
// endpoint lookups.
type sdsKey struct {
	ods           string
	interactionID string
	partyKey      string
}

// SDSStub serves GET /Device and GET /Endpoint searches from memory.
type SDSStub struct {
	mu        sync.RWMutex
	devices   map[sdsKey][]models.Device
	endpoints map[sdsKey][]models.Endpoint
}

// NewSDSStub seeds a PROVIDER and a CONSUMER organisation. providerAddress is
// the GP Connect endpoint returned for PROVIDER.
func NewSDSStub(providerAddress string) *SDSStub {
	if providerAddress == "" {
		providerAddress = DefaultProviderAddress
	}
	s := &SDSStub{
		devices:   make(map[sdsKey][]models.Device),
		endpoints: make(map[sdsKey][]models.Endpoint),
	}
	s.seed(providerAddress)
	return s
}

func (s *SDSStub) seed(providerAddress string) {
	s.AddOrganisation(Organisation{
		ODS:        "PROVIDER",
		ASID:       "asid_PROV",
		PartyKey:   "PROVIDER-0000806",
		Address:    providerAddress,
		Display:    "Example NHS Trust",
		DeviceID:   "F0F0E921-92CA-4A88-A550-2DBB36F703AF",
		EndpointID: "E0E0E921-92CA-4A88-A550-2DBB36F703AF",
	})
	s.AddOrganisation(Organisation{
		ODS:        "CONSUMER",
		ASID:       "asid_CONS",
		PartyKey:   "CONSUMER-0000807",
		Address:    "https://consumer.example.com/fhir",
		Display:    "Example Consumer Organisation",
		DeviceID:   "C0C0E921-92CA-4A88-A550-2DBB36F703AF",
		EndpointID: "E1E1E921-92CA-4A88-A550-2DBB36F703AF",
	})
}

// Organisation is a GP Connect capable organisation as registered in SDS.
type Organisation struct {
	ODS        string `toml:"ods"`
	ASID       string `toml:"asid"`
	PartyKey   string `toml:"party_key"`
	Address    string `toml:"address"`
	Display    string `toml:"display"`
	DeviceID   string `toml:"device_id"`
	EndpointID string `toml:"endpoint_id"`
}

// AddOrganisation registers a device and an endpoint for org under the
// default service interaction, replacing anything already registered for
// org.ODS there. Missing resource ids are generated.
func (s *SDSStub) AddOrganisation(org Organisation) {
	s.RemoveOrganisation(org.ODS, constants.DefaultServiceInteractionID)

	if org.DeviceID == "" {
		org.DeviceID = strings.ToUpper(uuid.New())
	}
	if org.EndpointID == "" {
		org.EndpointID = strings.ToUpper(uuid.New())
	}

	identifiers := []models.Identifier{
		{System: constants.ASIDSystem, Value: org.ASID},
		{System: constants.PartyKeySystem, Value: org.PartyKey},
	}
	owner := &models.Reference{
		Identifier: &models.Identifier{System: constants.ODSOrganisationSystem, Value: org.ODS},
		Display:    org.Display,
	}

	s.UpsertDevice(org.ODS, constants.DefaultServiceInteractionID, org.PartyKey, models.Device{
		ResourceType: models.DeviceResourceType,
		ID:           org.DeviceID,
		Identifier:   identifiers,
		Owner:        owner,
	})
	if org.Address == "" {
		return
	}
	s.UpsertEndpoint(org.ODS, constants.DefaultServiceInteractionID, org.PartyKey, models.Endpoint{
		ResourceType:         models.EndpointResourceType,
		ID:                   org.EndpointID,
		Status:               "active",
		ConnectionType:       &models.Coding{System: connectionTypeSystem, Code: "hl7-fhir-rest", Display: "HL7 FHIR"},
		PayloadType:          []models.CodeableConcept{{Coding: []models.Coding{{System: payloadTypeSystem, Code: "any", Display: "Any"}}}},
		Address:              org.Address,
		ManagingOrganization: &models.Reference{Identifier: owner.Identifier},
		Identifier:           identifiers,
	})
}

// UpsertDevice replaces the device with the same id under the key, or adds
// it. Several devices may share a key and are all returned by a search.
func (s *SDSStub) UpsertDevice(ods, interactionID, partyKey string, device models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sdsKey{ods, interactionID, partyKey}
	for i := range s.devices[key] {
		if s.devices[key][i].ID == device.ID {
			s.devices[key][i] = device
			return
		}
	}
	s.devices[key] = append(s.devices[key], device)
}

func (s *SDSStub) UpsertEndpoint(ods, interactionID, partyKey string, endpoint models.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sdsKey{ods, interactionID, partyKey}
	for i := range s.endpoints[key] {
		if s.endpoints[key][i].ID == endpoint.ID {
			s.endpoints[key][i] = endpoint
			return
		}
	}
	s.endpoints[key] = append(s.endpoints[key], endpoint)
}

// RemoveOrganisation drops every device and endpoint registered for ods under
// interactionID, whatever their party key.
func (s *SDSStub) RemoveOrganisation(ods, interactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.devices {
		if key.ods == ods && key.interactionID == interactionID {
			delete(s.devices, key)
		}
	}
	for key := range s.endpoints {
		if key.ods == ods && key.interactionID == interactionID {
			delete(s.endpoints, key)
		}
	}
}

func (s *SDSStub) ClearDevices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = make(map[sdsKey][]models.Device)
}

func (s *SDSStub) ClearEndpoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = make(map[sdsKey][]models.Endpoint)
}

func (s *SDSStub) GetDevices(w http.ResponseWriter, r *http.Request) {
	query, ok := parseSDSQuery(w, r)
	if !ok {
		return
	}
	if query.ods == "" {
		writeSpineError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "Missing required query parameter: organization")
		return
	}
	if query.interactionID == "" {
		writeSpineError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "identifier must include nhsServiceInteractionId")
		return
	}

	var entries []models.BundleEntry
	for _, device := range s.lookupDevices(query) {
		e, err := entry("Device/"+device.ID, device)
		if err != nil {
			log.Mock.WithError(err).Error("Could not encode SDS device")
			writeSpineError(w, r, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Could not encode Device")
			return
		}
		entries = append(entries, e)
	}
	responseutils.WriteJSON(r.Context(), w, http.StatusOK, searchset(entries))
}

func (s *SDSStub) GetEndpoints(w http.ResponseWriter, r *http.Request) {
	query, ok := parseSDSQuery(w, r)
	if !ok {
		return
	}

	var entries []models.BundleEntry
	for _, endpoint := range s.lookupEndpoints(query) {
		e, err := entry("Endpoint/"+endpoint.ID, endpoint)
		if err != nil {
			log.Mock.WithError(err).Error("Could not encode SDS endpoint")
			writeSpineError(w, r, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Could not encode Endpoint")
			return
		}
		entries = append(entries, e)
	}
	responseutils.WriteJSON(r.Context(), w, http.StatusOK, searchset(entries))
}

// lookupDevices prefers an exact match, then falls back to ignoring the party key.
func (s *SDSStub) lookupDevices(query sdsKey) []models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if devices, ok := s.devices[query]; ok {
		return devices
	}
	for key, devices := range s.devices {
		if key.ods == query.ods && key.interactionID == query.interactionID &&
			(query.partyKey == "" || key.partyKey == "") {
			return devices
		}
	}
	return nil
}

// lookupEndpoints returns every endpoint whose key agrees with the query on
// all fields both sides set, and matches on at least one of them.
func (s *SDSStub) lookupEndpoints(query sdsKey) []models.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.Endpoint
	for key, endpoints := range s.endpoints {
		matches := 0
		compatible := true
		for _, pair := range [][2]string{
			{query.ods, key.ods},
			{query.interactionID, key.interactionID},
			{query.partyKey, key.partyKey},
		} {
			if pair[0] == "" || pair[1] == "" {
				continue
			}
			if pair[0] != pair[1] {
				compatible = false
				break
			}
			matches++
		}
		if compatible && matches > 0 {
			results = append(results, endpoints...)
		}
	}
	return results
}

// parseSDSQuery checks the headers and parameters common to both searches.
func parseSDSQuery(w http.ResponseWriter, r *http.Request) (sdsKey, bool) {
	if correlationID := r.Header.Get(constants.SDSCorrelationIDHeader); correlationID != "" {
		w.Header().Set(constants.SDSCorrelationIDHeader, correlationID)
	}

	if _, ok := r.Header[http.CanonicalHeaderKey(constants.APIKeyHeader)]; !ok {
		writeSpineError(w, r, http.StatusBadRequest, "MISSING_API_KEY", "Missing required header: apikey")
		return sdsKey{}, false
	}

	params := r.URL.Query()
	identifiers := params["identifier"]
	if len(identifiers) == 0 {
		writeSpineError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "Missing required query parameter: identifier")
		return sdsKey{}, false
	}

	query := sdsKey{ods: tokenValue(params.Get("organization"), constants.ODSOrganisationSystem)}
	for _, identifier := range identifiers {
		switch {
		case strings.HasPrefix(identifier, constants.ServiceInteractionSystem+"|"):
			query.interactionID = tokenValue(identifier, constants.ServiceInteractionSystem)
		case strings.HasPrefix(identifier, constants.PartyKeySystem+"|"):
			query.partyKey = tokenValue(identifier, constants.PartyKeySystem)
		}
	}
	return query, true
}

// tokenValue strips the "system|" prefix of a FHIR token search parameter.
func tokenValue(token, system string) string {
	return strings.TrimSpace(strings.TrimPrefix(token, system+"|"))
}

func entry(path string, resource interface{}) (models.BundleEntry, error) {
	raw, err := json.Marshal(resource)
	if err != nil {
		return models.BundleEntry{}, errors.Wrapf(err, "could not marshal %s", path)
	}
	return models.BundleEntry{FullURL: sdsFullURLBase + path, Resource: raw}, nil
}

func searchset(entries []models.BundleEntry) models.Bundle {
	total := len(entries)
	return models.Bundle{
		ResourceType: models.BundleResourceType,
		Type:         models.BundleTypeSearchset,
		Total:        &total,
		Entry:        entries,
	}
}
