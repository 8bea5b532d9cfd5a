// fhir package contains structs representing FHIR data.
// These data models are a lighter weight definition containing the fields the
// gateway reads from or writes to PDS, SDS and GP Connect.
package fhir

import (
	"encoding/json"
	"strings"
)

const (
	PatientResourceType          = "Patient"
	BundleResourceType           = "Bundle"
	ParametersResourceType       = "Parameters"
	OperationOutcomeResourceType = "OperationOutcome"
	DeviceResourceType           = "Device"
	EndpointResourceType         = "Endpoint"

	BundleTypeCollection = "collection"
	BundleTypeSearchset  = "searchset"
)

type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Profile     []string `json:"profile,omitempty"`
}

// Period dates are ISO dates, YYYY-MM-DD.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type Identifier struct {
	System string  `json:"system,omitempty"`
	Value  string  `json:"value,omitempty"`
	Period *Period `json:"period,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Period *Period  `json:"period,omitempty"`
}

type Reference struct {
	Reference  string      `json:"reference,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
	Display    string      `json:"display,omitempty"`
}

type Patient struct {
	ResourceType        string       `json:"resourceType"`
	ID                  string       `json:"id,omitempty"`
	Meta                *Meta        `json:"meta,omitempty"`
	Identifier          []Identifier `json:"identifier,omitempty"`
	Active              *bool        `json:"active,omitempty"`
	Name                []HumanName  `json:"name,omitempty"`
	Gender              string       `json:"gender,omitempty"`
	BirthDate           string       `json:"birthDate,omitempty"`
	GeneralPractitioner []Reference  `json:"generalPractitioner,omitempty"`
}

type Parameter struct {
	Name            string      `json:"name"`
	ValueIdentifier *Identifier `json:"valueIdentifier,omitempty"`
	ValueBoolean    *bool       `json:"valueBoolean,omitempty"`
}

type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter"`
}

// FindParameter returns the first parameter with the given name.
func (p Parameters) FindParameter(name string) (Parameter, bool) {
	for _, param := range p.Parameter {
		if param.Name == name {
			return param, true
		}
	}
	return Parameter{}, false
}

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Type         string        `json:"type"`
	Timestamp    string        `json:"timestamp,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleEntry keeps the resource as raw JSON so searchsets of any resource type
// can be decoded lazily.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

type Device struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Owner        *Reference   `json:"owner,omitempty"`
}

type Endpoint struct {
	ResourceType         string            `json:"resourceType"`
	ID                   string            `json:"id,omitempty"`
	Status               string            `json:"status,omitempty"`
	ConnectionType       *Coding           `json:"connectionType,omitempty"`
	PayloadType          []CodeableConcept `json:"payloadType,omitempty"`
	Address              string            `json:"address,omitempty"`
	ManagingOrganization *Reference        `json:"managingOrganization,omitempty"`
	Identifier           []Identifier      `json:"identifier,omitempty"`
}

// IdentifierValue returns the trimmed value of the first identifier with the
// given system, or "".
func IdentifierValue(identifiers []Identifier, system string) string {
	for _, id := range identifiers {
		if id.System != system {
			continue
		}
		if v := strings.TrimSpace(id.Value); v != "" {
			return v
		}
	}
	return ""
}

type Issue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Details     *CodeableConcept `json:"details,omitempty"`
}

type OperationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}

// ResourceHeader is used to peek at the type of an arbitrary resource.
type ResourceHeader struct {
	ResourceType string `json:"resourceType"`
}

type PDSSearchResult struct {
	GivenNames string
	FamilyName string
	NHSNumber  string
	GPODSCode  string
}

type SDSSearchResult struct {
	ASID     string
	Endpoint string
}
