package constants

// This is set during compilation. See the Dockerfile build args.
var Version = "latest"

const (
	ContentType         = "Content-Type"
	Accept              = "Accept"
	FHIRJsonContentType = "application/fhir+json"
	JsonContentType     = "application/json"
	TextContentType     = "text/plain; charset=utf-8"
)

// Inbound request headers
const (
	TraceIDHeader = "Ssp-TraceID"
	ODSFromHeader = "ODS-from"
)

// Spine Secure Proxy headers sent to the GP Connect provider
const (
	SspTraceIDHeader       = "Ssp-TraceID"
	SspFromHeader          = "Ssp-From"
	SspToHeader            = "Ssp-To"
	SspInteractionIDHeader = "Ssp-InteractionID"
)

// PDS and SDS headers
const (
	AuthorizationHeader    = "Authorization"
	RequestIDHeader        = "X-Request-ID"
	CorrelationIDHeader    = "X-Correlation-ID"
	EndUserODSHeader       = "NHSD-End-User-Organisation-ODS"
	SessionURIDHeader      = "NHSD-Session-URID"
	APIKeyHeader           = "apikey"
	SDSCorrelationIDHeader = "X-Correlation-Id"
)

// FHIR identifier systems
const (
	NHSNumberSystem          = "https://fhir.nhs.uk/Id/nhs-number"
	ODSOrganisationSystem    = "https://fhir.nhs.uk/Id/ods-organization-code"
	ServiceInteractionSystem = "https://fhir.nhs.uk/Id/nhsServiceInteractionId"
	PartyKeySystem           = "https://fhir.nhs.uk/Id/nhsMhsPartyKey"
	ASIDSystem               = "https://fhir.nhs.uk/Id/nhsSpineASID"
	SpineErrorCodeSystem     = "https://fhir.nhs.uk/R4/CodeSystem/Spine-ErrorOrWarningCode"
)

const (
	PatientNHSNumberParam = "patientNHSNumber"

	StructuredRecordOperation     = "$gpc.getstructuredrecord"
	StructuredRecordPath          = "/FHIR/STU3/patient/" + StructuredRecordOperation
	StructuredRecordInteractionID = "urn:nhs:names:services:gpconnect:fhir:operation:gpc.getstructuredrecord-1"

	// Interaction registered against provider devices in SDS.
	DefaultServiceInteractionID = "urn:nhs:names:services:gpconnect:fhir:rest:read:metadata-1"
)

// Upstream sandbox locations used when nothing is configured.
const (
	PDSSandboxURL = "https://sandbox.api.service.nhs.uk/personal-demographics/FHIR/R4"
	SDSSandboxURL = "https://sandbox.api.service.nhs.uk/spine-directory/FHIR/R4"
)
