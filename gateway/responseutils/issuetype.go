package responseutils

// Definition: A code that describes the type of issue.
// See: http://hl7.org/fhir/issue-type
const (
	Invalid   = "invalid"
	Required  = "required"
	Value     = "value"
	NotFound  = "not-found"
	Transient = "transient"
	Exception = "exception"
	Timeout   = "timeout"
)
