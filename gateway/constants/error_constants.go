package constants

// Diagnostics types written into OperationOutcome responses.
const (
	RequestErr  = "Request Error"
	UpstreamErr = "Upstream Error"
	InternalErr = "Internal Error"
	NotFoundErr = "Not Found"

	GPConnectServiceErr = "GP Connect service error"
)
