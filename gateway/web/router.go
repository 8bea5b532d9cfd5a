package web

import (
	"fmt"
	"net/http"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/api"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/logging"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/metrics"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/monitoring"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/responseutils"
	gwmiddleware "github.com/NHSDigital/clinical-data-gateway-api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Path the API-management layer posts greeting invocations to.
const InvocationsPath = "/2015-03-31/functions/function/invocations"

// Path the structured record operation was first published under.
const LegacyStructuredRecordPath = "/patient/" + constants.StructuredRecordOperation

func NewAPIRouter(h *api.Handler) http.Handler {
	r := chi.NewRouter()
	m := monitoring.GetMonitor()
	r.Use(gwmiddleware.UnescapePath, middleware.RequestID, logging.NewCtxLogger, gwmiddleware.NewTransactionID,
		logging.NewStructuredLogger(), metrics.Middleware, SecurityHeader, ConnectionClose)

	r.NotFound(notFound(h.RespWriter))
	r.MethodNotAllowed(methodNotAllowed(h.RespWriter))

	r.Get(m.WrapHandler("/", api.Greeting))
	r.Get(m.WrapHandler("/health", api.HealthCheck))
	r.Get(m.WrapHandler("/_version", api.GetVersion))
	r.Handle("/metrics", metrics.Handler())

	r.Post(m.WrapHandler(constants.StructuredRecordPath, h.GetStructuredRecord))
	r.Post(m.WrapHandler(LegacyStructuredRecordPath, h.GetStructuredRecord))
	r.Post(m.WrapHandler(InvocationsPath, api.GreetingInvocation))

	return r
}

func notFound(rw responseutils.ResponseWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw.NotFound(r.Context(), w, http.StatusNotFound, constants.NotFoundErr,
			fmt.Sprintf("No route matches %s %s", r.Method, r.URL.Path))
	}
}

func methodNotAllowed(rw responseutils.ResponseWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw.Exception(r.Context(), w, http.StatusMethodNotAllowed, constants.RequestErr,
			fmt.Sprintf("Method %s is not allowed on %s", r.Method, r.URL.Path))
	}
}
