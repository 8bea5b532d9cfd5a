package api

import (
	"context"
	"net/http"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/responseutils"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/service"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StructuredRecordService is satisfied by *service.Controller.
type StructuredRecordService interface {
	GetStructuredRecord(ctx context.Context, req service.StructuredRecordRequest) (*fhir.RawResponse, error)
}

type Handler struct {
	svc        StructuredRecordService
	RespWriter responseutils.ResponseWriter
}

func NewHandler(svc StructuredRecordService) *Handler {
	return &Handler{svc: svc, RespWriter: responseutils.NewResponseWriter()}
}

/*
	swagger:route POST /FHIR/STU3/patient/$gpc.getstructuredrecord gpconnect getStructuredRecord

	Retrieve a patient's structured record

	Locates the patient's registered GP practice through PDS and SDS and forwards the Parameters
	resource to that practice's GP Connect provider. The provider's response is returned unchanged.

	Consumes:
	- application/fhir+json

	Produces:
	- application/fhir+json

	Responses:
		200: StructuredRecordBundle
		400: badRequestResponse
		404: notFoundResponse
		502: badGatewayResponse
*/
func (h *Handler) GetStructuredRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := ParseGetStructuredRecordRequest(r)
	if err != nil {
		h.writeRequestError(ctx, w, err)
		return
	}

	ctx, _ = log.SetLoggerFields(ctx, logrus.Fields{
		"ssp_trace_id": req.TraceID,
		"ods_from":     req.ODSFrom,
	})

	resp, err := h.svc.GetStructuredRecord(ctx, req.ServiceRequest())
	if err != nil {
		h.writeRequestError(ctx, w, err)
		return
	}

	writeProviderResponse(ctx, w, resp)
}

func (h *Handler) writeRequestError(ctx context.Context, w http.ResponseWriter, err error) {
	var reqErr *gwerrors.RequestError
	if !errors.As(err, &reqErr) {
		log.WriteErrorWithFields(ctx, err.Error(), logrus.Fields{})
		h.RespWriter.Exception(ctx, w, http.StatusInternalServerError, constants.InternalErr, err.Error())
		return
	}

	errType := constants.RequestErr
	switch {
	case reqErr.StatusCode == http.StatusNotFound:
		errType = constants.NotFoundErr
	case reqErr.StatusCode >= http.StatusInternalServerError:
		errType = constants.UpstreamErr
	}
	log.WriteWarnWithFields(ctx, reqErr.Message, logrus.Fields{"resp_status": reqErr.StatusCode})
	h.RespWriter.ForStatus(ctx, w, reqErr.StatusCode, errType, reqErr.Message)
}

// writeProviderResponse relays the provider's status, content type and body.
func writeProviderResponse(ctx context.Context, w http.ResponseWriter, resp *fhir.RawResponse) {
	contentType := resp.Header.Get(constants.ContentType)
	if contentType == "" {
		contentType = constants.FHIRJsonContentType
	}
	w.Header().Set(constants.ContentType, contentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		log.GetCtxLogger(ctx).Error(err)
	}
}

/*
	swagger:route GET / metadata greeting

	Placeholder greeting

	Produces:
	- text/plain

	Responses:
		200: greetingResponse
*/
func Greeting(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(constants.ContentType, constants.TextContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("Hello, World!")); err != nil {
		log.API.Error(err)
	}
}

/*
	swagger:route GET /_version metadata getVersion

	Get API version

	Returns the version of the API that is currently running.

	Produces:
	- application/json

	Responses:
		200: VersionResponse
*/
func GetVersion(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": constants.Version})
}

/*
	swagger:route GET /health metadata healthCheck

	Liveness check used by the load balancer target group.

	Produces:
	- application/json

	Responses:
		200: healthResponse
*/
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "healthy"})
}
