package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

// GreetingResponse mirrors the response envelope the API management layer
// expects from a function invocation.
type GreetingResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       interface{}       `json:"body"`
}

// ErrUnknownName is returned by Greet for names that cannot be greeted.
var ErrUnknownName = errors.New("nonexistent user provided")

func Greet(name string) (string, error) {
	if name == "nonexistent" {
		return "", ErrUnknownName
	}
	return fmt.Sprintf("Hello, %s!", name), nil
}

/*
	swagger:route POST /2015-03-31/functions/function/invocations metadata greetingInvocation

	Greet a caller by name

	Always answers HTTP 200; the outcome is carried in the statusCode of the envelope.

	Produces:
	- application/json

	Responses:
		200: GreetingResponse
		400: badRequestResponse
*/
func GreetingInvocation(w http.ResponseWriter, r *http.Request) {
	var data map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		log.API.WithError(err).Warn("Could not decode greeting invocation")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	raw, ok := data["payload"]
	if !ok {
		render.JSON(w, r, greetingResponse(http.StatusBadRequest, "Name is required"))
		return
	}

	name, err := payloadName(raw)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if name == "" {
		render.JSON(w, r, greetingResponse(http.StatusBadRequest, "Name cannot be empty"))
		return
	}

	greeting, err := Greet(name)
	if err != nil {
		render.JSON(w, r, greetingResponse(http.StatusNotFound, "Provided name cannot be found. name="+name))
		return
	}
	render.JSON(w, r, greetingResponse(http.StatusOK, greeting))
}

// payloadName turns any JSON payload into the name to greet. null, false, 0,
// "" and empty arrays or objects give "". true is "True"; numbers keep their
// literal form and other arrays and objects their compact JSON.
func payloadName(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	switch p := v.(type) {
	case nil:
		return "", nil
	case string:
		return p, nil
	case bool:
		if p {
			return "True", nil
		}
		return "", nil
	case json.Number:
		if f, err := p.Float64(); err == nil && f == 0 {
			return "", nil
		}
		return p.String(), nil
	case []interface{}:
		if len(p) == 0 {
			return "", nil
		}
	case map[string]interface{}:
		if len(p) == 0 {
			return "", nil
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func greetingResponse(statusCode int, body interface{}) GreetingResponse {
	return GreetingResponse{
		StatusCode: statusCode,
		Headers:    map[string]string{constants.ContentType: constants.JsonContentType},
		Body:       body,
	}
}
