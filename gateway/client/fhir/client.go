package fhir

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	"github.com/newrelic/go-agent/v3/newrelic"
)

type Client interface {
	// DoJSON makes a request and decodes a successful JSON response into v.
	// Responses with a status >= 400 return *errors.UnexpectedStatusCodeError.
	DoJSON(req *http.Request, v interface{}) error

	// DoRaw makes a request and returns the response from the service whatever
	// its status. Only transport failures are errors.
	DoRaw(req *http.Request) (*RawResponse, error)
}

type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func NewClient(httpClient *http.Client) Client {
	return &client{httpClient}
}

type client struct {
	httpClient *http.Client
}

// Ensure client satisfies the interface
var _ Client = &client{}

func (c *client) DoJSON(req *http.Request, v interface{}) error {
	resp, err := getResponse(c.httpClient, req)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &gwerrors.UnexpectedStatusCodeError{
			Err:        fmt.Errorf("received incorrect status code %d from %s", resp.StatusCode, req.URL.Path),
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *client) DoRaw(req *http.Request) (*RawResponse, error) {
	resp, err := getResponse(c.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return resp, nil
}

func getResponse(c *http.Client, req *http.Request) (*RawResponse, error) {
	seg := newrelic.StartExternalSegment(newrelic.FromContext(req.Context()), req)
	resp, err := c.Do(req)
	seg.Response = resp
	seg.End()
	if resp != nil {
		/* #nosec -- it's OK for us to ignore errors when attempt to cleanup response body */
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
	}
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}
