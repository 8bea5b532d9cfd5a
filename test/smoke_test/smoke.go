package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	apiHost, proto, nhsNumber, odsFrom, authToken string
	timeout, waitReady                            int
	expectRecord                                  bool
)

func init() {
	flag.StringVar(&apiHost, "host", "localhost:8080", "host to send requests to")
	flag.StringVar(&proto, "proto", "http", "protocol to use")
	flag.StringVar(&nhsNumber, "nhs_number", "9999999999", "NHS number to request the structured record for")
	flag.StringVar(&odsFrom, "ods_from", "CONSUMER", "ODS code of the consuming organisation")
	flag.StringVar(&authToken, "auth_token", "", "bearer token forwarded to PDS")
	flag.IntVar(&timeout, "timeout", 30, "seconds to wait for each request")
	flag.IntVar(&waitReady, "wait", 120, "seconds to wait for the service to report healthy before running checks")
	flag.BoolVar(&expectRecord, "expect_record", true, "require a 200 Bundle from the structured record operation")
	flag.Parse()

	log.SetFormatter(&log.JSONFormatter{})
}

type check struct {
	name string
	run  func(c *http.Client) error
}

func main() {
	c := &http.Client{Timeout: time.Duration(timeout) * time.Second}

	if err := waitForHealthy(c, time.Duration(waitReady)*time.Second); err != nil {
		log.Errorf("Service did not become healthy: %s", err.Error())
		os.Exit(1)
	}

	checks := []check{
		{"health", checkHealth},
		{"version", checkVersion},
		{"unknown route", checkNotFound},
		{"structured record", checkStructuredRecord},
	}

	failed := 0
	for _, chk := range checks {
		if err := chk.run(c); err != nil {
			log.WithField("check", chk.name).Error(err)
			failed++
			continue
		}
		log.WithField("check", chk.name).Info("passed")
	}

	if failed > 0 {
		log.Errorf("%d of %d smoke checks failed", failed, len(checks))
		os.Exit(1)
	}
}

// waitForHealthy polls /health with exponential backoff, which covers a
// fresh deployment still registering with its load balancer.
func waitForHealthy(c *http.Client, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait
	return backoff.RetryNotify(func() error { return checkHealth(c) }, b,
		func(err error, next time.Duration) {
			log.Infof("service not healthy yet (%s), retrying in %s", err.Error(), next)
		})
}

func baseURL() string {
	return fmt.Sprintf("%s://%s", proto, apiHost)
}

func checkHealth(c *http.Client) error {
	var body map[string]string
	if err := getJSON(c, baseURL()+"/health", &body); err != nil {
		return err
	}
	if body["status"] != "healthy" {
		return errors.Errorf("unexpected health status %q", body["status"])
	}
	return nil
}

func checkVersion(c *http.Client) error {
	var body map[string]string
	if err := getJSON(c, baseURL()+"/_version", &body); err != nil {
		return err
	}
	if body["version"] == "" {
		return errors.New("version is empty")
	}
	log.Infof("gateway version %s", body["version"])
	return nil
}

func checkNotFound(c *http.Client) error {
	resp, err := c.Get(baseURL() + "/" + uuid.New())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		return errors.Errorf("expected 404, got %d", resp.StatusCode)
	}
	return expectResourceType(resp.Body, "OperationOutcome")
}

func checkStructuredRecord(c *http.Client) error {
	body := fmt.Sprintf(`{"resourceType":"Parameters","parameter":[{"name":"patientNHSNumber",`+
		`"valueIdentifier":{"system":"https://fhir.nhs.uk/Id/nhs-number","value":%q}}]}`, nhsNumber)

	req, err := http.NewRequest(http.MethodPost, baseURL()+"/FHIR/STU3/patient/$gpc.getstructuredrecord",
		bytes.NewBufferString(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/fhir+json")
	req.Header.Set("Ssp-TraceID", uuid.New())
	req.Header.Set("ODS-from", odsFrom)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !expectRecord {
		// Any FHIR answer proves the gateway reached its upstreams.
		return expectResourceType(resp.Body, "Bundle", "OperationOutcome")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.Errorf("expected 200, got %d, body '%s'", resp.StatusCode, respBody)
	}
	return expectResourceType(resp.Body, "Bundle")
}

func getJSON(c *http.Client, url string, v interface{}) error {
	resp, err := c.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("request %s has unexpected response code received %d", url, resp.StatusCode)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(v), "could not decode response from %s", url)
}

func expectResourceType(r io.Reader, types ...string) error {
	var body struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return errors.Wrap(err, "response is not JSON")
	}
	for _, t := range types {
		if body.ResourceType == t {
			return nil
		}
	}
	return errors.Errorf("unexpected resourceType %q, want one of %v", body.ResourceType, types)
}
