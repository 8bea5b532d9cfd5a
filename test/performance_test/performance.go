package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pborman/uuid"
	vegeta "github.com/tsenart/vegeta/lib"
	"github.com/tsenart/vegeta/lib/plot"
)

var (
	apiHost, proto, nhsNumber, odsFrom, authToken, reportFilePath, testName string
	freq, duration                                                         int
)

func init() {
	flag.StringVar(&apiHost, "host", "localhost:8080", "host to send requests to")
	flag.StringVar(&proto, "proto", "http", "protocol to use")
	flag.StringVar(&nhsNumber, "nhs_number", "9999999999", "NHS number to request the structured record for")
	flag.StringVar(&odsFrom, "ods_from", "CONSUMER", "ODS code of the consuming organisation")
	flag.StringVar(&authToken, "auth_token", "", "bearer token forwarded to PDS")
	flag.IntVar(&duration, "duration", 60, "seconds: the total time to run the test")
	flag.IntVar(&freq, "freq", 10, "the number of requests per second")
	flag.StringVar(&reportFilePath, "report_path", "../../test_results/performance", "path to write the result.html")
	flag.StringVar(&testName, "name", "structured_record", "name used for the plot title and file")
	flag.Parse()

	// create folder if doesn't exist for storing the results
	if _, err := os.Stat(reportFilePath); os.IsNotExist(err) {
		err := os.MkdirAll(reportFilePath, os.ModePerm)
		if err != nil {
			panic(err)
		}
	}
}

func main() {
	results := runAPITest(makeTargeter())
	var buf bytes.Buffer
	_, err := results.WriteTo(&buf)
	if err != nil {
		panic(err)
	}
	writeResults(fmt.Sprintf("%s_api_plot", testName), buf)
}

// makeTargeter sends a fresh Ssp-TraceID with every request so provider side
// logs can be told apart.
func makeTargeter() vegeta.Targeter {
	url := fmt.Sprintf("%s://%s/FHIR/STU3/patient/$gpc.getstructuredrecord", proto, apiHost)
	body := []byte(fmt.Sprintf(`{"resourceType":"Parameters","parameter":[{"name":"patientNHSNumber",`+
		`"valueIdentifier":{"system":"https://fhir.nhs.uk/Id/nhs-number","value":%q}}]}`, nhsNumber))

	return func(tgt *vegeta.Target) error {
		if tgt == nil {
			return vegeta.ErrNilTarget
		}
		tgt.Method = http.MethodPost
		tgt.URL = url
		tgt.Body = body
		tgt.Header = http.Header{
			"Content-Type": {"application/fhir+json"},
			"Accept":       {"application/fhir+json"},
			"Ssp-TraceID":  {uuid.New()},
			"ODS-from":     {odsFrom},
		}
		if authToken != "" {
			tgt.Header.Set("Authorization", "Bearer "+authToken)
		}
		return nil
	}
}

func runAPITest(target vegeta.Targeter) *plot.Plot {
	fmt.Printf("running api performance for: %s\n", testName)
	title := plot.Title(fmt.Sprintf("apiTest_%s", testName))
	p := plot.New(title)
	defer p.Close()

	// 10 request every second for 60 seconds = 600 total calls
	d := time.Second * time.Duration(duration)
	rate := vegeta.Rate{Freq: freq, Per: time.Second}
	plotAttack(p, target, rate, d)

	return p
}

func plotAttack(p *plot.Plot, t vegeta.Targeter, r vegeta.Rate, du time.Duration) {
	attacker := vegeta.NewAttacker()
	var metrics vegeta.Metrics
	for results := range attacker.Attack(t, r, du, fmt.Sprintf("%dps:", r.Freq)) {
		metrics.Add(results)
		err := p.Add(results)
		if err != nil {
			panic(err)
		}
	}
	metrics.Close()
	fmt.Printf("requests: %d, success: %.2f%%, p95: %s, status codes: %v\n",
		metrics.Requests, metrics.Success*100, metrics.Latencies.P95, metrics.StatusCodes)
}

func writeResults(filename string, buf bytes.Buffer) {
	data := buf.Bytes()
	if len(data) > 0 {
		fn := fmt.Sprintf("%s/%s.html", reportFilePath, filename)
		fmt.Printf("Writing results: %s\n", fn)
		err := os.WriteFile(fn, data, 0600)
		if err != nil {
			panic(err)
		}
	}
}
