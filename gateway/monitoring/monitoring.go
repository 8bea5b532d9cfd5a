package monitoring

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/conf"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/newrelic/go-agent/v3/integrations/nrlogrus"
	"github.com/newrelic/go-agent/v3/newrelic"
)

var (
	a    *apm
	once sync.Once
)

type apm struct {
	App *newrelic.Application
}

// GetMonitor returns the process wide New Relic application. The agent is
// disabled unless NEW_RELIC_LICENSE_KEY is set.
func GetMonitor() *apm {
	once.Do(func() {
		a = newMonitor(conf.GetEnv("NEW_RELIC_LICENSE_KEY"))
	})
	return a
}

func newMonitor(license string) *apm {
	target := conf.GetEnv("DEPLOYMENT_TARGET")
	if target == "" {
		target = "local"
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(fmt.Sprintf("clinical-data-gateway-%s", target)),
		newrelic.ConfigLicense(license),
		newrelic.ConfigEnabled(license != ""),
		nrlogrus.ConfigStandardLogger(),
		func(cfg *newrelic.Config) {
			cfg.HighSecurity = true
		},
	)
	if err != nil {
		log.API.Warnf("Failed to instantiate New Relic application, transactions will not be reported. %s", err.Error())
		return &apm{}
	}
	return &apm{App: app}
}

// WrapHandler names the New Relic transaction after the route pattern. It
// returns the pattern unchanged so calls read like chi's r.Get(pattern, h).
func (a *apm) WrapHandler(pattern string, h http.HandlerFunc) (string, http.HandlerFunc) {
	if a.App == nil {
		return pattern, h
	}
	p, wrapped := newrelic.WrapHandleFunc(a.App, pattern, h)
	return p, wrapped
}

// Shutdown flushes pending data. Safe to call when the agent is disabled.
func (a *apm) Shutdown(timeout time.Duration) {
	if a.App != nil {
		a.App.Shutdown(timeout)
	}
}
