package gatewaycli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/conf"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/api"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/mockserver"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/monitoring"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/service"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/servicemux"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/stubs"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/utils"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/web"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// App Name and usage.  Edit them here to prevent breaking tests
const Name = "clinical-data-gateway"
const Usage = "Clinical Data Gateway API CLI"

const shutdownTimeout = 10 * time.Second

func GetApp() *cli.App {
	return setUpApp()
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage
	app.Version = constants.Version
	var port, baseURL, nhsNumber, seedFile string
	var withStubs, watchSeed bool
	app.Commands = []cli.Command{
		{
			Name:  "start-api",
			Usage: "Start the gateway API",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:        "with-stubs",
					Usage:       "Serve the PDS, SDS and provider stubs on the same port and call them instead of the real services",
					Destination: &withStubs,
				},
			},
			Action: func(c *cli.Context) error {
				addr := conf.GetEnv("GATEWAY_PORT")
				if addr == "" {
					addr = ":8080"
				}

				cfg, err := service.LoadConfig()
				if err != nil {
					return err
				}

				smux, err := servicemux.New(addr)
				if err != nil {
					return err
				}

				if withStubs {
					stubsHandler := useLocalStubs(cfg, addr)
					for _, prefix := range []string{stubs.PDSPrefix, stubs.SDSPrefix, stubs.ProviderPrefix} {
						smux.AddServer(newServer(stubsHandler, "STUBS"), prefix)
					}
				}

				controller, err := service.NewControllerFromConfig(cfg)
				if err != nil {
					return err
				}
				smux.AddServer(newServer(web.NewAPIRouter(api.NewHandler(controller)), "API"), "")

				fmt.Fprintf(app.Writer, "Starting %s on %s...\n", Name, addr)
				go closeOnSignal(smux.Close)
				defer monitoring.GetMonitor().Shutdown(shutdownTimeout)

				return ignoreClosed(smux.Serve())
			},
		},
		{
			Name:  "start-mock",
			Usage: "Start the GP Connect fixture server",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "port",
					Usage:       "Address to listen on",
					Value:       ":8081",
					EnvVar:      "MOCK_PORT",
					Destination: &port,
				},
			},
			Action: func(c *cli.Context) error {
				fmt.Fprintf(app.Writer, "Starting GP Connect mock on %s...\n", port)
				return listenAndServe(newServer(mockserver.NewRouter(), "MOCK"), port)
			},
		},
		{
			Name:  "start-stubs",
			Usage: "Start the PDS, SDS and provider stubs",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "port",
					Usage:       "Address to listen on",
					Value:       ":8082",
					EnvVar:      "STUBS_PORT",
					Destination: &port,
				},
				cli.StringFlag{
					Name:        "base-url",
					Usage:       "URL the stubs are reachable at, used for the provider endpoint returned by SDS",
					EnvVar:      "STUBS_BASE_URL",
					Destination: &baseURL,
				},
				cli.StringFlag{
					Name:        "seed",
					Usage:       "TOML file with extra patients and organisations",
					EnvVar:      "STUBS_SEED_FILE",
					Destination: &seedFile,
				},
				cli.BoolFlag{
					Name:        "watch",
					Usage:       "Re-apply the seed file whenever it changes",
					Destination: &watchSeed,
				},
			},
			Action: func(c *cli.Context) error {
				if baseURL == "" {
					baseURL = localURL(port, false)
				}
				s, err := newStubs(strings.TrimRight(baseURL, "/"), seedFile)
				if err != nil {
					return err
				}
				if watchSeed && seedFile != "" {
					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()
					go func() {
						if err := s.WatchSeedFile(ctx, seedFile); err != nil {
							log.API.Error(err)
						}
					}()
				}
				fmt.Fprintf(app.Writer, "Starting upstream stubs on %s...\n", port)
				return listenAndServe(newServer(stubs.NewRouter(s), "STUBS"), port)
			},
		},
		{
			Name:  "validate-nhs-number",
			Usage: "Check an NHS number's format and check digit",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "nhs-number",
					Usage:       "NHS number to validate; spaces are ignored",
					Destination: &nhsNumber,
				},
			},
			Action: func(c *cli.Context) error {
				if nhsNumber == "" {
					nhsNumber = c.Args().First()
				}
				msg, err := validateNHSNumber(nhsNumber)
				if err != nil {
					return err
				}
				fmt.Fprintln(app.Writer, msg)
				return nil
			},
		},
	}
	return app
}

func validateNHSNumber(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", errors.New("an NHS number is required")
	}
	nhsNumber, err := utils.CoerceNHSNumber(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s is a valid NHS number", nhsNumber), nil
}

// useLocalStubs points every upstream at the stubs served from addr and
// returns the stubs router. Over TLS the gateway's own certificate is trusted
// for those calls unless a CA is already configured.
func useLocalStubs(cfg *service.Config, addr string) http.Handler {
	secure := !conf.GetEnvBool("HTTP_ONLY", false)
	base := localURL(addr, secure)
	if secure && cfg.CAFile == "" {
		cfg.CAFile = conf.GetEnv("GATEWAY_TLS_CERT")
	}
	cfg.PDSBaseURL = base + stubs.PDSPrefix
	cfg.SDSBaseURL = base + stubs.SDSPrefix
	if cfg.SDSAPIKey == "" {
		cfg.SDSAPIKey = "local"
	}
	return stubs.NewRouter(stubs.New(base))
}

func newStubs(baseURL, seedFile string) (*stubs.Stubs, error) {
	s := stubs.New(baseURL)
	if seedFile == "" {
		return s, nil
	}
	if err := s.ApplySeedFile(seedFile); err != nil {
		return nil, err
	}
	return s, nil
}

func localURL(addr string, secure bool) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return scheme + "://" + host
}

func newServer(handler http.Handler, prefix string) *http.Server {
	return &http.Server{
		Handler:      handler,
		ReadTimeout:  time.Duration(conf.GetEnvInt(prefix+"_READ_TIMEOUT", 10)) * time.Second,
		WriteTimeout: time.Duration(conf.GetEnvInt(prefix+"_WRITE_TIMEOUT", 30)) * time.Second,
		IdleTimeout:  time.Duration(conf.GetEnvInt(prefix+"_IDLE_TIMEOUT", 120)) * time.Second,
	}
}

func listenAndServe(srv *http.Server, addr string) error {
	srv.Addr = addr
	go closeOnSignal(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return ignoreClosed(srv.ListenAndServe())
}

func closeOnSignal(closeFn func() error) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	signal.Stop(sigs)

	log.API.Infof("Received %s, shutting down", sig)
	if err := closeFn(); err != nil {
		log.API.Error(err)
	}
}

func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) || strings.Contains(err.Error(), "use of closed network connection") {
		return nil
	}
	return err
}
