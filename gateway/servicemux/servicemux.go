// Package servicemux serves several http.Servers from one listener, picking
// the server by URL prefix, over TLS unless HTTP_ONLY is set.
package servicemux

import (
	"bufio"
	"crypto/rand"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/conf"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/pkg/errors"
	"github.com/soheilhy/cmux"
)

const defaultKeepAliveSeconds = 60

type tcpKeepAliveListener struct {
	*net.TCPListener
	period time.Duration
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}

	if err = tc.SetKeepAlive(true); err != nil {
		return nil, err
	}
	if err = tc.SetKeepAlivePeriod(ln.period); err != nil {
		return nil, err
	}

	return tc, nil
}

func URLPrefixMatcher(prefix string) cmux.Matcher {
	return func(r io.Reader) bool {
		req, err := http.ReadRequest(bufio.NewReader(r))
		if err != nil {
			return false
		}
		return strings.HasPrefix(req.URL.Path, prefix)
	}
}

type route struct {
	server *http.Server
	prefix string
}

type ServiceMux struct {
	Addr      string
	Listener  net.Listener
	TLSConfig tls.Config

	routes []route
}

func New(addr string) (*ServiceMux, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "could not listen on %s", addr)
	}

	interval := conf.GetEnvInt("SERVICE_MUX_KEEP_ALIVE_INTERVAL", defaultKeepAliveSeconds)
	return &ServiceMux{
		Addr: addr,
		Listener: tcpKeepAliveListener{
			TCPListener: ln.(*net.TCPListener),
			period:      time.Duration(interval) * time.Second,
		},
	}, nil
}

// AddServer routes requests whose path starts with prefix to s. An empty
// prefix matches anything, so add it last.
func (sm *ServiceMux) AddServer(s *http.Server, prefix string) {
	sm.routes = append(sm.routes, route{server: s, prefix: prefix})
}

// Serve blocks until the listener is closed.
func (sm *ServiceMux) Serve() error {
	tlsCertPath := conf.GetEnv("GATEWAY_TLS_CERT")
	tlsKeyPath := conf.GetEnv("GATEWAY_TLS_KEY")

	// If HTTP_ONLY is unset or not a true boolean, assume HTTPS
	if conf.GetEnvBool("HTTP_ONLY", false) {
		return sm.serveHTTP()
	} else if tlsCertPath != "" && tlsKeyPath != "" {
		return sm.serveHTTPS(tlsCertPath, tlsKeyPath)
	}
	return errors.New("TLS certificate and key paths are required unless HTTP_ONLY is true")
}

func (sm *ServiceMux) serveHTTPS(tlsCertPath, tlsKeyPath string) error {
	certificate, err := tls.LoadX509KeyPair(tlsCertPath, tlsKeyPath)
	if err != nil {
		return errors.Wrap(err, "could not load TLS key pair")
	}

	sm.TLSConfig = tls.Config{
		Certificates: []tls.Certificate{certificate},
		Rand:         rand.Reader,
		CurvePreferences: []tls.CurveID{
			tls.CurveP256,
			tls.X25519,
		},
		MinVersion: tls.VersionTLS12,
	}

	sm.Listener = tls.NewListener(sm.Listener, &sm.TLSConfig)

	return sm.serveHTTP()
}

func (sm *ServiceMux) serveHTTP() error {
	m := cmux.New(sm.Listener)

	for _, rt := range sm.routes {
		var match net.Listener
		if rt.prefix == "" {
			match = m.Match(cmux.Any())
		} else {
			match = m.Match(URLPrefixMatcher(rt.prefix))
		}

		rt.server.TLSConfig = &sm.TLSConfig

		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed && err != cmux.ErrListenerClosed {
				log.API.Error(err)
			}
		}(rt.server, match)
	}

	return m.Serve()
}

func (sm *ServiceMux) Close() error {
	return sm.Listener.Close()
}

func IsHTTPS(r *http.Request) bool {
	srv, ok := r.Context().Value(http.ServerContextKey).(*http.Server)
	if !ok || srv.TLSConfig == nil {
		return false
	}
	return srv.TLSConfig.Certificates != nil
}
