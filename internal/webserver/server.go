// Package webserver hosts the HTTP API, the viewer websocket, and the
// browser terminal bridge for a running overseer daemon.
package webserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/overseer-cli/overseer/internal/debug"
	"github.com/overseer-cli/overseer/internal/hub"
	"github.com/overseer-cli/overseer/internal/proc"
)

// Options configures web server behavior.
type Options struct {
	Host      string
	Port      int
	TLSMode   string // "", "self-signed", or "custom"
	CertFile  string
	KeyFile   string
	AuthToken string
	RateLimit float64 // requests per second, 0 disables
	WorkDir   string  // default working directory for new sessions
}

// Server hosts the HTTP API and the websocket session bridge.
type Server struct {
	hub      *hub.Hub
	procs    *proc.Manager
	registry *ConnRegistry

	httpServer *http.Server
	host       string
	port       int
	tlsMode    string
	certFile   string
	keyFile    string
	authToken  string
	rateLimit  float64
	workDir    string
}

// New constructs a web server over the given hub and process manager. The
// registry must be the hub's sink so snapshots reach subscribed connections.
func New(h *hub.Hub, procs *proc.Manager, registry *ConnRegistry, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}

	srv := &Server{
		hub:       h,
		procs:     procs,
		registry:  registry,
		host:      host,
		port:      port,
		tlsMode:   strings.TrimSpace(opts.TLSMode),
		certFile:  strings.TrimSpace(opts.CertFile),
		keyFile:   strings.TrimSpace(opts.KeyFile),
		authToken: strings.TrimSpace(opts.AuthToken),
		rateLimit: opts.RateLimit,
		workDir:   opts.WorkDir,
	}

	mux := http.NewServeMux()
	srv.setupRoutes(mux)

	handler := corsMiddleware(logMiddleware(rateLimitMiddleware(srv.rateLimit, authMiddleware(srv.authToken, mux))))
	srv.httpServer = &http.Server{
		Addr:              srv.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Start starts the server in a background goroutine and returns immediately.
func (srv *Server) Start() error {
	if srv.httpServer == nil {
		return fmt.Errorf("webserver not initialized")
	}

	if srv.tlsMode != "" {
		var cert tls.Certificate
		var err error

		switch srv.tlsMode {
		case "self-signed":
			cert, err = generateSelfSignedCert(srv.host)
			if err != nil {
				return fmt.Errorf("generating self-signed certificate: %w", err)
			}
		case "custom":
			cert, err = tls.LoadX509KeyPair(srv.certFile, srv.keyFile)
			if err != nil {
				return fmt.Errorf("loading TLS certificate: %w", err)
			}
		default:
			return fmt.Errorf("unsupported TLS mode: %q", srv.tlsMode)
		}

		srv.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		srv.port = tcpAddr.Port
		srv.httpServer.Addr = srv.Addr()
	}

	go func() {
		var err error
		if srv.tlsMode != "" {
			err = srv.httpServer.ServeTLS(ln, "", "")
		} else {
			err = srv.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.LogKV("webserver", "server stopped with error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpServer == nil {
		return nil
	}
	return srv.httpServer.Shutdown(ctx)
}

// Addr returns the bound host:port address.
func (srv *Server) Addr() string {
	return net.JoinHostPort(srv.host, strconv.Itoa(srv.port))
}

// Scheme returns the URL scheme for the running server.
func (srv *Server) Scheme() string {
	if srv.tlsMode != "" {
		return "https"
	}
	return "http"
}

func (srv *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", srv.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", srv.handleSessionByID)
	mux.HandleFunc("POST /api/sessions/{id}/messages", srv.handleSessionMessage)
	mux.HandleFunc("POST /api/sessions/{id}/stop", srv.handleSessionStop)
	mux.HandleFunc("POST /api/sessions/{id}/interrupt", srv.handleSessionInterrupt)

	mux.HandleFunc("GET /ws", srv.handleViewerWebSocket)
	mux.HandleFunc("GET /ws/terminal", srv.handleTerminalWebSocket)

	mux.HandleFunc("GET /api/{rest...}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}
