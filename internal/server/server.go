// Package server exposes a host environment over HTTP: health and metrics,
// the committed controller state, persisted emergency events, and an invoke
// endpoint that accepts JSON or binary frames.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/reservectl/internal/auth"
	"github.com/danmuck/reservectl/internal/host"
	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/observability"
	"github.com/danmuck/reservectl/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// History is the read side of the persistence layer.
type History interface {
	ListEvents(ctx context.Context, limit int) ([]ledger.EmergencyEvent, error)
	ListInvocations(ctx context.Context, after int64, limit int) ([]store.Invocation, error)
}

type Server struct {
	ID       string    `json:"id"`
	Addr     string    `json:"addr"`
	Appeared time.Time `json:"appeared"`

	env     *host.Environment
	history History
	guard   auth.Validator
	tls     *tls.Config
	router  *gin.Engine
}

func New(id, addr string, corsOrigins []string, env *host.Environment, history History) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.Logger(id)))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		env:      env,
		history:  history,
		router:   r,
	}
}

// RequireToken guards POST /invoke with a bearer token. Call before
// RegisterRoutes. Without a token /invoke stays open but signer flags in the
// request are ignored, so initialize, parameter updates and the authority
// emergency opcodes are unreachable over HTTP.
func (s *Server) RequireToken(token string) {
	if token == "" {
		s.guard = nil
		return
	}
	s.guard = auth.StaticToken{Token: token}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// UseTLS loads a certificate pair; Serve then listens with TLS.
func (s *Server) UseTLS(certFile, keyFile string) error {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("server: load tls pair: %w", err)
	}
	s.tls = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{pair},
	}
	return nil
}

// TLSConfig is nil unless UseTLS succeeded.
func (s *Server) TLSConfig() *tls.Config {
	return s.tls
}

func (s *Server) Serve() error {
	s.RegisterRoutes()
	log.Info().Msgf("server.Server.Serve listening id=%s addr=%s tls=%t", s.ID, s.Addr, s.tls != nil)
	if s.guard == nil {
		log.Warn().Msgf("server.Server.Serve no admin_token configured id=%s; signer flags on /invoke are ignored", s.ID)
	}
	if s.tls == nil {
		return s.router.Run(s.Addr)
	}
	hs := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		TLSConfig:         s.tls,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return hs.ListenAndServeTLS("", "")
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
