package server

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydradns/internal/dns"
)

// dohContentType is the media type required by RFC 8484 for both the POST
// body and the GET response.
const dohContentType = "application/dns-message"

// DoHServer implements DNS-over-HTTPS (RFC 8484) using the same Gin stack as
// the management API: POST carries the raw wire-format query as the request
// body, GET carries it base64url-encoded in the "dns" query parameter.
type DoHServer struct {
	Logger   *slog.Logger
	Handler  *QueryHandler
	CertFile string // empty serves plain HTTP, for use behind a TLS-terminating proxy
	KeyFile  string

	httpServer *http.Server
}

func (s *DoHServer) engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST("/dns-query", s.handlePost)
	engine.GET("/dns-query", s.handleGet)

	return engine
}

// Run starts the DoH listener and blocks until ctx is cancelled or the
// listener fails.
func (s *DoHServer) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.CertFile != "" && s.KeyFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.CertFile, s.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop(5 * time.Second)
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down the HTTP server, waiting up to timeout for
// in-flight requests.
func (s *DoHServer) Stop(timeout time.Duration) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *DoHServer) handlePost(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, dns.MaxIncomingDNSMessageSize))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	s.respond(c, body)
}

func (s *DoHServer) handleGet(c *gin.Context) {
	encoded := c.Query("dns")
	if encoded == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	s.respond(c, body)
}

func (s *DoHServer) respond(c *gin.Context, reqBytes []byte) {
	if s.Handler == nil || len(reqBytes) == 0 {
		c.Status(http.StatusBadRequest)
		return
	}

	remoteIP := c.ClientIP()
	res := s.Handler.Handle(c.Request.Context(), "doh", remoteIP, reqBytes)
	if len(res.ResponseBytes) == 0 {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, dohContentType, res.ResponseBytes)
}
