package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/jroosing/hydradns/internal/dns"
)

// NextProtoDoQ is the ALPN token DNS-over-QUIC clients and servers negotiate
// (RFC 9250 section 7.1).
const NextProtoDoQ = "doq"

// doqIdleTimeout bounds how long a QUIC connection may sit without activity
// before quic-go tears it down.
const doqIdleTimeout = 30 * time.Second

// DoQServer implements DNS-over-QUIC (RFC 9250). Each query arrives on its
// own client-initiated bidirectional stream; unlike DNS-over-TCP, no 2-byte
// length prefix is used, since the QUIC stream itself delimits the message
// (the client half-closes its send side once the query is written).
type DoQServer struct {
	Logger    *slog.Logger
	Handler   *QueryHandler
	TLSConfig *tls.Config

	listener *quic.Listener
	wg       sync.WaitGroup
}

// Run starts the DoQ listener and blocks until ctx is cancelled or the
// listener fails.
func (s *DoQServer) Run(ctx context.Context, addr string) error {
	if s.TLSConfig == nil {
		return errors.New("doq server: no TLS configuration")
	}

	tlsConf := s.TLSConfig.Clone()
	tlsConf.NextProtos = []string{NextProtoDoQ}

	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		MaxIdleTimeout: doqIdleTimeout,
	})
	if err != nil {
		return err
	}
	s.listener = ln

	s.wg.Go(func() {
		s.acceptLoop(ctx, ln)
	})

	<-ctx.Done()
	return s.Stop(5 * time.Second)
}

func (s *DoQServer) acceptLoop(ctx context.Context, ln *quic.Listener) {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			return
		}
		c := conn
		s.wg.Go(func() {
			s.handleConnection(ctx, c)
		})
	}
}

func (s *DoQServer) handleConnection(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		st := stream
		s.wg.Go(func() {
			s.handleStream(ctx, conn, st)
		})
	}
}

// handleStream reads a single query from a QUIC stream, resolves it, writes
// the response, and closes the stream. One stream serves exactly one
// query/response exchange (RFC 9250 section 4.2).
func (s *DoQServer) handleStream(ctx context.Context, conn *quic.Conn, stream *quic.Stream) {
	defer stream.Close()

	msg, err := io.ReadAll(io.LimitReader(stream, dns.MaxIncomingDNSMessageSize))
	if err != nil || len(msg) == 0 {
		return
	}

	if s.Handler == nil {
		return
	}

	remoteIP := remoteIPString(conn.RemoteAddr())
	res := s.Handler.Handle(ctx, "doq", remoteIP, msg)
	if len(res.ResponseBytes) == 0 {
		return
	}

	_, _ = stream.Write(res.ResponseBytes)
}

// Stop closes the listener and waits up to timeout for in-flight streams to
// finish.
func (s *DoQServer) Stop(timeout time.Duration) error {
	if s.listener != nil {
		_ = s.listener.Close()
	}

	if timeout <= 0 {
		s.wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("doq server: timeout waiting for connections")
	}
}
