// Package collector is the hypervisor-side stand-in: it accepts QUIC
// connections from internal/balloon and decodes the reported page extents
// each guest ships, per SPEC_FULL.md §6 ("Reference reporter transport").
package collector

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net"

	"github.com/quic-go/quic-go"
)

// ALPN is the QUIC/TLS next-protocol identifier the balloon client and
// collector server negotiate; any mismatch fails the handshake.
const ALPN = "pagereport-batch/1"

// Extent is one reported page range received from a guest, decoded off the
// wire as (PFN uint64, Order uint8).
type Extent struct {
	PFN   uint64
	Order uint8
}

// Handler is invoked once per decoded Extent, on the goroutine reading that
// stream. A slow Handler only backs up its own connection's flow control.
type Handler func(remote net.Addr, e Extent)

// Server accepts QUIC connections on an address and decodes reported
// extents from every stream a connected guest opens.
type Server struct {
	addr    string
	tlsConf *tls.Config
	handle  Handler
	logger  *log.Logger

	listener *quic.Listener
}

// NewServer builds a Server. A nil logger discards log output.
func NewServer(addr string, tlsConf *tls.Config, handle Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Server{addr: addr, tlsConf: tlsConf, handle: handle, logger: logger}
}

// Serve listens on the server's address and blocks accepting connections
// until ctx is canceled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := quic.ListenAddr(s.addr, s.tlsConf, nil)
	if err != nil {
		return fmt.Errorf("collector: listen %s: %w", s.addr, err)
	}

	s.listener = ln
	defer ln.Close()

	s.logger.Printf("collector: listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("collector: accept: %w", err)
		}

		go s.handleConn(ctx, conn)
	}
}

// Addr returns the listener's bound address. Valid only once Serve has
// started listening; used by tests and the demo CLI to discover an
// ephemeral port (":0").
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

func (s *Server) handleConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}

		go s.handleStream(remote, stream)
	}
}

// handleStream decodes a back-to-back sequence of (PFN, Order) pairs until
// the guest closes its side of the stream.
func (s *Server) handleStream(remote net.Addr, stream *quic.Stream) {
	defer stream.Close()

	for {
		var e Extent

		if err := binary.Read(stream, binary.BigEndian, &e.PFN); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Printf("collector: decode pfn from %s: %v", remote, err)
			}

			return
		}

		if err := binary.Read(stream, binary.BigEndian, &e.Order); err != nil {
			s.logger.Printf("collector: decode order from %s: %v", remote, err)

			return
		}

		s.handle(remote, e)
	}
}

// GenerateTLSConfig produces a throwaway self-signed certificate for the
// collector's QUIC listener. This is a reference transport for the
// reporting subsystem's demo/test harness, not a production PKI: real
// deployments supply their own *tls.Config.
func GenerateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("collector: generate key: %w", err)
	}

	template := x509.Certificate{SerialNumber: big.NewInt(1)}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("collector: create certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("collector: load keypair: %w", err)
	}

	return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{ALPN}}, nil
}
