// Package balloon implements the pluggable reporter (ballooning-driver
// stand-in) against pagereport's Reporter Driver Interface: it batches
// reported extents and ships them over a QUIC stream to an
// internal/collector instance, per SPEC_FULL.md §6.
package balloon

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/vmguest/pagereporting/internal/collector"
	"github.com/vmguest/pagereporting/internal/pagereport"
)

// Client dials a collector once and ships every subsequent batch over a
// fresh QUIC stream on that connection. Its React method satisfies
// pagereport.Device.React's signature.
type Client struct {
	addr    string
	tlsConf *tls.Config
	logger  *log.Logger

	mu   sync.Mutex
	conn *quic.Conn
}

// NewClient builds a Client that will dial addr lazily on the first React
// call. A nil logger discards log output.
func NewClient(addr string, tlsConf *tls.Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Client{addr: addr, tlsConf: tlsConf, logger: logger}
}

// InsecureClientTLSConfig returns a *tls.Config that skips server
// certificate verification, matching GenerateTLSConfig's self-signed
// certificate on the collector side. Reference transport only: a real
// reporter backend supplies a TLS config that actually verifies its peer.
func InsecureClientTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true, NextProtos: []string{collector.ALPN}}
}

// React implements the Reporter Driver Interface's callback: it opens a
// stream, writes every entry as (PFN uint64, Order uint8) in order, and
// closes the stream so the collector's read loop observes EOF. Connection
// setup happens on first use and is reused by subsequent calls; a dial or
// write failure is logged and swallowed, since the Reporter Driver
// Interface gives React no error return and a dropped batch is simply a
// delayed hint, not a correctness issue (spec.md §7 surfaces errors only
// from Startup/Shutdown).
func (c *Client) React(batch *pagereport.Batch) {
	conn, err := c.connection()
	if err != nil {
		c.logger.Printf("balloon: %v", err)

		return
	}

	stream, err := conn.OpenStreamSync(context.Background())
	if err != nil {
		c.logger.Printf("balloon: open stream: %v", err)
		c.invalidate(conn)

		return
	}

	for _, e := range batch.Entries() {
		if err := binary.Write(stream, binary.BigEndian, e.PFN); err != nil {
			c.logger.Printf("balloon: write pfn: %v", err)
			_ = stream.Close()

			return
		}

		if err := binary.Write(stream, binary.BigEndian, uint8(e.Order)); err != nil {
			c.logger.Printf("balloon: write order: %v", err)
			_ = stream.Close()

			return
		}
	}

	_ = stream.Close()
}

func (c *Client) connection() (*quic.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := quic.DialAddr(context.Background(), c.addr, c.tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("balloon: dial %s: %w", c.addr, err)
	}

	c.conn = conn

	return conn, nil
}

// invalidate drops a cached connection that just failed, so the next React
// call redials instead of reusing a dead connection.
func (c *Client) invalidate(bad *quic.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == bad {
		c.conn = nil
	}
}

// Close closes the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.CloseWithError(0, "balloon client closing")
	c.conn = nil

	return err
}
