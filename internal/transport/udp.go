// Package transport owns the outbound datagram endpoint that carries encoded
// bands. Delivery is best effort: there is no acknowledgement or retry.
package transport

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ErrNotConnected is returned by Send before Connect has fixed a destination.
var ErrNotConnected = errors.New("endpoint has no destination")

// ErrClosed is returned by operations on a closed endpoint.
var ErrClosed = errors.New("endpoint closed")

// Endpoint is a bound UDP socket with a default destination.
type Endpoint struct {
	conn *net.UDPConn

	mu     sync.Mutex
	target *net.UDPAddr
	closed bool
}

// Open binds a UDP socket on bindHost with an ephemeral port.
func Open(bindHost string) (*Endpoint, error) {
	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(bindHost, "0"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address %q: %w", bindHost, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", laddr, err)
	}

	return &Endpoint{conn: conn}, nil
}

// Dial opens an endpoint on bindHost and connects it to host:port.
func Dial(bindHost, host string, port int) (*Endpoint, error) {
	ep, err := Open(bindHost)
	if err != nil {
		return nil, err
	}
	if err := ep.Connect(host, port); err != nil {
		ep.Close()
		return nil, err
	}
	return ep, nil
}

// Connect fixes the default destination. It does not contact the peer.
func (e *Endpoint) Connect(host string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid target port %d", port)
	}

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to resolve target %s:%d: %w", host, port, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.target = raddr
	return nil
}

// Send encodes pkt and writes it to the connected destination as one datagram.
func (e *Endpoint) Send(ctx context.Context, pkt encoding.BinaryMarshaler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	target, closed := e.target, e.closed
	e.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if target == nil {
		return ErrNotConnected
	}

	data, err := pkt.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}

	if _, err := e.conn.WriteToUDP(data, target); err != nil {
		return fmt.Errorf("failed to send to %s: %w", target, err)
	}
	return nil
}

// LocalAddr returns the bound address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Close releases the socket. Closing twice is a no-op.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.conn.Close()
}
