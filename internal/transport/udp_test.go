package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type rawPacket []byte

func (p rawPacket) MarshalBinary() ([]byte, error) { return p, nil }

type failingPacket struct{}

func (failingPacket) MarshalBinary() ([]byte, error) { return nil, errors.New("boom") }

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSendDeliversDatagram(t *testing.T) {
	rx := listen(t)
	port := rx.LocalAddr().(*net.UDPAddr).Port

	ep, err := Dial("127.0.0.1", "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ep.Close()

	if err := ep.Send(context.Background(), rawPacket("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	rx.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := rx.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected hello, got %q", buf[:n])
	}
}

func TestSendBeforeConnect(t *testing.T) {
	ep, err := Open("127.0.0.1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ep.Close()

	if err := ep.Send(context.Background(), rawPacket("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	rx := listen(t)
	ep, err := Dial("127.0.0.1", "127.0.0.1", rx.LocalAddr().(*net.UDPAddr).Port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := ep.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ep.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := ep.Send(context.Background(), rawPacket("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSendEncodeError(t *testing.T) {
	rx := listen(t)
	ep, err := Dial("127.0.0.1", "127.0.0.1", rx.LocalAddr().(*net.UDPAddr).Port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ep.Close()

	if err := ep.Send(context.Background(), failingPacket{}); err == nil {
		t.Fatal("expected encode error")
	}
}

func TestSendCancelledContext(t *testing.T) {
	rx := listen(t)
	ep, err := Dial("127.0.0.1", "127.0.0.1", rx.LocalAddr().(*net.UDPAddr).Port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ep.Send(ctx, rawPacket("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConnectRejectsBadPort(t *testing.T) {
	ep, err := Open("127.0.0.1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ep.Close()

	for _, port := range []int{0, -1, 70000} {
		if err := ep.Connect("127.0.0.1", port); err == nil {
			t.Errorf("expected error for port %d", port)
		}
	}
	if err := ep.Send(context.Background(), rawPacket("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after failed connects, got %v", err)
	}
}

func TestOpenBadBindHost(t *testing.T) {
	if _, err := Open("256.256.256.256"); err == nil {
		t.Fatal("expected error for invalid bind host")
	}
}
