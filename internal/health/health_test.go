package health

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/0xReLogic/fliphash-lb/internal/pool"
)

func addListeningBackend(t *testing.T, p *pool.Pool) (pool.Backend, net.Listener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	b := pool.Backend{Host: host, Port: uint16(port)}
	p.Add(b)
	return b, ln
}

func TestChecker_ProbeSuccessKeepsBackend(t *testing.T) {
	p := pool.New()
	b, ln := addListeningBackend(t, p)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			io.ReadAll(conn)
		}
		close(accepted)
	}()

	c := New(p, time.Second, 500*time.Millisecond, true, nil)
	c.sweep(context.Background())

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("backend never accepted a probe connection")
	}

	snap := p.Snapshot()
	if len(snap) != 1 || snap[0] != b {
		t.Fatalf("expected backend to remain, got %v", snap)
	}
}

func TestChecker_ProbeFailureReaps(t *testing.T) {
	p := pool.New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	b := pool.Backend{Host: host, Port: uint16(port)}
	p.Add(b)
	ln.Close() // nothing listens anymore

	c := New(p, time.Second, 200*time.Millisecond, false, nil)
	c.sweep(context.Background())

	if got := len(p.Snapshot()); got != 0 {
		t.Fatalf("expected unreachable backend to be reaped, got %d backends", got)
	}
}

func TestChecker_ProbeFrameShape(t *testing.T) {
	p := pool.New()
	_, ln := addListeningBackend(t, p)
	defer ln.Close()

	frame := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var n uint16
		if err := binary.Read(conn, binary.BigEndian, &n); err != nil {
			return
		}
		buf := make([]byte, n)
		io.ReadFull(conn, buf)
		frame <- buf
	}()

	c := New(p, time.Second, 500*time.Millisecond, true, nil)
	c.sweep(context.Background())

	select {
	case got := <-frame:
		if string(got) != probeFrame {
			t.Fatalf("got probe frame %q, want %q", got, probeFrame)
		}
	case <-time.After(time.Second):
		t.Fatal("never received probe frame")
	}
}

func TestChecker_RunStopsOnContextCancel(t *testing.T) {
	p := pool.New()
	c := New(p, 10*time.Millisecond, 10*time.Millisecond, false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
