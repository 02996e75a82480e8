// Package listener runs the three accept loops named in spec §4.3:
// the client listener (handed to the dispatcher), the registration
// listener, and the metrics listener. Each loop owns one net.Listener
// and hands every accepted connection to a fresh goroutine so a single
// slow peer can never stall accept (spec §5).
package listener

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/0xReLogic/fliphash-lb/internal/logging"
	"github.com/0xReLogic/fliphash-lb/internal/pool"
)

// ClientHandler processes one accepted client connection. The
// dispatcher package supplies the real implementation; it is injected
// here so listener has no import-time dependency on dispatcher.
type ClientHandler func(conn net.Conn)

// Registration runs the registration accept loop: each connection is
// expected to carry exactly one line "host:port", which is parsed and
// added to p. Malformed lines are discarded silently (spec §6).
func Registration(ctx context.Context, ln net.Listener, p *pool.Pool) {
	runAcceptLoop(ctx, ln, "registration", func(conn net.Conn) {
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()

		b, ok := pool.ParseBackendID(line)
		if !ok {
			logging.L().Warn().Str("line", line).Msg("discarding malformed registration line")
			return
		}
		if p.Add(b) {
			logging.L().Info().Str("backend", b.ID()).Msg("backend registered")
		}
	})
}

// metricsLine is the subset of a pushed metrics record the load
// balancer inspects; all other fields are opaque and forwarded
// verbatim via the raw blob stored in pool.MetricsStore.
type metricsLine struct {
	BackendID string `json:"backendId"`
}

// Metrics runs the metrics accept loop: each connection carries
// newline-delimited JSON records until EOF. Lines without a parseable
// backendId field are discarded (spec §6); a well-formed line updates
// the pool's metrics store and auto-registers an unknown backend.
func Metrics(ctx context.Context, ln net.Listener, p *pool.Pool) {
	runAcceptLoop(ctx, ln, "metrics", func(conn net.Conn) {
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}

			var line metricsLine
			if err := json.Unmarshal(raw, &line); err != nil || line.BackendID == "" {
				logging.L().Warn().Err(err).Msg("discarding malformed metrics line")
				continue
			}

			blob := make(json.RawMessage, len(raw))
			copy(blob, raw)
			p.SetMetrics(line.BackendID, blob)
		}
	})
}

// Client runs the client accept loop, handing every accepted
// connection to handle. The dispatcher's proxying happens entirely
// inside handle, off the accept loop's goroutine.
func Client(ctx context.Context, ln net.Listener, handle ClientHandler) {
	runAcceptLoop(ctx, ln, "client", handle)
}

// runAcceptLoop accepts connections from ln until ctx is canceled or
// the listener is closed, dispatching each to its own goroutine.
// Accept errors are logged and the loop continues, per spec §7; a
// closed listener ends the loop without logging an error for the
// expected shutdown case.
func runAcceptLoop(ctx context.Context, ln net.Listener, name string, handle func(net.Conn)) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			logging.L().Error().Err(err).Str("listener", name).Msg("accept error")
			continue
		}
		go handle(conn)
	}
}
