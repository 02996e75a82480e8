// Package dispatcher implements the per-client proxy session described
// in spec §4.4: pick a backend via FlipHash placement, dial it, write
// the client's acknowledgement line, then pipe bytes bidirectionally
// with correct half-close semantics until both directions see EOF.
package dispatcher

import (
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xReLogic/fliphash-lb/internal/logging"
	"github.com/0xReLogic/fliphash-lb/internal/metrics"
	"github.com/0xReLogic/fliphash-lb/internal/placement"
	"github.com/0xReLogic/fliphash-lb/internal/pool"
)

const (
	noBackendMessage = "No backend server available\n"
	okMessage        = "OK\n"
)

// Dispatcher holds everything one client session needs: the shared
// pool to snapshot and mutate, and the tunables that control dialing
// and the pipe buffer size.
type Dispatcher struct {
	pool        *pool.Pool
	dialTimeout time.Duration
	bufferSize  int
	metrics     *metrics.Collector
}

// New creates a Dispatcher. dialTimeout and bufferSize default to the
// §6 constants when zero. collector may be nil, in which case session
// counters are simply not recorded.
func New(p *pool.Pool, dialTimeout time.Duration, bufferSize int, collector *metrics.Collector) *Dispatcher {
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &Dispatcher{pool: p, dialTimeout: dialTimeout, bufferSize: bufferSize, metrics: collector}
}

func (d *Dispatcher) record(f func(*metrics.Collector)) {
	if d.metrics != nil {
		f(d.metrics)
	}
}

// Handle runs one client session to completion. It never returns an
// error to the caller: all failures are logged and the session simply
// ends, per spec §7 ("nothing is retried inside the load balancer").
func (d *Dispatcher) Handle(client net.Conn) {
	defer client.Close()

	logger := logging.L()
	d.record((*metrics.Collector).RecordSession)

	clientKey, err := peerIP(client)
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine client IP, dropping session")
		return
	}

	// Step 2: snapshot the pool. An empty pool is reported to the
	// client and the session ends immediately.
	snap := d.pool.Snapshot()
	if len(snap) == 0 {
		d.record((*metrics.Collector).RecordNoBackend)
		_, _ = io.WriteString(client, noBackendMessage)
		return
	}

	// Step 3: FlipHash placement, reduced modulo n as a safety net —
	// redundant given the algorithm's range contract, but cheap.
	h := placement.FlipHashGeneral(clientKey, uint64(len(snap)))
	backend := snap[h%uint64(len(snap))]

	// Step 4: dial before writing OK, so a dial failure never leaves
	// the client believing a backend was selected.
	backendConn, err := net.DialTimeout("tcp", backend.ID(), d.dialTimeout)
	if err != nil {
		logger.Warn().Err(err).Str("backend", backend.ID()).Msg("dial failed, reaping backend")
		d.record((*metrics.Collector).RecordDialFailure)
		d.record((*metrics.Collector).RecordReap)
		d.pool.Remove(backend)
		return
	}
	defer backendConn.Close()

	// Step 5: acknowledge selection. This MUST precede any up-pipe
	// forwarding so the client cannot interleave its upload with the
	// acknowledgement read (spec §4.4's ordering guarantee).
	if _, err := io.WriteString(client, okMessage); err != nil {
		logger.Warn().Err(err).Str("backend", backend.ID()).Msg("failed to write OK to client")
		return
	}

	d.pipe(client, backendConn, logger.With().Str("backend", backend.ID()).Str("client", clientKey).Logger())
}

// pipe runs the up-pipe (client -> backend) and down-pipe
// (backend -> client) concurrently and waits for both to finish.
//
// The up-pipe half-closes the backend's write side on client EOF so
// the backend observes end-of-request without the connection being
// torn down out from under the down-pipe's still-pending response —
// the bug the spec's design notes call out in a naive
// close-both-on-first-EOF implementation.
//
// Dial failures reap the backend (handled above); a failure here may
// just as well be the client's fault, so it does not reap the backend
// (spec §4.4's failure semantics).
func (d *Dispatcher) pipe(client, backend net.Conn, logger zerolog.Logger) {
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, d.bufferSize)
		if _, err := io.CopyBuffer(backend, client, buf); err != nil {
			logger.Debug().Err(err).Msg("up-pipe ended")
		}
		halfClose(backend)
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, d.bufferSize)
		if _, err := io.CopyBuffer(client, backend, buf); err != nil {
			logger.Debug().Err(err).Msg("down-pipe ended")
		}
	}()

	<-done
	<-done
}

// halfClose shuts down the write side of conn if it supports it,
// leaving the read side open so the peer's still-in-flight response
// can be read by the down-pipe.
func halfClose(conn net.Conn) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := conn.(writeCloser); ok {
		_ = wc.CloseWrite()
	}
}

// peerIP extracts the client's remote IP address as a string,
// deliberately excluding the port (spec §3: "client key ... the
// peer's IP address as a string (not including port)"). This is
// acceptable per spec §9 even behind NAT, where multiple clients may
// share one IP and therefore one placement decision — documented
// there as an accepted limitation, not a bug.
func peerIP(conn net.Conn) (string, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return "", err
	}
	return host, nil
}
