// Package health runs the periodic liveness sweep described in spec
// §4.5: every tick, every registered backend gets a bounded TCP probe,
// and any backend that fails the probe is reaped from the pool.
package health

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	"github.com/0xReLogic/fliphash-lb/internal/logging"
	"github.com/0xReLogic/fliphash-lb/internal/metrics"
	"github.com/0xReLogic/fliphash-lb/internal/pool"
)

const probeFrame = "health check"

// Checker periodically probes every backend in a pool and removes the
// ones that fail to respond.
type Checker struct {
	pool      *pool.Pool
	interval  time.Duration
	timeout   time.Duration
	sendProbe bool
	dial      func(network, address string, timeout time.Duration) (net.Conn, error)
	metrics   *metrics.Collector
}

// New creates a Checker. interval and timeout default to the §6
// constants (3s / 1s) when zero or negative. collector may be nil.
func New(p *pool.Pool, interval, timeout time.Duration, sendProbe bool, collector *metrics.Collector) *Checker {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Checker{
		pool:      p,
		interval:  interval,
		timeout:   timeout,
		sendProbe: sendProbe,
		dial:      net.DialTimeout,
		metrics:   collector,
	}
}

// Run blocks, sweeping the pool every interval until ctx is canceled.
// Probes run sequentially within a tick, per spec §4.5 ("acceptable at
// pool sizes <= ~100").
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Checker) sweep(ctx context.Context) {
	for _, b := range c.pool.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		if !c.probe(b) {
			logging.L().Warn().Str("backend", b.ID()).Msg("backend failed liveness probe, reaping")
			if c.metrics != nil {
				c.metrics.RecordReap()
			}
			c.pool.Remove(b)
		}
	}
}

// probe attempts a TCP connect within the configured timeout and,
// if requested, writes the length-prefixed liveness frame. A failed
// connect means the backend is dead; a failed write after a successful
// connect still counts the backend as alive, since connect already
// established reachability (spec §4.5).
func (c *Checker) probe(b pool.Backend) bool {
	conn, err := c.dial("tcp", b.ID(), c.timeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	if c.sendProbe {
		_ = conn.SetWriteDeadline(time.Now().Add(c.timeout))
		_ = writeUTFFrame(conn, probeFrame)
	}
	return true
}

func writeUTFFrame(conn net.Conn, s string) error {
	b := []byte(s)
	if err := binary.Write(conn, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := conn.Write(b)
	return err
}
