// Command backend is a toy worker implementing the load balancer's
// external contracts (spec §6): it registers itself, pushes metrics,
// and serves the client upload/response protocol. It treats the
// liveness probe frame as a no-op, never executing anything it
// receives — this fixture has nothing to execute.
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/0xReLogic/fliphash-lb/internal/config"
	"github.com/0xReLogic/fliphash-lb/internal/logging"
)

const probeFrame = "health check"

func main() {
	port := flag.Int("port", 7001, "Port this backend listens on")
	registrationAddr := flag.String("registration", "127.0.0.1:6001", "Load balancer registration address")
	metricsAddr := flag.String("metrics", "127.0.0.1:6003", "Load balancer metrics address")
	metricsPeriod := flag.Duration("metrics-period", 10*time.Second, "Metrics push interval")
	flag.Parse()

	logging.Init(config.Default().Logging)
	logger := logging.L()

	selfAddr := fmt.Sprintf("127.0.0.1:%d", *port)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		logger.Fatal().Err(err).Int("port", *port).Msg("backend failed to bind")
	}
	defer ln.Close()

	if err := register(*registrationAddr, selfAddr); err != nil {
		logger.Warn().Err(err).Str("registration", *registrationAddr).Msg("initial registration failed, relying on first metrics push")
	} else {
		logger.Info().Str("self", selfAddr).Msg("registered with load balancer")
	}

	go pushMetricsLoop(*metricsAddr, selfAddr, *metricsPeriod)

	logger.Info().Int("port", *port).Msg("backend listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Error().Err(err).Msg("accept error")
			continue
		}
		go handleSession(conn)
	}
}

func register(registrationAddr, selfAddr string) error {
	conn, err := net.DialTimeout("tcp", registrationAddr, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = fmt.Fprintf(conn, "%s\n", selfAddr)
	return err
}

func pushMetricsLoop(metricsAddr, selfAddr string, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for range ticker.C {
		pushOnce(metricsAddr, selfAddr)
	}
}

func pushOnce(metricsAddr, selfAddr string) {
	conn, err := net.DialTimeout("tcp", metricsAddr, 2*time.Second)
	if err != nil {
		logging.L().Warn().Err(err).Msg("metrics push dial failed")
		return
	}
	defer conn.Close()

	record := map[string]interface{}{
		"backendId":   selfAddr,
		"cpuLoad":     rand.Float64(),
		"memoryUsage": rand.Float64(),
		"clientCount": rand.Intn(10),
	}
	enc := json.NewEncoder(conn)
	if err := enc.Encode(record); err != nil {
		logging.L().Warn().Err(err).Msg("metrics push encode failed")
	}
}

// handleSession implements the client protocol from spec §6: a
// length-prefixed UTF string, an 8-byte size, and a payload, answered
// with a length-prefixed UTF response. A probe connection (the health
// checker's liveness frame, or a bare connect-and-close) is detected
// by peeking that first frame and is treated as a no-op.
func handleSession(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	first, err := readUTFFrame(reader)
	if err != nil {
		return // probe connect-and-close, or malformed peer; nothing to do
	}
	if first == probeFrame {
		return
	}

	fileName := first
	var size int64
	if err := binary.Read(reader, binary.BigEndian, &size); err != nil {
		return
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return
	}

	output := fmt.Sprintf("processed %s (%d bytes)", fileName, len(payload))
	_ = writeUTFFrame(conn, output)
}

func readUTFFrame(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeUTFFrame(w io.Writer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
