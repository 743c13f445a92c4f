// Package mount drives a 10micron-style equatorial mount over its text
// protocol: a single TCP transport, the polling dispatcher that keeps a
// snapshot of the mount state, and the command helpers built on top.
package mount

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/unklstewy/mount-modeler/internal/logger"
)

const (
	// DefaultPort is the mount's command port.
	DefaultPort = 3492

	// DefaultTimeout bounds every socket read and write.
	DefaultTimeout = 60 * time.Second
)

var (
	// ErrNotConnected is returned when an operation needs the socket.
	ErrNotConnected = errors.New("mount not connected")

	// ErrConnectionLost wraps read/write failures; the transport is
	// disconnected when it is returned.
	ErrConnectionLost = errors.New("mount connection lost")
)

// Commander sends commands to a mount. Commands are given without the
// leading ':' and trailing '#'.
type Commander interface {
	// SendBlind writes a command that never replies.
	SendBlind(cmd string) error

	// SendString writes a command and returns its reply without terminator.
	SendString(cmd string) (string, error)

	// SendBatch writes all commands back to back and reads expected
	// '#'-terminated replies.
	SendBatch(cmds []string, expected int) ([]string, error)
}

// Link is a Commander with a connection lifecycle.
type Link interface {
	Commander
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
}

// blindCommands never produce a reply.
var blindCommands = map[string]bool{
	"AP":   true,
	"hP":   true,
	"PO":   true,
	"RT0":  true,
	"RT1":  true,
	"RT2":  true,
	"RT9":  true,
	"STOP": true,
	"U2":   true,
}

// IsBlind reports whether cmd is in the fixed no-reply set.
func IsBlind(cmd string) bool {
	return blindCommands[cmd]
}

// singleByteExact reply with one character and no terminator.
var singleByteExact = map[string]bool{
	"MA":       true,
	"MS":       true,
	"CMCFG0":   true,
	"FLIP":     true,
	"shutdown": true,
}

// singleBytePrefixes carry an argument after the verb.
var singleBytePrefixes = []string{"SRPRS", "SRTMP", "Sr", "Sd", "Sz", "Sa"}

func isSingleByte(cmd string) bool {
	if singleByteExact[cmd] {
		return true
	}
	for _, p := range singleBytePrefixes {
		if strings.HasPrefix(cmd, p) && len(cmd) > len(p) {
			return true
		}
	}
	return false
}

// Transport owns the TCP connection to the mount. All operations are
// serialized by one mutex. When no connection is open, SendString and
// SendBatch answer from the simulator table.
type Transport struct {
	mu      sync.Mutex
	addr    string
	timeout time.Duration
	conn    net.Conn
	reader  *bufio.Reader
	log     *logger.Logger
	metrics Metrics

	// dial is replaceable for tests
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTransport creates a transport for host:port. A zero timeout uses
// DefaultTimeout.
func NewTransport(host string, port int, timeout time.Duration, log *logger.Logger) *Transport {
	if port == 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &net.Dialer{Timeout: timeout}
	return &Transport{
		addr:    net.JoinHostPort(host, fmt.Sprint(port)),
		timeout: timeout,
		log:     logger.OrNop(log).Component("transport"),
		metrics: nopMetrics{},
		dial:    d.DialContext,
	}
}

// SetMetrics installs a metrics observer.
func (t *Transport) SetMetrics(m Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m == nil {
		m = nopMetrics{}
	}
	t.metrics = m
}

// Addr returns the host:port the transport dials.
func (t *Transport) Addr() string {
	return t.addr
}

// Connect opens the connection. Calling it while connected is a no-op.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	conn, err := t.dial(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to mount at %s: %w", t.addr, err)
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.metrics.ConnectionChanged(true)
	t.log.Infow("connected", "addr", t.addr)
	return nil
}

// Disconnect closes the connection. Calling it while disconnected is a no-op.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *Transport) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	t.metrics.ConnectionChanged(false)
	t.log.Infow("disconnected", "addr", t.addr)
	return err
}

// Connected reports whether a connection is open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// SendBlind writes :cmd# and returns without reading. Without a connection
// the command is dropped.
func (t *Transport) SendBlind(cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	start := time.Now()
	err := t.writeLocked(frame(cmd))
	t.metrics.CommandSent(cmd, time.Since(start), err)
	return err
}

// SendString writes :cmd# and reads the reply. Commands with a one-byte
// acknowledgement read a single character; MA and MS keep reading to '#'
// when that character is not '0'. Without a connection the simulator
// table answers.
func (t *Transport) SendString(cmd string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return simulatorReply(cmd), nil
	}

	start := time.Now()
	reply, err := t.exchangeLocked(cmd)
	t.metrics.CommandSent(cmd, time.Since(start), err)
	return reply, err
}

func (t *Transport) exchangeLocked(cmd string) (string, error) {
	if err := t.writeLocked(frame(cmd)); err != nil {
		return "", err
	}
	if IsBlind(cmd) {
		return "", nil
	}
	if !isSingleByte(cmd) {
		return t.readTerminatedLocked()
	}

	b, err := t.readByteLocked()
	if err != nil {
		return "", err
	}
	if (cmd == "MA" || cmd == "MS") && b != '0' {
		rest, err := t.readTerminatedLocked()
		if err != nil {
			return "", err
		}
		return string(b) + rest, nil
	}
	return string(b), nil
}

// SendBatch writes the concatenated commands and reads expected replies,
// each terminated by '#'. Without a connection the simulator answers every
// non-blind command.
func (t *Transport) SendBatch(cmds []string, expected int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		replies := make([]string, 0, expected)
		for _, c := range cmds {
			if IsBlind(c) {
				continue
			}
			replies = append(replies, simulatorReply(c))
		}
		for len(replies) < expected {
			replies = append(replies, "0")
		}
		return replies[:expected], nil
	}

	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(frame(c))
	}

	start := time.Now()
	replies, err := t.batchLocked(b.String(), expected)
	t.metrics.CommandSent(strings.Join(cmds, ","), time.Since(start), err)
	return replies, err
}

func (t *Transport) batchLocked(payload string, expected int) ([]string, error) {
	if err := t.writeLocked(payload); err != nil {
		return nil, err
	}

	replies := make([]string, 0, expected)
	for i := 0; i < expected; i++ {
		r, err := t.readTerminatedLocked()
		if err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, nil
}

func (t *Transport) writeLocked(payload string) error {
	if err := t.conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		return t.failLocked(err)
	}
	if _, err := t.conn.Write([]byte(payload)); err != nil {
		return t.failLocked(err)
	}
	return nil
}

func (t *Transport) readByteLocked() (byte, error) {
	b, err := t.reader.ReadByte()
	if err != nil {
		return 0, t.failLocked(err)
	}
	return b, nil
}

func (t *Transport) readTerminatedLocked() (string, error) {
	line, err := t.reader.ReadString('#')
	if err != nil {
		return "", t.failLocked(err)
	}
	return strings.TrimSpace(strings.TrimSuffix(line, "#")), nil
}

// failLocked drops the connection; the dispatcher reconnects on a later tick.
func (t *Transport) failLocked(cause error) error {
	t.log.Warnw("connection failed", "addr", t.addr, "error", cause)
	_ = t.closeLocked()
	return fmt.Errorf("%w: %v", ErrConnectionLost, cause)
}

func frame(cmd string) string {
	return ":" + cmd + "#"
}

// simulatorReply answers a command as an offline mount would. The table
// covers every query the dispatcher, the alignment manager and the modeling
// runner issue.
func simulatorReply(cmd string) string {
	switch {
	case cmd == "Gev":
		return "01234.1"
	case cmd == "Ginfo":
		return "0,0,E,0,0,0,0,0"
	case cmd == "getalst":
		return "-1"
	case strings.HasPrefix(cmd, "GV"):
		return "Simulation"
	case cmd == "CMS":
		return "V"
	case cmd == "GDUTV":
		return "1,1"
	case cmd == "GS":
		return "00:00:00.0"
	case cmd == "Gg", cmd == "Gt":
		return "+000*00:00.0"
	case isSingleByte(cmd) && cmd != "MA" && cmd != "MS" && cmd != "CMCFG0" &&
		cmd != "FLIP" && cmd != "shutdown":
		// coordinate and refraction setters accept everything
		return "1"
	default:
		return "0"
	}
}
