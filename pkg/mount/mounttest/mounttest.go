// Package mounttest provides an in-memory mount that speaks the command
// protocol, for tests of the dispatcher, the alignment manager and the
// modeling runner.
package mounttest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/unklstewy/mount-modeler/pkg/coordinates"
)

// Star is one alignment star held by the fake mount.
type Star struct {
	HourAngle  float64 // hours
	Dec        float64 // degrees
	ErrorRMS   float64 // arcsec
	ErrorAngle float64 // degrees
}

// Mount is a scripted mount. Zero values answer like a healthy mount
// pointing at the meridian; fields may be changed between calls while
// holding no lock, or through the setters while the mount is in use.
type Mount struct {
	mu sync.Mutex

	connected  bool
	ConnectErr error

	sent []string

	// Replies overrides the reply of an exact command.
	Replies map[string]string

	// GinfoReplies are returned, in order, before the computed Ginfo.
	GinfoReplies []string

	// Info overrides the computed getain reply.
	Info string

	// Simulation makes getalst answer -1.
	Simulation bool

	// RejectEnd makes endalig answer E.
	RejectEnd bool

	// SlewPolls is the number of Ginfo polls a slew stays active.
	SlewPolls int

	Stars   []Star
	Slots   map[string][]Star
	pending []Star
	open    bool

	RA, Dec, Az, Alt float64
	Pierside         string
	JulianDate       float64
	State            int
	slewLeft         int
}

// New returns a connected fake mount with the given stars.
func New(stars ...Star) *Mount {
	return &Mount{
		connected: true,
		Stars:     stars,
		Slots:     map[string][]Star{},
		Replies:   map[string]string{},
		Pierside:  "W",
		SlewPolls: 1,
	}
}

// Connect marks the mount connected unless ConnectErr is set.
func (m *Mount) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true
	return nil
}

// Disconnect marks the mount disconnected.
func (m *Mount) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// Connected reports the connection flag.
func (m *Mount) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetConnected changes the connection flag.
func (m *Mount) SetConnected(c bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = c
}

// SendBlind records the command.
func (m *Mount) SendBlind(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, cmd)
	return nil
}

// SendString records the command and answers it.
func (m *Mount) SendString(cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, cmd)
	return m.answer(cmd), nil
}

// SendBatch records and answers every command.
func (m *Mount) SendBatch(cmds []string, expected int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	replies := make([]string, 0, expected)
	for _, c := range cmds {
		m.sent = append(m.sent, c)
		replies = append(replies, m.answer(c))
	}
	if len(replies) < expected {
		return nil, errors.New("short batch")
	}
	return replies[:expected], nil
}

// Sent returns a copy of every command received.
func (m *Mount) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// SentWithPrefix returns the received commands starting with prefix.
func (m *Mount) SentWithPrefix(prefix string) []string {
	var out []string
	for _, c := range m.Sent() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// ResetSent clears the command log.
func (m *Mount) ResetSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// StarCount returns the number of stars in the active model.
func (m *Mount) StarCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Stars)
}

// PendingCount returns the number of stars in the open batch.
func (m *Mount) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// SetState changes the tracking status code reported by Ginfo.
func (m *Mount) SetState(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.State = code
}

func (m *Mount) answer(cmd string) string {
	if r, ok := m.Replies[cmd]; ok {
		return r
	}

	switch {
	case cmd == "Ginfo":
		return m.ginfo()
	case cmd == "getalst":
		if m.Simulation {
			return "-1"
		}
		return strconv.Itoa(len(m.Stars))
	case cmd == "getain":
		return m.info()
	case strings.HasPrefix(cmd, "getalp"):
		return m.point(strings.TrimPrefix(cmd, "getalp"))
	case strings.HasPrefix(cmd, "delalst"):
		return m.deleteStar(strings.TrimPrefix(cmd, "delalst"))
	case cmd == "delalig":
		m.Stars = nil
		return "1"
	case cmd == "newalig":
		m.open = true
		m.pending = nil
		return "V"
	case strings.HasPrefix(cmd, "newalpt"):
		if !m.open {
			return "E"
		}
		m.pending = append(m.pending, Star{ErrorRMS: 1.0})
		return strconv.Itoa(len(m.pending))
	case cmd == "endalig":
		if !m.open || m.RejectEnd {
			m.open = false
			return "E"
		}
		m.open = false
		m.Stars = m.pending
		m.pending = nil
		return "V"
	case strings.HasPrefix(cmd, "modeldel0"):
		delete(m.Slots, strings.TrimPrefix(cmd, "modeldel0"))
		return "1"
	case strings.HasPrefix(cmd, "modelsv0"):
		m.Slots[strings.TrimPrefix(cmd, "modelsv0")] = append([]Star(nil), m.Stars...)
		return "1"
	case strings.HasPrefix(cmd, "modelld0"):
		stars, ok := m.Slots[strings.TrimPrefix(cmd, "modelld0")]
		if !ok {
			return "0"
		}
		m.Stars = append([]Star(nil), stars...)
		return "1"
	case cmd == "MA", cmd == "MS":
		m.slewLeft = m.SlewPolls
		return "0"
	case cmd == "CM":
		return "Coordinates matched"
	case cmd == "CMS":
		return "V"
	case cmd == "CMCFG0", cmd == "FLIP", cmd == "shutdown":
		return "1"
	case strings.HasPrefix(cmd, "S"):
		// Sr, Sd, Sz, Sa, SRPRS, SRTMP
		return "1"
	}

	if r, ok := defaultReplies[cmd]; ok {
		return r
	}
	return "0"
}

var defaultReplies = map[string]string{
	"GS":    "12:00:00.0",
	"Gmte":  "0100",
	"Glmt":  "5",
	"Glms":  "10",
	"GMs":   "15",
	"GRTMP": "+010.0",
	"GRPRS": "1010.0",
	"GTMP1": "+012.0",
	"GREF":  "1",
	"Guaf":  "0",
	"Gdat":  "1",
	"Gh":    "+90*",
	"Go":    "+05*",
	"GDUTV": "V,2026-06-28",
	"Gev":   "00500.0",
	"Gg":    "-011*30:00.0",
	"Gt":    "+49*00:00.0",
	"GVD":   "Mar 19 2021",
	"GVN":   "3.1.2",
	"GVP":   "10micron GM1000HPS",
	"GVT":   "15:05:44",
	"GVZ":   "Q-TYPE2012",
}

func (m *Mount) ginfo() string {
	if len(m.GinfoReplies) > 0 {
		r := m.GinfoReplies[0]
		m.GinfoReplies = m.GinfoReplies[1:]
		return r
	}

	slew := 0
	if m.slewLeft > 0 {
		m.slewLeft--
		slew = 1
	}
	return fmt.Sprintf("%.5f,%.5f,%s,%.4f,%.4f,%.6f,%d,%d",
		m.RA, m.Dec, m.Pierside, m.Az, m.Alt, m.JulianDate, m.State, slew)
}

func (m *Mount) info() string {
	if m.Info != "" {
		return m.Info
	}
	if len(m.Stars) == 0 {
		return "E,E,E,E,E,E,E,0,E"
	}
	var sum float64
	for _, s := range m.Stars {
		sum += s.ErrorRMS * s.ErrorRMS
	}
	rms := math.Sqrt(sum / float64(len(m.Stars)))
	return fmt.Sprintf("180.0000,+49.0000,0.0100,045.00,+0.0010,+0.10,-0.10,%02d,%.1f", len(m.Stars), rms)
}

func (m *Mount) point(index string) string {
	i, err := strconv.Atoi(index)
	if err != nil || i < 1 || i > len(m.Stars) {
		return "E"
	}
	s := m.Stars[i-1]
	return fmt.Sprintf("%s,%s,%.1f,%.0f",
		coordinates.FormatSexagesimal(coordinates.NormalizeRA(s.HourAngle), false, true, ":"),
		strings.Replace(coordinates.FormatSexagesimal(s.Dec, true, true, ":"), ":", "*", 1),
		s.ErrorRMS, s.ErrorAngle)
}

func (m *Mount) deleteStar(index string) string {
	i, err := strconv.Atoi(index)
	if err != nil || i < 1 || i > len(m.Stars) {
		return "0"
	}
	m.Stars = append(m.Stars[:i-1:i-1], m.Stars[i:]...)
	return "1"
}
