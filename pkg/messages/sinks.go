// Package messages delivers user-visible messages to the console, the log
// and connected browsers.
package messages

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/devices"
)

// Message is one posted message.
type Message struct {
	Time  time.Time     `json:"time"`
	Level devices.Level `json:"-"`
	Kind  string        `json:"level"`
	Text  string        `json:"text"`
}

func newMessage(level devices.Level, text string) Message {
	return Message{Time: time.Now().UTC(), Level: level, Kind: level.String(), Text: text}
}

var levelStyles = map[devices.Level]lipgloss.Style{
	devices.LevelInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
	devices.LevelProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	devices.LevelWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
	devices.LevelError:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
}

var timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

// ConsoleSink writes colored lines to a terminal.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink creates a sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Post writes one line.
func (c *ConsoleSink) Post(level devices.Level, text string) {
	m := newMessage(level, text)
	style, ok := levelStyles[level]
	if !ok {
		style = lipgloss.NewStyle()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s %s\n",
		timeStyle.Render(m.Time.Local().Format("15:04:05")),
		style.Render(fmt.Sprintf("%-8s", m.Kind)),
		text)
}

// LogSink forwards messages to the structured log.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink logging through log.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: logger.OrNop(log).Component("messages")}
}

// Post logs text at the level matching the message level.
func (l *LogSink) Post(level devices.Level, text string) {
	switch level {
	case devices.LevelWarning:
		l.log.Warnw(text)
	case devices.LevelError:
		l.log.Errorw(text)
	case devices.LevelProgress:
		l.log.Debugw(text)
	default:
		l.log.Infow(text)
	}
}

// ChannelSink buffers messages for a consumer. When the buffer is full the
// message is dropped so posting never blocks.
type ChannelSink struct {
	ch chan Message

	mu      sync.Mutex
	dropped int
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{ch: make(chan Message, size)}
}

// Post queues the message.
func (c *ChannelSink) Post(level devices.Level, text string) {
	select {
	case c.ch <- newMessage(level, text):
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

// Messages returns the receive side.
func (c *ChannelSink) Messages() <-chan Message {
	return c.ch
}

// Dropped returns how many messages did not fit the buffer.
func (c *ChannelSink) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Fanout posts every message to all its sinks.
type Fanout []devices.MessageSink

// Post forwards to each non-nil sink.
func (f Fanout) Post(level devices.Level, text string) {
	for _, s := range f {
		if s != nil {
			s.Post(level, text)
		}
	}
}
