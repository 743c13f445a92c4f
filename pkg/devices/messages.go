package devices

import "fmt"

// Level classifies a user-visible message.
type Level int

const (
	LevelInfo Level = iota
	LevelProgress
	LevelWarning
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelProgress:
		return "progress"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// MessageSink receives user-visible messages. Implementations must not block
// the caller.
type MessageSink interface {
	Post(level Level, text string)
}

// Discard is a MessageSink that drops every message.
var Discard MessageSink = discard{}

type discard struct{}

func (discard) Post(Level, string) {}

// Postf formats and posts a message to sink, which may be nil.
func Postf(sink MessageSink, level Level, format string, args ...any) {
	if sink == nil {
		return
	}
	sink.Post(level, fmt.Sprintf(format, args...))
}
