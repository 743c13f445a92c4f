package mount

import "time"

// Metrics observes transport and dispatcher activity.
type Metrics interface {
	CommandSent(cmd string, elapsed time.Duration, err error)
	ConnectionChanged(connected bool)
	CycleCompleted(cadence string, elapsed time.Duration)
	QueueDepth(n int)
	ReplyArityMismatch(cmd string)
}

type nopMetrics struct{}

func (nopMetrics) CommandSent(string, time.Duration, error) {}
func (nopMetrics) ConnectionChanged(bool) {}
func (nopMetrics) CycleCompleted(string, time.Duration) {}
func (nopMetrics) QueueDepth(int) {}
func (nopMetrics) ReplyArityMismatch(string) {}
