package alpaca

import (
	"context"
	"sync"
	"time"

	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/config"
	"github.com/unklstewy/mount-modeler/pkg/devices"
)

// ObservingConditions polls an Alpaca weather device and publishes the
// latest reading.
type ObservingConditions struct {
	*Client
	log *logger.Logger

	mu     sync.RWMutex
	latest devices.Environment
	at     time.Time
}

var _ devices.EnvironmentSensor = (*ObservingConditions)(nil)

// NewObservingConditions creates a sensor client.
func NewObservingConditions(cfg config.AlpacaConfig, log *logger.Logger) *ObservingConditions {
	return &ObservingConditions{
		Client: NewClient("observingconditions", cfg),
		log:    logger.OrNop(log).Component("conditions"),
	}
}

// Environment returns the last reading.
func (o *ObservingConditions) Environment() devices.Environment {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

// UpdatedAt returns when the last reading was taken.
func (o *ObservingConditions) UpdatedAt() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.at
}

// Poll reads every property once. Properties the device does not
// implement stay nil.
func (o *ObservingConditions) Poll(ctx context.Context) devices.Environment {
	if ctx.Err() != nil {
		return o.Environment()
	}
	read := func(name string) *float64 {
		v, err := o.getFloat(ctx, name)
		if err != nil {
			o.log.Debugw("property not available", "property", name, "error", err)
			return nil
		}
		return devices.Float(v)
	}

	env := devices.Environment{
		Temperature:   read("temperature"),
		Pressure:      read("pressure"),
		Humidity:      read("humidity"),
		DewPoint:      read("dewpoint"),
		CloudCover:    read("cloudcover"),
		RainRate:      read("rainrate"),
		WindSpeed:     read("windspeed"),
		WindDirection: read("winddirection"),
		SQR:           read("skyquality"),
	}

	o.mu.Lock()
	o.latest = env
	o.at = time.Now()
	o.mu.Unlock()
	return env
}

// Run connects and polls every interval until ctx is done.
func (o *ObservingConditions) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if err := o.Connect(ctx); err != nil {
		o.log.Warnw("observing conditions not connected", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		o.Poll(ctx)
		select {
		case <-ctx.Done():
			_ = o.Disconnect(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
