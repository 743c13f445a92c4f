package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/unklstewy/mount-modeler/pkg/config"
	"github.com/unklstewy/mount-modeler/pkg/devices"
)

// statusTimeout bounds the slewing query behind Status.
const statusTimeout = 2 * time.Second

// Dome is an Alpaca dome that follows the telescope in azimuth.
type Dome struct {
	*Client
}

var _ devices.Dome = (*Dome)(nil)

// NewDome creates a dome client.
func NewDome(cfg config.AlpacaConfig) *Dome {
	return &Dome{Client: NewClient("dome", cfg)}
}

// SlewTo turns the dome slit to azimuth.
// Implements: PUT /api/v1/dome/{device_number}/slewtoazimuth
func (d *Dome) SlewTo(ctx context.Context, azimuth float64) error {
	if !d.IsConnected() {
		return fmt.Errorf("dome: %w", devices.ErrUnavailable)
	}
	if azimuth < 0 || azimuth >= 360 {
		return errors.New("dome azimuth must be in [0, 360)")
	}

	resp, err := d.put(ctx, "slewtoazimuth", url.Values{"Azimuth": {fmt.Sprintf("%.6f", azimuth)}})
	if err != nil {
		return fmt.Errorf("failed to slew dome: %w", err)
	}
	return resp.Error()
}

// Azimuth returns the current slit azimuth.
func (d *Dome) Azimuth(ctx context.Context) (float64, error) {
	return d.getFloat(ctx, "azimuth")
}

// Status reports whether the dome is moving. Errors read as disconnected.
func (d *Dome) Status() devices.DomeStatus {
	if !d.IsConnected() {
		return devices.DomeDisconnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	slewing, err := d.getBool(ctx, "slewing")
	switch {
	case err != nil:
		return devices.DomeDisconnected
	case slewing:
		return devices.DomeSlewing
	default:
		return devices.DomeIdle
	}
}

// Abort stops any dome motion.
func (d *Dome) Abort(ctx context.Context) error {
	resp, err := d.put(ctx, "abortslew", url.Values{})
	if err != nil {
		return fmt.Errorf("failed to abort dome slew: %w", err)
	}
	return resp.Error()
}
