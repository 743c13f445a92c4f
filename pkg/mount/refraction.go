package mount

import (
	"fmt"

	"github.com/unklstewy/mount-modeler/pkg/devices"
)

// Plausible weather window for pushing refraction data.
const (
	MinPressure    = 900.0
	MaxPressure    = 1100.0
	MinTemperature = -40.0
	MaxTemperature = 50.0
)

// RefractionPolicy controls when the dispatcher pushes environment data to
// the mount on its own.
type RefractionPolicy struct {
	// WhenNotTracking pushes whenever the mount is not tracking.
	WhenNotTracking bool

	// DuringIdleCamera pushes while the imager is READY-IDLE or DOWNLOADING.
	DuringIdleCamera bool
}

// ShouldPush decides whether an automatic push is allowed now.
func (p RefractionPolicy) ShouldPush(state TrackingState, camera devices.ImagerStatus) bool {
	if p.WhenNotTracking && state != Tracking {
		return true
	}
	if p.DuringIdleCamera && (camera == devices.ImagerReadyIdle || camera == devices.ImagerDownloading) {
		return true
	}
	return false
}

// PlausibleWeather reports whether temperature (°C) and pressure (hPa) are
// sane enough to send to the mount.
func PlausibleWeather(temperature, pressure float64) bool {
	return pressure >= MinPressure && pressure <= MaxPressure &&
		temperature >= MinTemperature && temperature <= MaxTemperature
}

// environmentWeather extracts temperature and pressure from a sensor reading.
func environmentWeather(sensor devices.EnvironmentSensor) (float64, float64, bool) {
	if sensor == nil {
		return 0, 0, false
	}
	env := sensor.Environment()
	if env.Temperature == nil || env.Pressure == nil {
		return 0, 0, false
	}
	return *env.Temperature, *env.Pressure, true
}

// pushRefraction sends pressure and temperature. Both setters acknowledge
// with a single character.
func pushRefraction(c Commander, temperature, pressure float64) error {
	reply, err := c.SendString(fmt.Sprintf("SRPRS%06.1f", pressure))
	if err != nil {
		return err
	}
	if reply != "1" {
		return fmt.Errorf("mount rejected pressure %.1f hPa: %q", pressure, reply)
	}

	reply, err = c.SendString(fmt.Sprintf("SRTMP%+06.1f", temperature))
	if err != nil {
		return err
	}
	if reply != "1" {
		return fmt.Errorf("mount rejected temperature %.1f °C: %q", temperature, reply)
	}
	return nil
}

// maybePushRefraction applies the policy on the medium cadence.
func (d *Dispatcher) maybePushRefraction() {
	temp, press, ok := environmentWeather(d.env)
	if !ok || !PlausibleWeather(temp, press) {
		return
	}

	camera := devices.ImagerDisconnected
	if d.imager != nil {
		camera = d.imager.Status()
	}
	if !d.Policy().ShouldPush(d.snapshots.get().TrackingState, camera) {
		return
	}

	if err := pushRefraction(d.link, temp, press); err != nil {
		d.log.Warnw("refraction push failed", "error", err)
		return
	}
	d.log.Debugw("refraction pushed", "temperature", temp, "pressure", press)
}

// setRefraction handles the user command, which always pushes.
func (d *Dispatcher) setRefraction(cmd Command) error {
	temp, press := cmd.Temperature, cmd.Pressure
	if temp == 0 && press == 0 {
		var ok bool
		if temp, press, ok = environmentWeather(d.env); !ok {
			return fmt.Errorf("no refraction values given and no environment sensor: %w", devices.ErrUnavailable)
		}
	}
	if err := pushRefraction(d.link, temp, press); err != nil {
		return err
	}
	devices.Postf(d.sink, devices.LevelInfo, "Refraction set to %.1f °C, %.1f hPa", temp, press)
	return nil
}
