package mount

import (
	"fmt"
	"math"
	"strings"

	"github.com/unklstewy/mount-modeler/pkg/coordinates"
)

// Verb names a user command handled by the dispatcher.
type Verb int

const (
	ShowAlignmentModel Verb = iota
	ClearAlign
	RunTargetRMSAlignment
	CancelTargetRMSAlignment
	DeleteWorstPoint
	SaveModel
	LoadModel
	DeleteModel
	ReplayModel
	SetRefractionParameter
	Flip
	Shutdown
	RawCommand
)

var verbNames = map[Verb]string{
	ShowAlignmentModel:       "ShowAlignmentModel",
	ClearAlign:               "ClearAlign",
	RunTargetRMSAlignment:    "RunTargetRMSAlignment",
	CancelTargetRMSAlignment: "CancelTargetRMSAlignment",
	DeleteWorstPoint:         "DeleteWorstPoint",
	SaveModel:                "SaveModel",
	LoadModel:                "LoadModel",
	DeleteModel:              "DeleteModel",
	ReplayModel:              "ReplayModel",
	SetRefractionParameter:   "SetRefractionParameter",
	Flip:                     "FLIP",
	Shutdown:                 "Shutdown",
	RawCommand:               "Raw",
}

// String returns the verb name.
func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Verb(%d)", int(v))
}

// ParseVerb looks a verb up by name, ignoring case.
func ParseVerb(name string) (Verb, error) {
	for v, n := range verbNames {
		if strings.EqualFold(n, name) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

// Command is a user request queued to the dispatcher.
type Command struct {
	Verb Verb

	// Slot names the model of the Save, Load and Delete verbs, and the
	// measurement set ReplayModel programs.
	Slot string

	// TargetRMS is used by RunTargetRMSAlignment (arc seconds).
	TargetRMS float64

	// Temperature (°C) and Pressure (hPa) for SetRefractionParameter. When
	// both are zero the environment sensor values are used.
	Temperature float64
	Pressure    float64

	// Raw is forwarded unchanged for RawCommand.
	Raw string

	// Reply, when set, receives exactly one Result.
	Reply chan<- Result
}

// Result is the outcome of a Command.
type Result struct {
	Reply string
	Err   error
}

// SlewAltAz unparks the mount, sets the alt/az target and starts the slew,
// with tracking (MS) or without (MA).
func SlewAltAz(c Commander, az, alt float64, tracking bool) error {
	if err := c.SendBlind("PO"); err != nil {
		return err
	}

	if reply, err := c.SendString("Sz" + FormatAzimuth(az)); err != nil {
		return err
	} else if reply != "1" {
		return fmt.Errorf("mount rejected azimuth %.4f: %q", az, reply)
	}

	if reply, err := c.SendString("Sa" + FormatAltitude(alt)); err != nil {
		return err
	} else if reply != "1" {
		return fmt.Errorf("mount rejected altitude %.4f: %q", alt, reply)
	}

	cmd := "MA"
	if tracking {
		cmd = "MS"
	}
	reply, err := c.SendString(cmd)
	if err != nil {
		return err
	}
	if reply != "0" {
		return fmt.Errorf("mount refused slew to az %.2f alt %.2f: %s", az, alt, strings.TrimLeft(reply, "0123456789"))
	}
	return nil
}

// SyncPosition tells the mount that it currently points at the given JNow
// position, without adding an alignment star.
func SyncPosition(c Commander, raJNow, decJNow float64) error {
	if reply, err := c.SendString("Sr" + FormatRA(raJNow)); err != nil {
		return err
	} else if reply != "1" {
		return fmt.Errorf("mount rejected RA %.5f: %q", raJNow, reply)
	}

	if reply, err := c.SendString("Sd" + FormatDec(decJNow)); err != nil {
		return err
	} else if reply != "1" {
		return fmt.Errorf("mount rejected Dec %.5f: %q", decJNow, reply)
	}

	if _, err := c.SendString("CMCFG0"); err != nil {
		return err
	}

	reply, err := c.SendString("CM")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(reply, "Coord") {
		return fmt.Errorf("mount refused sync: %q", reply)
	}
	return nil
}

// FormatRA renders hours as HH:MM:SS.S.
func FormatRA(hours float64) string {
	return coordinates.FormatSexagesimal(wrapTenths(hours, 24), false, true, ":")
}

// FormatDec renders degrees as sDD*MM:SS.S.
func FormatDec(deg float64) string {
	return starDegrees(coordinates.FormatSexagesimal(deg, true, true, ":"))
}

// FormatAltitude renders degrees as sDD*MM:SS.S.
func FormatAltitude(deg float64) string {
	return FormatDec(deg)
}

// FormatAzimuth renders degrees as DDD*MM:SS.S.
func FormatAzimuth(deg float64) string {
	s := coordinates.FormatSexagesimal(wrapTenths(deg, 360), false, true, ":")
	if i := strings.IndexByte(s, ':'); i < 3 {
		s = strings.Repeat("0", 3-i) + s
	}
	return starDegrees(s)
}

// wrapTenths rounds value to the tenth of an arcsecond the formatters show
// and wraps the result into [0, period).
func wrapTenths(value, period float64) float64 {
	full := period * 36000
	units := math.Mod(math.Round(value*36000), full)
	if units < 0 {
		units += full
	}
	return units / 36000
}

func starDegrees(s string) string {
	return strings.Replace(s, ":", "*", 1)
}
