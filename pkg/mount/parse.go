package mount

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"

	"github.com/unklstewy/mount-modeler/pkg/coordinates"
)

// ErrReplyArity is returned when a reply has the wrong number of fields.
var ErrReplyArity = errors.New("unexpected number of reply fields")

// utcTableConstraint gates GDUTV, which older firmware does not know.
const utcTableConstraint = ">= 2.15.0"

// ginfo is the decoded consolidated fast reply.
type ginfo struct {
	ra, dec    float64
	pierside   string
	az, alt    float64
	julianDate float64
	state      TrackingState
	slewing    bool
}

// parseGinfo decodes "ra,dec,pierside,az,alt,jd,stat,slew".
func parseGinfo(reply string) (ginfo, error) {
	fields := splitReply(reply)
	if len(fields) != 8 {
		return ginfo{}, fmt.Errorf("%w: Ginfo has %d fields, want 8: %q", ErrReplyArity, len(fields), reply)
	}

	var g ginfo
	var err error
	if g.ra, err = parseNumber(fields[0]); err != nil {
		return ginfo{}, err
	}
	if g.dec, err = parseNumber(fields[1]); err != nil {
		return ginfo{}, err
	}
	g.pierside = strings.ToUpper(fields[2])
	if g.pierside != "W" {
		g.pierside = "E"
	}
	if g.az, err = parseNumber(fields[3]); err != nil {
		return ginfo{}, err
	}
	if g.alt, err = parseNumber(fields[4]); err != nil {
		return ginfo{}, err
	}
	if g.julianDate, err = parseNumber(fields[5]); err != nil {
		return ginfo{}, err
	}
	stat, err := strconv.Atoi(fields[6])
	if err != nil {
		return ginfo{}, fmt.Errorf("invalid status %q: %w", fields[6], err)
	}
	g.state = trackingStateFromCode(stat)
	g.slewing = fields[7] == "1"

	g.ra = coordinates.NormalizeRA(g.ra)
	return g, nil
}

// AlignmentInfo is the decoded getain header. Polar and orthogonality errors
// are converted to arc seconds.
type AlignmentInfo struct {
	Azimuth       float64
	Altitude      float64
	PolarError    float64
	PositionAngle float64
	OrthoError    float64
	AzimuthKnobs  float64
	AltitudeKnobs float64
	Terms         int
	RMS           float64
}

// ParseAlignmentInfo decodes the nine getain fields. A field reported as
// 'E' (not computable) decodes to 0.
func ParseAlignmentInfo(reply string) (AlignmentInfo, error) {
	fields := splitReply(reply)
	if len(fields) != 9 {
		return AlignmentInfo{}, fmt.Errorf("%w: getain has %d fields, want 9: %q", ErrReplyArity, len(fields), reply)
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		if f == "E" {
			continue
		}
		v, err := parseNumber(f)
		if err != nil {
			return AlignmentInfo{}, err
		}
		values[i] = v
	}

	return AlignmentInfo{
		Azimuth:       values[0],
		Altitude:      values[1],
		PolarError:    values[2] * 3600.0,
		PositionAngle: values[3],
		OrthoError:    values[4] * 3600.0,
		AzimuthKnobs:  values[5],
		AltitudeKnobs: values[6],
		Terms:         int(values[7]),
		RMS:           values[8],
	}, nil
}

// AlignmentPointReply is one decoded getalp reply.
type AlignmentPointReply struct {
	HourAngle  float64 // hours
	Dec        float64 // degrees, JNow
	ErrorRMS   float64 // arcsec
	ErrorAngle float64 // degrees
}

// ParseAlignmentPoint decodes "HH:MM:SS.SS,+DD*MM:SS.S,rms,angle".
func ParseAlignmentPoint(reply string) (AlignmentPointReply, error) {
	fields := splitReply(reply)
	if len(fields) != 4 {
		return AlignmentPointReply{}, fmt.Errorf("%w: getalp has %d fields, want 4: %q", ErrReplyArity, len(fields), reply)
	}

	ha, err := coordinates.ParseSexagesimal(fields[0], ":")
	if err != nil {
		return AlignmentPointReply{}, err
	}
	dec, err := coordinates.ParseSexagesimal(fields[1], ":")
	if err != nil {
		return AlignmentPointReply{}, err
	}

	var p AlignmentPointReply
	p.HourAngle, p.Dec = ha, dec
	if fields[2] != "E" {
		if p.ErrorRMS, err = parseNumber(fields[2]); err != nil {
			return AlignmentPointReply{}, err
		}
	}
	if fields[3] != "E" {
		if p.ErrorAngle, err = parseNumber(fields[3]); err != nil {
			return AlignmentPointReply{}, err
		}
	}
	if p.ErrorRMS < 0 {
		p.ErrorRMS = 0
	}
	return p, nil
}

// parseUTCData decodes GDUTV "flag,date".
func parseUTCData(reply string) (UTCDataValidity, string, error) {
	fields := splitReply(reply)
	if len(fields) != 2 {
		return UTCDataInvalid, "", fmt.Errorf("%w: GDUTV has %d fields, want 2: %q", ErrReplyArity, len(fields), reply)
	}

	switch strings.ToUpper(fields[0]) {
	case "1", "V":
		return UTCDataValid, fields[1], nil
	case "0", "E":
		return UTCDataExpired, fields[1], nil
	default:
		return UTCDataInvalid, fields[1], nil
	}
}

// firmwareVersion encodes "a.b.c" as a*10000+b*100+c and reports whether
// the firmware knows GDUTV.
func firmwareVersion(number string) (encoded int, hasUTCTable bool, err error) {
	v, err := semver.NewVersion(strings.TrimSpace(number))
	if err != nil {
		return 0, false, fmt.Errorf("invalid firmware number %q: %w", number, err)
	}
	c, err := semver.NewConstraint(utcTableConstraint)
	if err != nil {
		return 0, false, err
	}

	encoded = int(v.Major())*10000 + int(v.Minor())*100 + int(v.Patch())
	return encoded, c.Check(v), nil
}

// parseLimit decodes a horizon limit such as "+30*" to degrees.
func parseLimit(reply string) (float64, error) {
	return parseNumber(strings.TrimSuffix(strings.TrimSpace(reply), "*"))
}

// parseFlag decodes 0/1 and OFF/ON replies.
func parseFlag(reply string) bool {
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "1", "ON", "V":
		return true
	default:
		return false
	}
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v, nil
}

func splitReply(reply string) []string {
	reply = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(reply), "#"))
	if reply == "" {
		return nil
	}
	fields := strings.Split(reply, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
