package mount

import (
	"fmt"
	"sync"
	"time"
)

// TrackingState is the mount status decoded from the Ginfo stat field.
type TrackingState int

const (
	Tracking TrackingState = iota
	Stopped
	SlewingToPark
	Unparking
	SlewingHome
	Parked
	SlewingOrStopping
	TrackingOffNoMove
	MotorLowTemp
	TrackingOutsideLimits
	FollowingSatellite
	UserOKNeeded
	UnknownState
	ErrorState
)

var trackingStateNames = map[TrackingState]string{
	Tracking:              "tracking",
	Stopped:               "stopped",
	SlewingToPark:         "slewingToPark",
	Unparking:             "unparking",
	SlewingHome:           "slewingHome",
	Parked:                "parked",
	SlewingOrStopping:     "slewingOrStopping",
	TrackingOffNoMove:     "trackingOffNoMove",
	MotorLowTemp:          "motorLowTemp",
	TrackingOutsideLimits: "trackingOutsideLimits",
	FollowingSatellite:    "followingSatellite",
	UserOKNeeded:          "userOKNeeded",
	UnknownState:          "unknown",
	ErrorState:            "error",
}

// String returns the state name.
func (s TrackingState) String() string {
	if name, ok := trackingStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TrackingState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s TrackingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name. Unknown names decode to UnknownState.
func (s *TrackingState) UnmarshalText(text []byte) error {
	for state, name := range trackingStateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	*s = UnknownState
	return nil
}

// trackingStateFromCode maps the numeric status of the protocol.
func trackingStateFromCode(code int) TrackingState {
	switch {
	case code >= 0 && code <= 11:
		return TrackingState(code)
	case code == 99:
		return ErrorState
	default:
		return UnknownState
	}
}

// UTCDataValidity describes the mount's UTC/leap-second table.
type UTCDataValidity string

const (
	UTCDataValid   UTCDataValidity = "valid"
	UTCDataExpired UTCDataValidity = "expired"
	UTCDataInvalid UTCDataValidity = "invalid"
)

// Snapshot is the mount state assembled from one or more poll cycles.
// Right ascensions are hours, angles degrees.
type Snapshot struct {
	Connected  bool `json:"connected"`
	Simulation bool `json:"simulation"`

	RAJNow   float64 `json:"raJNow"`
	DecJNow  float64 `json:"decJNow"`
	RAJ2000  float64 `json:"raJ2000"`
	DecJ2000 float64 `json:"decJ2000"`
	Azimuth  float64 `json:"az"`
	Altitude float64 `json:"alt"`

	Pierside      string        `json:"pierside"`
	TrackingState TrackingState `json:"trackingState"`
	Slewing       bool          `json:"slewing"`

	JulianDate        float64 `json:"julianDate"`
	LocalSiderealTime float64 `json:"localSiderealTime"` // hours
	SiteLatitude      float64 `json:"siteLat"`
	SiteLongitude     float64 `json:"siteLon"` // east positive
	SiteHeight        float64 `json:"siteHeight"`

	FirmwareVersion int    `json:"firmwareVersion"` // major*10000+minor*100+patch
	FirmwareNumber  string `json:"firmwareNumber"`
	FirmwareDate    string `json:"firmwareDate"`
	FirmwareTime    string `json:"firmwareTime"`
	ProductName     string `json:"productName"`
	HardwareVersion string `json:"hardwareVersion"`

	RefractionTemp     float64 `json:"refractionTemp"`
	RefractionPressure float64 `json:"refractionPressure"`
	RefractionEnabled  bool    `json:"refractionEnabled"`
	MountTemperature   float64 `json:"mountTemperature"`

	MeridianLimitSlew  float64 `json:"meridianLimitSlew"`
	MeridianLimitTrack float64 `json:"meridianLimitTrack"`
	SlewRate           float64 `json:"slewRate"`
	TimeToFlip         float64 `json:"timeToFlip"`     // minutes
	TimeToMeridian     float64 `json:"timeToMeridian"` // minutes
	HorizonLimitLow    float64 `json:"horizonLimitLow"`
	HorizonLimitHigh   float64 `json:"horizonLimitHigh"`
	DualAxisTracking   bool    `json:"dualAxisTracking"`
	UnattendedFlip     bool    `json:"unattendedFlip"`

	UTCDataValid          UTCDataValidity `json:"utcDataValid"`
	UTCDataExpirationDate string          `json:"utcDataExpirationDate"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// snapshotStore guards the snapshot. The dispatcher is the only writer.
type snapshotStore struct {
	mu sync.RWMutex
	s  Snapshot
}

func (st *snapshotStore) get() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

func (st *snapshotStore) update(fn func(*Snapshot)) Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
	return st.s
}
