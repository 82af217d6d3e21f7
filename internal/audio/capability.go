package audio

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Level is an ordered platform capability level. Higher levels expose more
// OS audio primitives.
type Level int

// Level thresholds at which OS primitives become usable.
const (
	LevelLegacy              Level = 21
	LevelDeviceEnumeration   Level = 23
	LevelStructuredFocus     Level = 26
	LevelCommunicationDevice Level = 31
)

// ErrUnsupportedVersion is returned for platform versions older than LevelLegacy.
var ErrUnsupportedVersion = errors.New("unsupported platform version")

// Capabilities are the OS primitives usable at a given level. They are passed
// to the Prober and Manager at construction instead of comparing levels inline.
type Capabilities struct {
	// DeviceEnumeration enables output device enumeration.
	DeviceEnumeration bool `json:"device_enumeration"`
	// StructuredFocus enables focus requests with attributes and a handle.
	StructuredFocus bool `json:"structured_focus"`
	// CommunicationDevice enables the set/clear communication device primitive.
	CommunicationDevice bool `json:"communication_device"`
}

// Capabilities returns the capabilities available at level l.
func (l Level) Capabilities() Capabilities {
	return Capabilities{
		DeviceEnumeration:   l >= LevelDeviceEnumeration,
		StructuredFocus:     l >= LevelStructuredFocus,
		CommunicationDevice: l >= LevelCommunicationDevice,
	}
}

// platformLevels maps platform release versions to levels, oldest first.
var platformLevels = []struct {
	version string
	level   Level
}{
	{"v5.0.0", 21},
	{"v5.1.0", 22},
	{"v6.0.0", 23},
	{"v7.0.0", 24},
	{"v7.1.0", 25},
	{"v8.0.0", 26},
	{"v8.1.0", 27},
	{"v9.0.0", 28},
	{"v10.0.0", 29},
	{"v11.0.0", 30},
	{"v12.0.0", 31},
	{"v12.1.0", 32},
	{"v13.0.0", 33},
	{"v14.0.0", 34},
	{"v15.0.0", 35},
}

// ParseLevel returns the capability level of a platform release version such
// as "8.1" or "v12".
func ParseLevel(version string) (Level, error) {
	v := canonicalVersion(version)
	if !semver.IsValid(v) {
		return 0, fmt.Errorf("invalid platform version %q", version)
	}

	var level Level
	for _, pl := range platformLevels {
		if semver.Compare(v, pl.version) >= 0 {
			level = pl.level
		}
	}
	if level == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}
	return level, nil
}

// canonicalVersion returns the version in canonical semver format.
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
