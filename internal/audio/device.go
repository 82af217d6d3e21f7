package audio

import (
	"fmt"
	"slices"
)

// Kind identifies one of the audio routes a session can be switched to.
type Kind string

// Route kinds.
const (
	KindEarpiece         Kind = "earpiece"
	KindSpeakerphone     Kind = "speakerphone"
	KindWiredHeadset     Kind = "wired_headset"
	KindBluetoothHeadset Kind = "bluetooth_headset"
)

// DefaultPriority is the route preference used when none is configured.
var DefaultPriority = []Kind{KindBluetoothHeadset, KindWiredHeadset, KindEarpiece, KindSpeakerphone}

// hardwareTypes maps each route kind to the OS hardware types that can serve it.
var hardwareTypes = map[Kind][]HardwareType{
	KindBluetoothHeadset: {TypeBluetoothSCO, TypeBluetoothA2DP},
	KindEarpiece:         {TypeBuiltinEarpiece},
	KindSpeakerphone:     {TypeBuiltinSpeaker},
	KindWiredHeadset:     {TypeWiredHeadset, TypeWiredHeadphones},
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown audio device %q", s)
	}
	return k, nil
}

// KindOf returns the route kind served by hardware type t, if any.
func KindOf(t HardwareType) (Kind, bool) {
	for _, k := range DefaultPriority {
		if k.Matches(t) {
			return k, true
		}
	}
	return "", false
}

// Valid reports whether k is one of the known route kinds.
func (k Kind) Valid() bool {
	_, ok := hardwareTypes[k]
	return ok
}

// Matches reports whether an OS device of hardware type t can serve route k.
func (k Kind) Matches(t HardwareType) bool {
	return slices.Contains(hardwareTypes[k], t)
}

// Device is an audio route with a human-readable name.
type Device struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// Earpiece returns the built-in receiver route.
func Earpiece() Device {
	return Device{Kind: KindEarpiece, Name: "Earpiece"}
}

// Speakerphone returns the built-in loudspeaker route.
func Speakerphone() Device {
	return Device{Kind: KindSpeakerphone, Name: "Speakerphone"}
}

// WiredHeadset returns the wired headset or headphones route.
func WiredHeadset() Device {
	return Device{Kind: KindWiredHeadset, Name: "Wired Headset"}
}

// BluetoothHeadset returns a Bluetooth route named after the peripheral, if known.
func BluetoothHeadset(name string) Device {
	if name == "" {
		name = "Bluetooth"
	}
	return Device{Kind: KindBluetoothHeadset, Name: name}
}

// String returns the device name.
func (d Device) String() string {
	return d.Name
}

// DeviceEventType classifies a hot-plug notification.
type DeviceEventType string

// Device event types.
const (
	DeviceConnected    DeviceEventType = "connected"
	DeviceDisconnected DeviceEventType = "disconnected"
	// DeviceRouteCleared reports that the device in use as communication
	// device went away while another device of the same kind remains.
	DeviceRouteCleared DeviceEventType = "route_cleared"
)

// DeviceEvent is an asynchronous availability change reported by the OS.
type DeviceEvent struct {
	Type DeviceEventType `json:"type"`
	Kind Kind            `json:"kind"`
	// Name is the advertised peripheral name (Bluetooth only).
	Name string `json:"name,omitempty"`
}
