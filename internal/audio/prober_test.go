package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasEarpiece(t *testing.T) {
	sys := newFakeSystem()

	p := NewProber(sys, fakeFeatures{FeatureTelephony: true}, LevelCommunicationDevice.Capabilities())
	assert.True(t, p.HasEarpiece())

	p = NewProber(sys, fakeFeatures{}, LevelCommunicationDevice.Capabilities())
	assert.False(t, p.HasEarpiece())
}

func TestHasSpeakerphone(t *testing.T) {
	speaker := DeviceInfo{ID: 2, Type: TypeBuiltinSpeaker}
	earpiece := DeviceInfo{ID: 1, Type: TypeBuiltinEarpiece}
	wired := DeviceInfo{ID: 3, Type: TypeWiredHeadset}

	tests := []struct {
		name     string
		level    Level
		features fakeFeatures
		outputs  []DeviceInfo
		want     bool
	}{
		{"legacy level without devices", LevelLegacy, fakeFeatures{FeatureAudioOutput: true}, nil, true},
		{"below threshold without devices", 22, fakeFeatures{FeatureAudioOutput: true}, []DeviceInfo{earpiece}, true},
		{"enumeration with speaker", LevelDeviceEnumeration, fakeFeatures{FeatureAudioOutput: true}, []DeviceInfo{earpiece, speaker}, true},
		{"enumeration speaker listed last", LevelStructuredFocus, fakeFeatures{FeatureAudioOutput: true}, []DeviceInfo{wired, earpiece, speaker}, true},
		{"enumeration without speaker", LevelStructuredFocus, fakeFeatures{FeatureAudioOutput: true}, []DeviceInfo{earpiece, wired}, false},
		{"enumeration with empty list", LevelCommunicationDevice, fakeFeatures{FeatureAudioOutput: true}, nil, false},
		{"no audio output feature", LevelCommunicationDevice, fakeFeatures{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newFakeSystem()
			sys.outputs = tt.outputs
			p := NewProber(sys, tt.features, tt.level.Capabilities())
			assert.Equal(t, tt.want, p.HasSpeakerphone())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		version string
		want    Level
	}{
		{"5.0", 21},
		{"6", 23},
		{"8.1", 27},
		{"v12", 31},
		{"12.1.3", 32},
		{"14.0.1", 34},
		{"16", 35},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, err := ParseLevel(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("4.4")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = ParseLevel("lollipop")
	assert.Error(t, err)
}

func TestLevelCapabilities(t *testing.T) {
	assert.Equal(t, Capabilities{}, LevelLegacy.Capabilities())
	assert.Equal(t, Capabilities{DeviceEnumeration: true}, LevelDeviceEnumeration.Capabilities())
	assert.Equal(t, Capabilities{DeviceEnumeration: true, StructuredFocus: true}, Level(30).Capabilities())
	assert.Equal(t, Capabilities{DeviceEnumeration: true, StructuredFocus: true, CommunicationDevice: true},
		LevelCommunicationDevice.Capabilities())
}

func TestKindMatches(t *testing.T) {
	tests := []struct {
		kind    Kind
		matches []HardwareType
	}{
		{KindBluetoothHeadset, []HardwareType{TypeBluetoothSCO, TypeBluetoothA2DP}},
		{KindEarpiece, []HardwareType{TypeBuiltinEarpiece}},
		{KindSpeakerphone, []HardwareType{TypeBuiltinSpeaker}},
		{KindWiredHeadset, []HardwareType{TypeWiredHeadset, TypeWiredHeadphones}},
	}
	all := []HardwareType{
		TypeBuiltinEarpiece, TypeBuiltinSpeaker, TypeWiredHeadset, TypeWiredHeadphones,
		TypeBluetoothSCO, TypeBluetoothA2DP, TypeUSBHeadset, TypeHDMI, TypeTelephony,
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			for _, hw := range all {
				want := false
				for _, m := range tt.matches {
					if m == hw {
						want = true
					}
				}
				assert.Equal(t, want, tt.kind.Matches(hw), "hardware type %s", hw)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("wired_headset")
	require.NoError(t, err)
	assert.Equal(t, KindWiredHeadset, k)

	_, err = ParseKind("usb")
	assert.Error(t, err)
}

func TestBluetoothHeadsetName(t *testing.T) {
	assert.Equal(t, "Bluetooth", BluetoothHeadset("").Name)
	assert.Equal(t, "Jabra Evolve", BluetoothHeadset("Jabra Evolve").Name)
}
