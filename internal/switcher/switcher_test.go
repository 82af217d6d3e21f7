package switcher

import (
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/platform"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type selection struct {
	available []audio.Device
	selected  *audio.Device
}

type recorder struct {
	selections  []selection
	activated   []types.SessionReport
	deactivated []types.SessionReport
	routes      []types.RouteChange
	focus       []audio.FocusChange
}

func (r *recorder) listener(available []audio.Device, selected *audio.Device) {
	r.selections = append(r.selections, selection{available, selected})
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnActivated:   func(rep types.SessionReport) { r.activated = append(r.activated, rep) },
		OnDeactivated: func(rep types.SessionReport) { r.deactivated = append(r.deactivated, rep) },
		OnRouteChange: func(_ string, c types.RouteChange) { r.routes = append(r.routes, c) },
		OnFocusChange: func(c audio.FocusChange) { r.focus = append(r.focus, c) },
	}
}

func (r *recorder) last() selection {
	return r.selections[len(r.selections)-1]
}

func newSimulator(level audio.Level, devices ...audio.HardwareType) *platform.Simulator {
	specs := make([]platform.DeviceSpec, 0, len(devices))
	for _, t := range devices {
		specs = append(specs, platform.DeviceSpec{Type: t})
	}
	return platform.New(platform.Config{
		Level:       level,
		Telephony:   true,
		AudioOutput: true,
		Devices:     specs,
		Ambient:     audio.AmbientState{Mode: audio.ModeNormal, MicrophoneMuted: true},
	})
}

func newPhone() *platform.Simulator {
	return newSimulator(audio.LevelCommunicationDevice, audio.TypeBuiltinEarpiece, audio.TypeBuiltinSpeaker)
}

func newSwitcher(sim *platform.Simulator, rec *recorder, preferred ...audio.Kind) *Switcher {
	sw := New(sim, sim, sim.Level(), Options{Preferred: preferred, Hooks: rec.hooks()})
	sim.Watch(sw.HandleDeviceEvent)
	return sw
}

func devicePtr(d audio.Device) *audio.Device { return &d }

func TestStartSelectsPreferredDevice(t *testing.T) {
	rec := &recorder{}
	sw := newSwitcher(newPhone(), rec)

	sw.Start(rec.listener)

	assert.Equal(t, types.StateStarted, sw.State())
	require.Len(t, rec.selections, 1)
	assert.Equal(t, []audio.Device{audio.Earpiece(), audio.Speakerphone()}, rec.last().available)
	assert.Equal(t, devicePtr(audio.Earpiece()), rec.last().selected)
}

func TestStartIsIdempotent(t *testing.T) {
	rec := &recorder{}
	sw := newSwitcher(newPhone(), rec)

	sw.Start(rec.listener)
	sw.Start(rec.listener)

	assert.Len(t, rec.selections, 1)
}

func TestStartDetectsAttachedPeripherals(t *testing.T) {
	sim := newSimulator(audio.LevelCommunicationDevice,
		audio.TypeBuiltinEarpiece, audio.TypeBuiltinSpeaker, audio.TypeWiredHeadphones)
	rec := &recorder{}
	sw := newSwitcher(sim, rec)

	sw.Start(rec.listener)

	assert.Equal(t, []audio.Device{audio.WiredHeadset(), audio.Speakerphone()}, sw.AvailableDevices())
	assert.Equal(t, devicePtr(audio.WiredHeadset()), sw.SelectedDevice())
}

func TestPreferredOrder(t *testing.T) {
	rec := &recorder{}
	sw := newSwitcher(newPhone(), rec, audio.KindSpeakerphone, audio.KindEarpiece)

	sw.Start(rec.listener)

	assert.Equal(t, []audio.Device{audio.Speakerphone(), audio.Earpiece()}, sw.AvailableDevices())
	assert.Equal(t, devicePtr(audio.Speakerphone()), sw.SelectedDevice())
}

func TestSetPreferredReorders(t *testing.T) {
	rec := &recorder{}
	sw := newSwitcher(newPhone(), rec)
	sw.Start(rec.listener)
	require.NoError(t, sw.Activate())

	sw.SetPreferred([]audio.Kind{audio.KindSpeakerphone})

	assert.Equal(t, []audio.Device{audio.Speakerphone(), audio.Earpiece()}, rec.last().available)
	require.NotEmpty(t, rec.routes)
	last := rec.routes[len(rec.routes)-1]
	assert.Equal(t, audio.KindSpeakerphone, last.Device.Kind)
	assert.Equal(t, types.ReasonPreference, last.Reason)

	sw.SetPreferred(nil)
	assert.Equal(t, devicePtr(audio.Earpiece()), sw.SelectedDevice())
}

func TestHotPlugReselects(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)

	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothSCO, Name: "Jabra"})
	assert.Equal(t, []audio.Device{audio.BluetoothHeadset("Jabra"), audio.Earpiece(), audio.Speakerphone()},
		rec.last().available)
	assert.Equal(t, devicePtr(audio.BluetoothHeadset("Jabra")), rec.last().selected)

	sim.Plug(platform.DeviceSpec{Type: audio.TypeWiredHeadset})
	assert.Equal(t, []audio.Device{audio.BluetoothHeadset("Jabra"), audio.WiredHeadset(), audio.Speakerphone()},
		rec.last().available)

	sim.Unplug(audio.TypeBluetoothSCO)
	assert.Equal(t, devicePtr(audio.WiredHeadset()), rec.last().selected)

	sim.Unplug(audio.TypeWiredHeadset)
	assert.Equal(t, devicePtr(audio.Earpiece()), rec.last().selected)
	assert.Len(t, rec.selections, 5)
}

func TestListenerFiresOnlyOnChange(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)

	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothSCO, Name: "Buds"})
	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothA2DP, Name: "Buds"})

	assert.Len(t, rec.selections, 2)
}

func TestEventsIgnoredWhileStopped(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)

	sim.Plug(platform.DeviceSpec{Type: audio.TypeWiredHeadset})

	assert.Empty(t, rec.selections)
	assert.Empty(t, sw.AvailableDevices())
}

func TestSelectDevice(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)

	assert.ErrorIs(t, sw.SelectDevice(devicePtr(audio.Speakerphone())), ErrNotStarted)

	sw.Start(rec.listener)
	assert.ErrorIs(t, sw.SelectDevice(devicePtr(audio.WiredHeadset())), ErrDeviceUnavailable)

	require.NoError(t, sw.SelectDevice(devicePtr(audio.Speakerphone())))
	assert.Equal(t, devicePtr(audio.Speakerphone()), sw.SelectedDevice())

	// User selection survives a more preferred device appearing.
	sim.Plug(platform.DeviceSpec{Type: audio.TypeWiredHeadset})
	assert.Equal(t, devicePtr(audio.Speakerphone()), sw.SelectedDevice())

	require.NoError(t, sw.SelectDevice(nil))
	assert.Equal(t, devicePtr(audio.WiredHeadset()), sw.SelectedDevice())
}

func TestUserSelectionFallsBackWhenRemoved(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)

	sim.Plug(platform.DeviceSpec{Type: audio.TypeWiredHeadset})
	require.NoError(t, sw.SelectDevice(devicePtr(audio.Speakerphone())))
	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothSCO, Name: "Car"})
	assert.Equal(t, devicePtr(audio.Speakerphone()), sw.SelectedDevice())

	// Selecting the Bluetooth headset and then losing it falls back to the top device.
	require.NoError(t, sw.SelectDevice(devicePtr(audio.BluetoothHeadset(""))))
	assert.Equal(t, devicePtr(audio.BluetoothHeadset("Car")), sw.SelectedDevice())
	sim.Unplug(audio.TypeBluetoothSCO)
	assert.Equal(t, devicePtr(audio.WiredHeadset()), sw.SelectedDevice())
}

func TestActivateRoutesWithCommunicationDevice(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)

	require.NoError(t, sw.Activate())

	st := sim.State()
	assert.Equal(t, types.StateActivated, sw.State())
	assert.Equal(t, audio.ModeInCommunication, st.Mode)
	assert.False(t, st.MicrophoneMuted)
	assert.True(t, st.FocusHeld)
	require.NotNil(t, st.CommunicationDevice)
	assert.Equal(t, audio.TypeBuiltinEarpiece, st.CommunicationDevice.Type)

	require.Len(t, rec.activated, 1)
	assert.NotEmpty(t, rec.activated[0].ID)
	assert.Equal(t, audio.FocusGranted, rec.activated[0].Focus)
	assert.Equal(t, sw.Status().SessionID, rec.activated[0].ID)
	require.Len(t, rec.routes, 1)
	assert.Equal(t, types.ReasonActivate, rec.routes[0].Reason)
	assert.True(t, rec.routes[0].Applied)
}

func TestDeactivateRestoresAmbientState(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sw.now = func() time.Time { return start }
	require.NoError(t, sw.Activate())
	sim.Plug(platform.DeviceSpec{Type: audio.TypeWiredHeadset})
	sw.now = func() time.Time { return start.Add(90 * time.Second) }
	sw.Deactivate()

	st := sim.State()
	assert.Equal(t, types.StateStarted, sw.State())
	assert.Equal(t, audio.ModeNormal, st.Mode)
	assert.True(t, st.MicrophoneMuted)
	assert.False(t, st.FocusHeld)
	assert.Nil(t, st.CommunicationDevice)

	require.Len(t, rec.deactivated, 1)
	report := rec.deactivated[0]
	assert.Equal(t, report.Saved, report.Restored)
	assert.Equal(t, 90*time.Second, report.Duration())
	assert.Empty(t, report.Error)
	require.Len(t, report.Routes, 2)
	assert.Equal(t, types.ReasonDeviceConnected, report.Routes[1].Reason)
	assert.Equal(t, audio.WiredHeadset(), report.Routes[1].Device)
	assert.Empty(t, sw.Status().SessionID)

	sw.Deactivate()
	assert.Len(t, rec.deactivated, 1)
}

func TestActivateTwiceReappliesRoute(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)

	require.NoError(t, sw.Activate())
	sim.ClearCommunicationDevice()
	require.NoError(t, sw.Activate())

	assert.Len(t, rec.activated, 1)
	assert.Len(t, rec.routes, 2)
	assert.NotNil(t, sim.State().CommunicationDevice)
}

func TestActivateRequiresStart(t *testing.T) {
	sw := newSwitcher(newPhone(), &recorder{})
	assert.ErrorIs(t, sw.Activate(), ErrNotStarted)
	assert.ErrorIs(t, sw.Mute(true), ErrNotActivated)
}

func TestLegacyRouting(t *testing.T) {
	sim := platform.New(platform.Config{
		Level:     audio.LevelLegacy,
		Telephony: true,
		Ambient:   audio.AmbientState{Mode: audio.ModeNormal, SpeakerphoneOn: true},
	})
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)
	assert.Equal(t, []audio.Device{audio.Earpiece(), audio.Speakerphone()}, sw.AvailableDevices())

	require.NoError(t, sw.Activate())
	st := sim.State()
	assert.False(t, st.SpeakerphoneOn)
	assert.False(t, st.BluetoothScoOn)

	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothSCO, Name: "Headset"})
	st = sim.State()
	assert.False(t, st.SpeakerphoneOn)
	assert.True(t, st.BluetoothScoOn)

	require.NoError(t, sw.SelectDevice(devicePtr(audio.Speakerphone())))
	st = sim.State()
	assert.True(t, st.SpeakerphoneOn)
	assert.False(t, st.BluetoothScoOn)

	require.NoError(t, sw.SelectDevice(devicePtr(audio.BluetoothHeadset(""))))
	sw.Deactivate()
	st = sim.State()
	assert.False(t, st.BluetoothScoOn)
	assert.True(t, st.SpeakerphoneOn)
	assert.Equal(t, audio.ModeNormal, st.Mode)
	assert.False(t, st.FocusHeld)
}

func TestFocusDeniedStillActivates(t *testing.T) {
	sim := newPhone()
	sim.SetDenyFocus(true)
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)

	require.NoError(t, sw.Activate())

	assert.Equal(t, audio.ModeInCommunication, sim.State().Mode)
	require.Len(t, rec.activated, 1)
	assert.Equal(t, audio.FocusFailed, rec.activated[0].Focus)
}

func TestStopDeactivates(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)
	require.NoError(t, sw.Activate())

	sw.Stop()

	assert.Equal(t, types.StateStopped, sw.State())
	assert.Len(t, rec.deactivated, 1)
	assert.False(t, sim.State().FocusHeld)
	assert.Equal(t, audio.ModeNormal, sim.State().Mode)

	// A restart begins a fresh session cleanly.
	sw.Start(rec.listener)
	require.NoError(t, sw.Activate())
	assert.Len(t, rec.activated, 2)
	assert.NotEqual(t, rec.activated[0].ID, rec.activated[1].ID)
}

func TestMute(t *testing.T) {
	sim := newPhone()
	sw := newSwitcher(sim, &recorder{})
	sw.Start(nil)
	require.NoError(t, sw.Activate())

	require.NoError(t, sw.Mute(true))
	assert.True(t, sim.State().MicrophoneMuted)
	require.NoError(t, sw.Mute(false))
	assert.False(t, sim.State().MicrophoneMuted)
}

func TestStatus(t *testing.T) {
	sw := newSwitcher(newPhone(), &recorder{})
	st := sw.Status()
	assert.Equal(t, types.StateStopped, st.State)
	assert.Empty(t, st.Available)
	assert.Nil(t, st.Selected)
	assert.Equal(t, audio.LevelCommunicationDevice, st.Level)
	assert.True(t, st.Capabilities.CommunicationDevice)
}

func TestFocusChangesReachHooks(t *testing.T) {
	tests := []struct {
		name  string
		level audio.Level
	}{
		{"structured request", audio.LevelCommunicationDevice},
		{"legacy listener", audio.LevelDeviceEnumeration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSimulator(tt.level, audio.TypeBuiltinEarpiece, audio.TypeBuiltinSpeaker)
			rec := &recorder{}
			sw := newSwitcher(sim, rec)
			sw.Start(rec.listener)
			require.NoError(t, sw.Activate())

			require.Equal(t, audio.FocusGranted, sim.Interrupt(audio.FocusGainTransient))
			require.True(t, sim.EndInterruption())

			assert.Equal(t, []audio.FocusChange{audio.FocusLostTransient, audio.FocusGained}, rec.focus)
		})
	}
}

func TestRouteFallsBackWhenCommunicationDeviceDrops(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)
	require.NoError(t, sw.Activate())

	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothSCO, Name: "Buds"})
	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothA2DP, Name: "Buds"})
	require.NotNil(t, sim.State().CommunicationDevice)
	assert.Equal(t, audio.TypeBluetoothSCO, sim.State().CommunicationDevice.Type)

	sim.Unplug(audio.TypeBluetoothSCO)

	st := sim.State()
	require.NotNil(t, st.CommunicationDevice)
	assert.Equal(t, audio.TypeBuiltinEarpiece, st.CommunicationDevice.Type)
	assert.Equal(t, devicePtr(audio.Earpiece()), sw.SelectedDevice())
	assert.Equal(t, devicePtr(audio.Earpiece()), sw.Status().Selected)
	assert.Equal(t, devicePtr(audio.Earpiece()), rec.last().selected)

	last := rec.routes[len(rec.routes)-1]
	assert.Equal(t, audio.Earpiece(), last.Device)
	assert.Equal(t, types.ReasonRouteLost, last.Reason)
	assert.True(t, last.Applied)

	// The SCO link coming back restores the Bluetooth route.
	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothSCO, Name: "Buds"})
	assert.Equal(t, devicePtr(audio.BluetoothHeadset("Buds")), sw.SelectedDevice())
	assert.Equal(t, audio.TypeBluetoothSCO, sim.State().CommunicationDevice.Type)

	// Deactivation reports the preferred device again.
	sw.Deactivate()
	assert.Equal(t, devicePtr(audio.BluetoothHeadset("Buds")), sw.SelectedDevice())
}

func TestBluetoothNameFollowsRoutedDevice(t *testing.T) {
	sim := newPhone()
	rec := &recorder{}
	sw := newSwitcher(sim, rec)
	sw.Start(rec.listener)

	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothSCO, Name: "Car"})
	sim.Plug(platform.DeviceSpec{Type: audio.TypeBluetoothSCO, Name: "Buds"})

	assert.Equal(t, devicePtr(audio.BluetoothHeadset("Car")), sw.SelectedDevice())

	require.NoError(t, sw.Activate())
	st := sim.State()
	require.NotNil(t, st.CommunicationDevice)
	assert.Equal(t, "Car", st.CommunicationDevice.ProductName)
	assert.Equal(t, "Car", rec.routes[len(rec.routes)-1].Device.Name)
}
