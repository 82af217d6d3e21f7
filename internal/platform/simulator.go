// Package platform provides an in-process simulation of a mobile OS audio
// subsystem, used to run the switcher without a device underneath.
package platform

import (
	"slices"
	"sync"

	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
)

// communicationTypes are the hardware types the OS offers as communication devices.
var communicationTypes = []audio.HardwareType{
	audio.TypeBuiltinEarpiece,
	audio.TypeBuiltinSpeaker,
	audio.TypeWiredHeadset,
	audio.TypeWiredHeadphones,
	audio.TypeBluetoothSCO,
	audio.TypeUSBHeadset,
}

// Config describes the simulated platform.
type Config struct {
	Level       audio.Level
	Telephony   bool
	AudioOutput bool
	// Devices are attached at start, in enumeration order.
	Devices []DeviceSpec
	// Ambient is the OS audio state before any session.
	Ambient audio.AmbientState
	// DenyFocus makes every focus request fail.
	DenyFocus bool
}

// DeviceSpec describes a device to attach.
type DeviceSpec struct {
	Type audio.HardwareType `json:"type"`
	Name string             `json:"name,omitempty"`
}

// State is a point-in-time copy of the simulated OS audio state.
type State struct {
	Mode                audio.Mode         `json:"mode"`
	MicrophoneMuted     bool               `json:"microphone_muted"`
	SpeakerphoneOn      bool               `json:"speakerphone_on"`
	BluetoothScoOn      bool               `json:"bluetooth_sco_on"`
	CommunicationDevice *audio.DeviceInfo  `json:"communication_device,omitempty"`
	FocusHeld           bool               `json:"focus_held"`
	Interrupted         bool               `json:"interrupted"`
	Devices             []audio.DeviceInfo `json:"devices"`
}

// Simulator implements audio.System and audio.FeatureSet in memory.
// It is safe for concurrent use.
type Simulator struct {
	mu         sync.Mutex
	level      audio.Level
	features   map[audio.Feature]bool
	devices    []audio.DeviceInfo
	nextID     int
	mode       audio.Mode
	muted      bool
	speaker    bool
	sco        bool
	commDevice *audio.DeviceInfo
	denyFocus  bool

	// focusStack holds focus owners, the current holder last. An owner is a
	// *audio.FocusRequest or a legacy audio.FocusChangeListener.
	focusStack  []any
	interruptor *audio.FocusRequest

	watchers  map[int]func(audio.DeviceEvent)
	nextWatch int
}

// New returns a Simulator with the given configuration.
func New(cfg Config) *Simulator {
	s := &Simulator{
		level: cfg.Level,
		features: map[audio.Feature]bool{
			audio.FeatureTelephony:   cfg.Telephony,
			audio.FeatureAudioOutput: cfg.AudioOutput,
		},
		nextID:    1,
		mode:      cfg.Ambient.Mode,
		muted:     cfg.Ambient.MicrophoneMuted,
		speaker:   cfg.Ambient.SpeakerphoneOn,
		denyFocus: cfg.DenyFocus,
		watchers:  make(map[int]func(audio.DeviceEvent)),
	}
	if s.mode == "" {
		s.mode = audio.ModeNormal
	}
	for _, d := range cfg.Devices {
		s.attachLocked(d)
	}
	return s
}

// Level returns the simulated capability level.
func (s *Simulator) Level() audio.Level {
	return s.level
}

// HasFeature implements audio.FeatureSet.
func (s *Simulator) HasFeature(f audio.Feature) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features[f]
}

// OutputDevices implements audio.System.
func (s *Simulator) OutputDevices() []audio.DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.devices)
}

// CommunicationDevices implements audio.System.
func (s *Simulator) CommunicationDevices() []audio.DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []audio.DeviceInfo
	for _, d := range s.devices {
		if slices.Contains(communicationTypes, d.Type) {
			out = append(out, d)
		}
	}
	return out
}

// RequestFocus implements audio.System.
func (s *Simulator) RequestFocus(req *audio.FocusRequest) audio.FocusResult {
	return s.grantFocus(req, req.Gain)
}

// AbandonFocusRequest implements audio.System.
func (s *Simulator) AbandonFocusRequest(req *audio.FocusRequest) audio.FocusResult {
	return s.abandonFocus(req)
}

// RequestLegacyFocus implements audio.System.
func (s *Simulator) RequestLegacyFocus(l audio.FocusChangeListener, _ audio.StreamType, gain audio.FocusGain) audio.FocusResult {
	return s.grantFocus(l, gain)
}

// AbandonLegacyFocus implements audio.System.
func (s *Simulator) AbandonLegacyFocus(l audio.FocusChangeListener) audio.FocusResult {
	return s.abandonFocus(l)
}

// Interrupt requests focus on behalf of another application, as an incoming
// call or a navigation prompt would. The previous holder is told it lost focus.
func (s *Simulator) Interrupt(gain audio.FocusGain) audio.FocusResult {
	s.mu.Lock()
	if s.interruptor == nil {
		s.interruptor = &audio.FocusRequest{Gain: gain, Usage: audio.UsageMedia}
	}
	req := s.interruptor
	req.Gain = gain
	s.mu.Unlock()

	result := s.grantFocus(req, gain)
	if result != audio.FocusGranted {
		s.mu.Lock()
		s.interruptor = nil
		s.mu.Unlock()
	}
	return result
}

// EndInterruption abandons the focus taken by Interrupt. The owner below it
// regains focus. It reports whether an interruption was active.
func (s *Simulator) EndInterruption() bool {
	s.mu.Lock()
	req := s.interruptor
	s.interruptor = nil
	s.mu.Unlock()

	if req == nil {
		return false
	}
	s.abandonFocus(req)
	return true
}

func (s *Simulator) grantFocus(owner any, gain audio.FocusGain) audio.FocusResult {
	s.mu.Lock()
	if s.denyFocus {
		s.mu.Unlock()
		return audio.FocusFailed
	}
	var previous any
	if n := len(s.focusStack); n > 0 && s.focusStack[n-1] != owner {
		previous = s.focusStack[n-1]
	}
	s.focusStack = slices.DeleteFunc(s.focusStack, func(o any) bool { return o == owner })
	s.focusStack = append(s.focusStack, owner)
	s.mu.Unlock()

	if l := focusListener(previous); l != nil {
		l.OnAudioFocusChange(lossFor(gain))
	}
	return audio.FocusGranted
}

func (s *Simulator) abandonFocus(owner any) audio.FocusResult {
	s.mu.Lock()
	n := len(s.focusStack)
	wasHolder := n > 0 && s.focusStack[n-1] == owner
	s.focusStack = slices.DeleteFunc(s.focusStack, func(o any) bool { return o == owner })
	var next any
	if wasHolder && len(s.focusStack) > 0 {
		next = s.focusStack[len(s.focusStack)-1]
	}
	s.mu.Unlock()

	if l := focusListener(next); l != nil {
		l.OnAudioFocusChange(audio.FocusGained)
	}
	return audio.FocusGranted
}

func focusListener(owner any) audio.FocusChangeListener {
	switch o := owner.(type) {
	case *audio.FocusRequest:
		return o.Listener
	case audio.FocusChangeListener:
		return o
	}
	return nil
}

// lossFor returns the change delivered to a holder displaced by a request of
// the given gain.
func lossFor(gain audio.FocusGain) audio.FocusChange {
	switch gain {
	case audio.FocusGainTransient, audio.FocusGainTransientExclusive:
		return audio.FocusLostTransient
	case audio.FocusGainTransientMayDuck:
		return audio.FocusLostTransientCanDuck
	default:
		return audio.FocusLost
	}
}

// Mode implements audio.System.
func (s *Simulator) Mode() audio.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode implements audio.System.
func (s *Simulator) SetMode(m audio.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// MicrophoneMute implements audio.System.
func (s *Simulator) MicrophoneMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// SetMicrophoneMute implements audio.System.
func (s *Simulator) SetMicrophoneMute(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// SpeakerphoneOn implements audio.System.
func (s *Simulator) SpeakerphoneOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaker
}

// SetSpeakerphoneOn implements audio.System.
func (s *Simulator) SetSpeakerphoneOn(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaker = on
}

// StartBluetoothSco implements audio.System.
func (s *Simulator) StartBluetoothSco() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sco = true
}

// StopBluetoothSco implements audio.System.
func (s *Simulator) StopBluetoothSco() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sco = false
}

// SetCommunicationDevice implements audio.System.
func (s *Simulator) SetCommunicationDevice(d audio.DeviceInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.devices, d) || !slices.Contains(communicationTypes, d.Type) {
		return false
	}
	s.commDevice = &d
	return true
}

// ClearCommunicationDevice implements audio.System.
func (s *Simulator) ClearCommunicationDevice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commDevice = nil
}

// SetDenyFocus controls whether focus requests are refused.
func (s *Simulator) SetDenyFocus(deny bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denyFocus = deny
}

// State returns a copy of the simulated OS audio state.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Mode:            s.mode,
		MicrophoneMuted: s.muted,
		SpeakerphoneOn:  s.speaker,
		BluetoothScoOn:  s.sco,
		FocusHeld:       len(s.focusStack) > 0,
		Interrupted:     s.interruptor != nil,
		Devices:         slices.Clone(s.devices),
	}
	if s.commDevice != nil {
		d := *s.commDevice
		st.CommunicationDevice = &d
	}
	return st
}

// Watch registers fn for hot-plug notifications and returns a function that
// removes it. Notifications are delivered synchronously, outside internal locks.
func (s *Simulator) Watch(fn func(audio.DeviceEvent)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// Plug attaches a device and notifies watchers.
func (s *Simulator) Plug(spec DeviceSpec) audio.DeviceInfo {
	s.mu.Lock()
	info := s.attachLocked(spec)
	watchers := s.watchersLocked()
	s.mu.Unlock()

	if kind, ok := audio.KindOf(spec.Type); ok {
		notify(watchers, audio.DeviceEvent{Type: audio.DeviceConnected, Kind: kind, Name: spec.Name})
	}
	return info
}

// Unplug detaches the first device of hardware type t and notifies watchers
// once no device of the same route kind remains. When the removed device was
// the communication device and the kind is still present, watchers receive a
// DeviceRouteCleared event instead. It reports whether a device was removed.
func (s *Simulator) Unplug(t audio.HardwareType) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.devices, func(d audio.DeviceInfo) bool { return d.Type == t })
	if i == -1 {
		s.mu.Unlock()
		return false
	}
	removed := s.devices[i]
	s.devices = slices.Delete(s.devices, i, i+1)
	cleared := s.commDevice != nil && *s.commDevice == removed
	if cleared {
		s.commDevice = nil
	}

	kind, hasKind := audio.KindOf(t)
	remaining := hasKind && slices.ContainsFunc(s.devices, func(d audio.DeviceInfo) bool {
		return kind.Matches(d.Type)
	})
	watchers := s.watchersLocked()
	s.mu.Unlock()

	switch {
	case hasKind && !remaining:
		notify(watchers, audio.DeviceEvent{Type: audio.DeviceDisconnected, Kind: kind, Name: removed.ProductName})
	case cleared:
		notify(watchers, audio.DeviceEvent{Type: audio.DeviceRouteCleared, Kind: kind, Name: removed.ProductName})
	}
	return true
}

func (s *Simulator) attachLocked(spec DeviceSpec) audio.DeviceInfo {
	info := audio.DeviceInfo{ID: s.nextID, Type: spec.Type, ProductName: spec.Name}
	s.nextID++
	s.devices = append(s.devices, info)
	return info
}

func (s *Simulator) watchersLocked() []func(audio.DeviceEvent) {
	out := make([]func(audio.DeviceEvent), 0, len(s.watchers))
	for id := range s.nextWatch {
		if fn, ok := s.watchers[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(watchers []func(audio.DeviceEvent), ev audio.DeviceEvent) {
	for _, fn := range watchers {
		fn(ev)
	}
}
