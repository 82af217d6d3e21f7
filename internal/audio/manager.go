// Package audio provides audio route selection and the audio focus lifecycle
// for voice sessions: device probing, focus acquire and release, route
// activation, and save/restore of the ambient OS audio state.
package audio

import (
	"cmp"
	"errors"
	"log/slog"
)

// Sentinel errors for precondition violations.
var (
	ErrNotCached     = errors.New("audio state was not cached")
	ErrAlreadyCached = errors.New("audio state already cached")
)

// Options configures the values a Manager applies when a session starts.
type Options struct {
	Mode        Mode
	FocusGain   FocusGain
	StreamType  StreamType
	Usage       Usage
	ContentType ContentType

	// Strict panics on precondition violations instead of logging them.
	Strict bool
}

// DefaultOptions returns the options for a voice communication session.
func DefaultOptions() Options {
	return Options{
		Mode:        ModeInCommunication,
		FocusGain:   FocusGainTransient,
		StreamType:  StreamVoiceCall,
		Usage:       UsageVoiceCommunication,
		ContentType: ContentTypeSpeech,
	}
}

// Manager switches audio routes and owns the focus and ambient state of a
// session. It is not safe for concurrent use; callers serialize access.
type Manager struct {
	system   System
	caps     Capabilities
	listener FocusChangeListener
	opts     Options

	saved     AmbientState
	cached    bool
	grant     FocusGrant
	focusHeld bool
	focus     FocusResult
}

// NewManager returns a Manager. Zero-valued options fall back to DefaultOptions.
// The listener receives focus changes; it may be nil.
func NewManager(system System, caps Capabilities, listener FocusChangeListener, opts Options) *Manager {
	def := DefaultOptions()
	opts.Mode = cmp.Or(opts.Mode, def.Mode)
	opts.FocusGain = cmp.Or(opts.FocusGain, def.FocusGain)
	opts.StreamType = cmp.Or(opts.StreamType, def.StreamType)
	opts.Usage = cmp.Or(opts.Usage, def.Usage)
	opts.ContentType = cmp.Or(opts.ContentType, def.ContentType)

	if listener == nil {
		listener = &nopFocusListener{}
	}

	return &Manager{
		system:   system,
		caps:     caps,
		listener: listener,
		opts:     opts,
	}
}

// Capabilities returns the capabilities the Manager was built with.
func (m *Manager) Capabilities() Capabilities {
	return m.caps
}

// SetAudioFocus requests audio focus and then sets the configured audio mode.
// The mode is set even when focus is denied. If focus is already held no new
// request is made.
func (m *Manager) SetAudioFocus() FocusResult {
	if m.focusHeld {
		slog.Debug("audio focus already held", "result", m.focus)
	} else {
		if m.caps.StructuredFocus {
			req := &FocusRequest{
				Gain:        m.opts.FocusGain,
				Usage:       m.opts.Usage,
				ContentType: m.opts.ContentType,
				Listener:    m.listener,
			}
			m.focus = m.system.RequestFocus(req)
			m.grant = HandleGrant{Request: req}
		} else {
			m.focus = m.system.RequestLegacyFocus(m.listener, m.opts.StreamType, m.opts.FocusGain)
			m.grant = ListenerGrant{Listener: m.listener}
		}
		m.focusHeld = true

		if m.focus != FocusGranted {
			slog.Warn("audio focus not granted", "result", m.focus)
		}
	}

	m.system.SetMode(m.opts.Mode)
	return m.focus
}

// SetCommunicationDevice routes audio to the first available communication
// device matching d. It returns false when no device matches or the platform
// lacks the primitive; nothing is changed in that case.
func (m *Manager) SetCommunicationDevice(d Device) bool {
	if !m.caps.CommunicationDevice {
		slog.Error("communication device selection not supported", "device", d.Name)
		return false
	}

	for _, info := range m.system.CommunicationDevices() {
		if !d.Kind.Matches(info.Type) {
			continue
		}
		if !m.system.SetCommunicationDevice(info) {
			slog.Warn("communication device rejected", "device", d.Name, "type", info.Type, "id", info.ID)
			return false
		}
		return true
	}

	slog.Warn("no communication device available", "device", d.Name, "kind", d.Kind)
	return false
}

// ClearCommunicationDevice reverts to the OS default route.
func (m *Manager) ClearCommunicationDevice() {
	if !m.caps.CommunicationDevice {
		slog.Error("communication device selection not supported")
		return
	}
	m.system.ClearCommunicationDevice()
}

// EnableBluetoothSco starts or stops the Bluetooth SCO link.
func (m *Manager) EnableBluetoothSco(enable bool) {
	if enable {
		m.system.StartBluetoothSco()
	} else {
		m.system.StopBluetoothSco()
	}
}

// EnableSpeakerphone turns the loudspeaker on or off.
func (m *Manager) EnableSpeakerphone(enable bool) {
	m.system.SetSpeakerphoneOn(enable)
}

// Mute sets the microphone mute state.
func (m *Manager) Mute(muted bool) {
	m.system.SetMicrophoneMute(muted)
}

// CacheAudioState saves the current mode, mute and speakerphone state. It must
// be called once per session before any mutation.
func (m *Manager) CacheAudioState() error {
	if m.cached {
		return m.violation(ErrAlreadyCached)
	}

	m.saved = AmbientState{
		Mode:            m.system.Mode(),
		MicrophoneMuted: m.system.MicrophoneMute(),
		SpeakerphoneOn:  m.system.SpeakerphoneOn(),
	}
	m.cached = true
	return nil
}

// RestoreAudioState writes back the cached state, mode first, and releases
// audio focus.
func (m *Manager) RestoreAudioState() error {
	if !m.cached {
		return m.violation(ErrNotCached)
	}

	m.system.SetMode(m.saved.Mode)
	m.Mute(m.saved.MicrophoneMuted)
	m.EnableSpeakerphone(m.saved.SpeakerphoneOn)
	m.cached = false

	m.releaseFocus()
	return nil
}

// releaseFocus abandons the focus grant taken by SetAudioFocus.
func (m *Manager) releaseFocus() {
	if !m.focusHeld {
		return
	}

	switch g := m.grant.(type) {
	case HandleGrant:
		m.system.AbandonFocusRequest(g.Request)
		m.grant = nil
	case ListenerGrant:
		// The listener is kept: it remains the release key for later sessions.
		m.system.AbandonLegacyFocus(g.Listener)
	}
	m.focusHeld = false
}

// CachedState returns the saved ambient state and whether a snapshot is pending.
func (m *Manager) CachedState() (AmbientState, bool) {
	return m.saved, m.cached
}

// Grant returns the current focus grant, which may be nil.
func (m *Manager) Grant() FocusGrant {
	return m.grant
}

// FocusHeld reports whether a focus grant is waiting to be released.
func (m *Manager) FocusHeld() bool {
	return m.focusHeld
}

// CurrentState reads the live OS audio state.
func (m *Manager) CurrentState() AmbientState {
	return AmbientState{
		Mode:            m.system.Mode(),
		MicrophoneMuted: m.system.MicrophoneMute(),
		SpeakerphoneOn:  m.system.SpeakerphoneOn(),
	}
}

func (m *Manager) violation(err error) error {
	if m.opts.Strict {
		panic(err)
	}
	slog.Error("audio precondition violated", "error", err)
	return err
}
