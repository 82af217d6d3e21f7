// Package switcher selects the audio route for a voice session and keeps it
// current as devices come and go.
package switcher

import (
	"cmp"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
)

// Sentinel errors returned by Switcher operations.
var (
	ErrNotStarted        = errors.New("switcher not started")
	ErrNotActivated      = errors.New("no active session")
	ErrDeviceUnavailable = errors.New("audio device not available")
)

// Listener receives the available devices and the selected device whenever
// either changes. Selected is nil when nothing is available.
type Listener func(available []audio.Device, selected *audio.Device)

// Hooks receive session notifications. Nil hooks are skipped. Hooks run
// after the switcher has released its lock and may call back into it.
type Hooks struct {
	OnActivated   func(report types.SessionReport)
	OnDeactivated func(report types.SessionReport)
	OnRouteChange func(sessionID string, change types.RouteChange)
	OnFocusChange func(change audio.FocusChange)
}

// Options configures a Switcher.
type Options struct {
	// Preferred orders the devices. See PreferredKinds.
	Preferred []audio.Kind
	Audio     audio.Options
	Hooks     Hooks
}

// Switcher manages the route of a single voice session. It is safe for
// concurrent use.
type Switcher struct {
	mu sync.Mutex

	system    audio.System
	caps      audio.Capabilities
	level     audio.Level
	prober    *audio.Prober
	manager   *audio.Manager
	preferred []audio.Kind
	hooks     Hooks
	now       func() time.Time

	state     types.SwitcherState
	listener  Listener
	wired     bool
	bluetooth *audio.Device
	available []audio.Device
	// target is the device chosen by preference or by the user; selected is
	// the device actually routed, which differs while on a fallback route.
	target   *audio.Device
	selected *audio.Device
	user     *audio.Device

	session *audio.Session
	report  *types.SessionReport
}

// New returns a stopped Switcher for the given OS audio system.
func New(system audio.System, features audio.FeatureSet, level audio.Level, opts Options) *Switcher {
	caps := level.Capabilities()
	preferred := opts.Preferred
	if len(preferred) == 0 {
		preferred = audio.DefaultPriority
	}

	s := &Switcher{
		system:    system,
		caps:      caps,
		level:     level,
		prober:    audio.NewProber(system, features, caps),
		preferred: slices.Clone(preferred),
		hooks:     opts.Hooks,
		now:       time.Now,
		state:     types.StateStopped,
	}
	s.manager = audio.NewManager(system, caps, s, opts.Audio)
	return s
}

// OnAudioFocusChange implements audio.FocusChangeListener.
func (s *Switcher) OnAudioFocusChange(change audio.FocusChange) {
	slog.Info("audio focus changed", "change", change)
	if s.hooks.OnFocusChange != nil {
		s.hooks.OnFocusChange(change)
	}
}

// Start begins device monitoring and selects an initial device. The listener
// is invoked with the initial selection. Start is a no-op when already started.
func (s *Switcher) Start(listener Listener) {
	s.mu.Lock()
	if s.state != types.StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = types.StateStarted
	s.listener = listener
	s.scanLocked()
	s.available, s.target, s.selected = nil, nil, nil
	notify, _ := s.updateLocked(types.ReasonStart, true, false)
	s.mu.Unlock()

	slog.Info("audio switcher started", "level", s.level)
	notify()
}

// Stop deactivates any session and stops device monitoring.
func (s *Switcher) Stop() {
	s.mu.Lock()
	var ended *types.SessionReport
	if s.state == types.StateActivated {
		ended = s.deactivateLocked()
	}
	wasStarted := s.state != types.StateStopped
	s.state = types.StateStopped
	s.listener = nil
	s.user = nil
	s.mu.Unlock()

	if ended != nil && s.hooks.OnDeactivated != nil {
		s.hooks.OnDeactivated(*ended)
	}
	if wasStarted {
		slog.Info("audio switcher stopped")
	}
}

// Activate begins a session: the ambient state is cached, focus is taken,
// the microphone is unmuted and the selected route is applied. Calling
// Activate on an active session reapplies the route.
func (s *Switcher) Activate() error {
	s.mu.Lock()
	switch s.state {
	case types.StateStopped:
		s.mu.Unlock()
		return ErrNotStarted
	case types.StateActivated:
		notify, route := s.updateLocked(types.ReasonActivate, false, true)
		s.mu.Unlock()
		notify()
		route()
		return nil
	}

	session, err := s.manager.Begin()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.session = session
	s.state = types.StateActivated
	s.report = &types.SessionReport{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
		Level:     s.level,
		Focus:     session.Focus(),
		Saved:     session.Saved(),
	}
	s.manager.Mute(false)
	notify, route := s.updateLocked(types.ReasonActivate, false, true)
	report := s.snapshotReportLocked()
	s.mu.Unlock()

	slog.Info("session activated", "session_id", report.ID, "focus", report.Focus)
	if s.hooks.OnActivated != nil {
		s.hooks.OnActivated(report)
	}
	notify()
	route()
	return nil
}

// Deactivate ends the session, clears the route and restores the ambient
// state. It is a no-op when no session is active.
func (s *Switcher) Deactivate() {
	s.mu.Lock()
	if s.state != types.StateActivated {
		s.mu.Unlock()
		return
	}
	report := s.deactivateLocked()
	s.mu.Unlock()

	if s.hooks.OnDeactivated != nil {
		s.hooks.OnDeactivated(*report)
	}
}

func (s *Switcher) deactivateLocked() *types.SessionReport {
	if s.caps.CommunicationDevice {
		s.manager.ClearCommunicationDevice()
	} else if s.selected != nil && s.selected.Kind == audio.KindBluetoothHeadset {
		s.manager.EnableBluetoothSco(false)
	}

	report := s.report
	if err := s.session.Close(); err != nil {
		report.Error = err.Error()
		slog.Error("failed to restore audio state", "session_id", report.ID, "error", err)
	}
	report.EndedAt = s.now()
	report.Restored = s.manager.CurrentState()

	s.session = nil
	s.report = nil
	s.state = types.StateStarted
	s.selected = cloneDevice(s.target)

	slog.Info("session deactivated", "session_id", report.ID, "duration", report.Duration())
	return report
}

// SelectDevice routes the session to d, or back to automatic selection when
// d is nil. The device must be one of the available devices.
func (s *Switcher) SelectDevice(d *audio.Device) error {
	s.mu.Lock()
	if s.state == types.StateStopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if d != nil {
		i := slices.IndexFunc(s.available, func(a audio.Device) bool { return a.Kind == d.Kind })
		if i == -1 {
			s.mu.Unlock()
			return ErrDeviceUnavailable
		}
		chosen := s.available[i]
		s.user = &chosen
	} else {
		s.user = nil
	}
	notify, route := s.updateLocked(types.ReasonUserSelected, true, false)
	s.mu.Unlock()

	notify()
	route()
	return nil
}

// SetPreferred replaces the device preference order and reselects. An empty
// list restores the default order.
func (s *Switcher) SetPreferred(kinds []audio.Kind) {
	if len(kinds) == 0 {
		kinds = audio.DefaultPriority
	}
	s.mu.Lock()
	s.preferred = slices.Clone(kinds)
	if s.state == types.StateStopped {
		s.mu.Unlock()
		return
	}
	notify, route := s.updateLocked(types.ReasonPreference, false, false)
	s.mu.Unlock()

	notify()
	route()
}

// Mute sets the microphone mute state of the active session.
func (s *Switcher) Mute(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.StateActivated {
		return ErrNotActivated
	}
	s.manager.Mute(muted)
	return nil
}

// HandleDeviceEvent updates device availability from an OS hot-plug
// notification and reselects the route if needed. Events are ignored while
// the switcher is stopped.
func (s *Switcher) HandleDeviceEvent(ev audio.DeviceEvent) {
	s.mu.Lock()
	if s.state == types.StateStopped {
		s.mu.Unlock()
		return
	}

	if ev.Type == audio.DeviceRouteCleared {
		slog.Warn("communication device dropped by the OS", "kind", ev.Kind, "name", ev.Name)
		if s.caps.DeviceEnumeration {
			s.scanLocked()
		}
		notify, route := s.updateLocked(types.ReasonRouteLost, false, true)
		s.mu.Unlock()

		notify()
		route()
		return
	}

	connected := ev.Type == audio.DeviceConnected
	reason := types.ReasonDeviceDisconnected
	if connected {
		reason = types.ReasonDeviceConnected
	}

	switch ev.Kind {
	case audio.KindWiredHeadset:
		s.wired = connected
	case audio.KindBluetoothHeadset:
		if connected {
			bt := audio.BluetoothHeadset(s.bluetoothNameLocked(ev.Name))
			s.bluetooth = &bt
		} else {
			s.bluetooth = nil
		}
	default:
		s.mu.Unlock()
		slog.Debug("ignoring device event", "kind", ev.Kind, "type", ev.Type)
		return
	}

	slog.Info("audio device event", "kind", ev.Kind, "type", ev.Type, "name", ev.Name)
	// A new device may restore the preferred route after a fallback.
	retry := connected && !sameDevice(s.selected, s.target)
	notify, route := s.updateLocked(reason, false, retry)
	s.mu.Unlock()

	notify()
	route()
}

// AvailableDevices returns the devices currently available, most preferred first.
func (s *Switcher) AvailableDevices() []audio.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.available)
}

// SelectedDevice returns the selected device, or nil if none is available.
func (s *Switcher) SelectedDevice() *audio.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDevice(s.selected)
}

// State returns the lifecycle state.
func (s *Switcher) State() types.SwitcherState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the switcher for reporting.
func (s *Switcher) Status() types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := types.Status{
		State:        s.state,
		Available:    slices.Clone(s.available),
		Selected:     cloneDevice(s.selected),
		Level:        s.level,
		Capabilities: s.caps,
		Current:      s.manager.CurrentState(),
	}
	if st.Available == nil {
		st.Available = []audio.Device{}
	}
	if s.report != nil {
		st.SessionID = s.report.ID
	}
	return st
}

// scanLocked seeds peripheral state from the OS device list when the
// capability level allows enumeration.
func (s *Switcher) scanLocked() {
	s.wired = false
	s.bluetooth = nil
	if !s.caps.DeviceEnumeration {
		return
	}
	for _, info := range s.system.OutputDevices() {
		kind, ok := audio.KindOf(info.Type)
		if !ok {
			continue
		}
		switch kind {
		case audio.KindWiredHeadset:
			s.wired = true
		case audio.KindBluetoothHeadset:
			if s.bluetooth == nil {
				bt := audio.BluetoothHeadset(s.bluetoothNameLocked(info.ProductName))
				s.bluetooth = &bt
			}
		}
	}
}

// bluetoothNameLocked returns the name of the Bluetooth device the OS routes
// to: the first Bluetooth communication device, or the first Bluetooth output
// device below the communication device level. fallback is used when the OS
// lists none.
func (s *Switcher) bluetoothNameLocked(fallback string) string {
	if !s.caps.DeviceEnumeration {
		return fallback
	}
	lists := [][]audio.DeviceInfo{s.system.OutputDevices()}
	if s.caps.CommunicationDevice {
		lists = [][]audio.DeviceInfo{s.system.CommunicationDevices(), lists[0]}
	}
	for _, devices := range lists {
		for _, info := range devices {
			if audio.KindBluetoothHeadset.Matches(info.Type) {
				return info.ProductName
			}
		}
	}
	return fallback
}

// enumerateLocked lists available devices sorted by preference.
func (s *Switcher) enumerateLocked() []audio.Device {
	var devices []audio.Device
	if s.bluetooth != nil {
		devices = append(devices, *s.bluetooth)
	}
	if s.wired {
		devices = append(devices, audio.WiredHeadset())
	}
	if !s.wired && s.prober.HasEarpiece() {
		devices = append(devices, audio.Earpiece())
	}
	if s.prober.HasSpeakerphone() {
		devices = append(devices, audio.Speakerphone())
	}

	slices.SortStableFunc(devices, func(a, b audio.Device) int {
		return cmp.Compare(s.rank(a.Kind), s.rank(b.Kind))
	})
	return devices
}

func (s *Switcher) rank(k audio.Kind) int {
	if i := slices.Index(s.preferred, k); i >= 0 {
		return i
	}
	return len(s.preferred)
}

// updateLocked recomputes availability and selection. It returns deferred
// calls for the listener and, during a session, the route hook. The listener
// fires only when availability or selection changed, unless force is set.
// During a session the route is applied when the target changes, when the
// routed device disappears, or when reapply is set.
func (s *Switcher) updateLocked(reason types.RouteReason, force, reapply bool) (notify, route func()) {
	available := s.enumerateLocked()

	if s.user != nil && !slices.ContainsFunc(available, func(a audio.Device) bool { return a.Kind == s.user.Kind }) {
		slog.Info("selected audio device no longer available", "device", s.user.Name)
		s.user = nil
	}

	var selected *audio.Device
	switch {
	case s.user != nil:
		i := slices.IndexFunc(available, func(a audio.Device) bool { return a.Kind == s.user.Kind })
		d := available[i]
		selected = &d
	case len(available) > 0:
		d := available[0]
		selected = &d
	}

	prevAvailable, prevSelected := s.available, s.selected
	retarget := !sameDevice(selected, s.target)
	stale := s.selected != nil && !slices.Contains(available, *s.selected)
	s.available = available
	s.target = selected

	notify, route = func() {}, func() {}
	if s.state != types.StateActivated {
		s.selected = cloneDevice(selected)
	} else if retarget || stale || reapply {
		s.selected = cloneDevice(selected)
		change, applied := s.applySelectedLocked(reason)
		if applied {
			id := s.report.ID
			route = func() { s.routeChanged(id, change) }
		}
	}

	changed := !slices.Equal(available, prevAvailable) || !sameDevice(s.selected, prevSelected)
	if (changed || force) && s.listener != nil {
		listener := s.listener
		devices := slices.Clone(available)
		sel := cloneDevice(s.selected)
		notify = func() { listener(devices, sel) }
	}
	return notify, route
}

// applySelectedLocked activates the selected device. When the OS refuses it
// as communication device, the next available device that it accepts is
// routed and becomes the selection. It reports false when nothing is selected.
func (s *Switcher) applySelectedLocked(reason types.RouteReason) (types.RouteChange, bool) {
	if s.selected == nil {
		return types.RouteChange{}, false
	}
	d := *s.selected

	ok := true
	if s.caps.CommunicationDevice {
		ok = s.manager.SetCommunicationDevice(d)
		for _, alt := range s.available {
			if ok {
				break
			}
			if alt == d || !s.manager.SetCommunicationDevice(alt) {
				continue
			}
			slog.Warn("audio route fell back", "requested", d.Name, "device", alt.Name)
			d, ok = alt, true
			s.selected = cloneDevice(&alt)
		}
	} else {
		switch d.Kind {
		case audio.KindBluetoothHeadset:
			s.manager.EnableSpeakerphone(false)
			s.manager.EnableBluetoothSco(true)
		case audio.KindEarpiece, audio.KindWiredHeadset:
			s.manager.EnableSpeakerphone(false)
			s.manager.EnableBluetoothSco(false)
		case audio.KindSpeakerphone:
			s.manager.EnableSpeakerphone(true)
			s.manager.EnableBluetoothSco(false)
		}
	}

	change := types.RouteChange{At: s.now(), Device: d, Reason: reason, Applied: ok}
	s.report.Routes = append(s.report.Routes, change)
	slog.Info("audio route applied", "device", d.Name, "reason", reason, "applied", ok)
	return change, true
}

func (s *Switcher) snapshotReportLocked() types.SessionReport {
	r := *s.report
	r.Routes = slices.Clone(r.Routes)
	return r
}

func (s *Switcher) routeChanged(id string, change types.RouteChange) {
	if s.hooks.OnRouteChange != nil {
		s.hooks.OnRouteChange(id, change)
	}
}

func sameDevice(a, b *audio.Device) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneDevice(d *audio.Device) *audio.Device {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
