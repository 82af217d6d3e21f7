package audio

import "cmp"

// fakeSystem is an in-memory System that records focus traffic.
type fakeSystem struct {
	outputs []DeviceInfo
	comms   []DeviceInfo

	focusResult FocusResult
	mode        Mode
	muted       bool
	speaker     bool
	scoOn       bool
	commDevice  *DeviceInfo

	requests        []*FocusRequest
	abandoned       []*FocusRequest
	legacyRequests  []FocusChangeListener
	legacyStreams   []StreamType
	legacyAbandoned []FocusChangeListener
	modeWrites      []Mode
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{mode: ModeNormal}
}

func (f *fakeSystem) OutputDevices() []DeviceInfo        { return f.outputs }
func (f *fakeSystem) CommunicationDevices() []DeviceInfo { return f.comms }

func (f *fakeSystem) RequestFocus(req *FocusRequest) FocusResult {
	f.requests = append(f.requests, req)
	return cmp.Or(f.focusResult, FocusGranted)
}

func (f *fakeSystem) AbandonFocusRequest(req *FocusRequest) FocusResult {
	f.abandoned = append(f.abandoned, req)
	return FocusGranted
}

func (f *fakeSystem) RequestLegacyFocus(l FocusChangeListener, stream StreamType, _ FocusGain) FocusResult {
	f.legacyRequests = append(f.legacyRequests, l)
	f.legacyStreams = append(f.legacyStreams, stream)
	return cmp.Or(f.focusResult, FocusGranted)
}

func (f *fakeSystem) AbandonLegacyFocus(l FocusChangeListener) FocusResult {
	f.legacyAbandoned = append(f.legacyAbandoned, l)
	return FocusGranted
}

func (f *fakeSystem) Mode() Mode { return f.mode }

func (f *fakeSystem) SetMode(m Mode) {
	f.mode = m
	f.modeWrites = append(f.modeWrites, m)
}

func (f *fakeSystem) MicrophoneMute() bool         { return f.muted }
func (f *fakeSystem) SetMicrophoneMute(muted bool) { f.muted = muted }
func (f *fakeSystem) SpeakerphoneOn() bool         { return f.speaker }
func (f *fakeSystem) SetSpeakerphoneOn(on bool)    { f.speaker = on }
func (f *fakeSystem) StartBluetoothSco()           { f.scoOn = true }
func (f *fakeSystem) StopBluetoothSco()            { f.scoOn = false }

func (f *fakeSystem) SetCommunicationDevice(d DeviceInfo) bool {
	f.commDevice = &d
	return true
}

func (f *fakeSystem) ClearCommunicationDevice() { f.commDevice = nil }

// fakeFeatures is a FeatureSet backed by a map.
type fakeFeatures map[Feature]bool

func (f fakeFeatures) HasFeature(feature Feature) bool { return f[feature] }

// recordingListener is a FocusChangeListener with a distinct identity.
type recordingListener struct {
	changes []FocusChange
}

func (l *recordingListener) OnAudioFocusChange(change FocusChange) {
	l.changes = append(l.changes, change)
}
