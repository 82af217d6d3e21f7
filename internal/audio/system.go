package audio

// FocusChange is a focus transition delivered to a FocusChangeListener.
type FocusChange string

// Focus changes.
const (
	FocusGained               FocusChange = "gain"
	FocusLost                 FocusChange = "loss"
	FocusLostTransient        FocusChange = "loss_transient"
	FocusLostTransientCanDuck FocusChange = "loss_transient_can_duck"
)

// FocusResult is the OS answer to a focus request or abandon.
type FocusResult string

// Focus results.
const (
	FocusGranted FocusResult = "granted"
	FocusFailed  FocusResult = "failed"
	FocusDelayed FocusResult = "delayed"
)

// FocusChangeListener receives focus transitions. On the legacy focus path its
// identity is the key used to abandon focus, so implementations should be pointers.
type FocusChangeListener interface {
	OnAudioFocusChange(change FocusChange)
}

// FocusRequest is a structured focus request. The pointer returned by the
// builder is the handle later passed to AbandonFocusRequest.
type FocusRequest struct {
	Gain        FocusGain
	Usage       Usage
	ContentType ContentType
	Listener    FocusChangeListener
}

// System is the OS audio subsystem.
type System interface {
	// OutputDevices enumerates output devices. Order is not significant.
	OutputDevices() []DeviceInfo
	// CommunicationDevices lists devices usable as an explicit communication route.
	CommunicationDevices() []DeviceInfo

	RequestFocus(req *FocusRequest) FocusResult
	AbandonFocusRequest(req *FocusRequest) FocusResult
	RequestLegacyFocus(l FocusChangeListener, stream StreamType, gain FocusGain) FocusResult
	AbandonLegacyFocus(l FocusChangeListener) FocusResult

	Mode() Mode
	SetMode(m Mode)
	MicrophoneMute() bool
	SetMicrophoneMute(muted bool)
	SpeakerphoneOn() bool
	SetSpeakerphoneOn(on bool)

	StartBluetoothSco()
	StopBluetoothSco()

	SetCommunicationDevice(d DeviceInfo) bool
	ClearCommunicationDevice()
}

// FeatureSet answers platform feature-presence queries.
type FeatureSet interface {
	HasFeature(f Feature) bool
}
