package audio

// Mode is the global OS audio mode.
type Mode string

// Audio modes.
const (
	ModeNormal          Mode = "normal"
	ModeRingtone        Mode = "ringtone"
	ModeInCall          Mode = "in_call"
	ModeInCommunication Mode = "in_communication"
)

// FocusGain is the kind of audio focus requested from the OS.
type FocusGain string

// Focus gain modes.
const (
	FocusGainFull               FocusGain = "gain"
	FocusGainTransient          FocusGain = "gain_transient"
	FocusGainTransientMayDuck   FocusGain = "gain_transient_may_duck"
	FocusGainTransientExclusive FocusGain = "gain_transient_exclusive"
)

// StreamType identifies the stream a legacy focus request is made for.
type StreamType string

// Stream types.
const (
	StreamVoiceCall    StreamType = "voice_call"
	StreamSystem       StreamType = "system"
	StreamRing         StreamType = "ring"
	StreamMusic        StreamType = "music"
	StreamAlarm        StreamType = "alarm"
	StreamNotification StreamType = "notification"
)

// Usage is the usage attribute of a structured focus request.
type Usage string

// Usage attributes.
const (
	UsageMedia                        Usage = "media"
	UsageVoiceCommunication           Usage = "voice_communication"
	UsageVoiceCommunicationSignalling Usage = "voice_communication_signalling"
	UsageAlarm                        Usage = "alarm"
	UsageNotification                 Usage = "notification"
)

// ContentType is the content-type attribute of a structured focus request.
type ContentType string

// Content types.
const (
	ContentTypeUnknown      ContentType = "unknown"
	ContentTypeSpeech       ContentType = "speech"
	ContentTypeMusic        ContentType = "music"
	ContentTypeMovie        ContentType = "movie"
	ContentTypeSonification ContentType = "sonification"
)

// HardwareType is the hardware tag the OS attaches to an enumerated device.
type HardwareType string

// Hardware types.
const (
	TypeBuiltinEarpiece HardwareType = "builtin_earpiece"
	TypeBuiltinSpeaker  HardwareType = "builtin_speaker"
	TypeWiredHeadset    HardwareType = "wired_headset"
	TypeWiredHeadphones HardwareType = "wired_headphones"
	TypeBluetoothSCO    HardwareType = "bluetooth_sco"
	TypeBluetoothA2DP   HardwareType = "bluetooth_a2dp"
	TypeUSBHeadset      HardwareType = "usb_headset"
	TypeHDMI            HardwareType = "hdmi"
	TypeTelephony       HardwareType = "telephony"
)

// Feature is a platform feature that can be queried for presence.
type Feature string

// Platform features.
const (
	FeatureTelephony   Feature = "telephony"
	FeatureAudioOutput Feature = "audio_output"
)

// DeviceInfo is a device as enumerated by the OS.
type DeviceInfo struct {
	// ID is the OS device identifier.
	ID int `json:"id"`
	// Type is the hardware type tag.
	Type HardwareType `json:"type"`
	// ProductName is the name the device advertises.
	ProductName string `json:"product_name,omitempty"`
}

// AmbientState is the OS audio configuration captured before a session mutates it.
type AmbientState struct {
	Mode            Mode `json:"mode"`
	MicrophoneMuted bool `json:"microphone_muted"`
	SpeakerphoneOn  bool `json:"speakerphone_on"`
}
