package audio

import "log/slog"

// Prober reports which built-in routes are physically present.
type Prober struct {
	system   System
	features FeatureSet
	caps     Capabilities
}

// NewProber returns a Prober for the given OS and capabilities.
func NewProber(system System, features FeatureSet, caps Capabilities) *Prober {
	return &Prober{
		system:   system,
		features: features,
		caps:     caps,
	}
}

// HasEarpiece reports whether the platform has telephony hardware.
func (p *Prober) HasEarpiece() bool {
	hasEarpiece := p.features.HasFeature(FeatureTelephony)
	if hasEarpiece {
		slog.Debug("earpiece available")
	}
	return hasEarpiece
}

// HasSpeakerphone reports whether a built-in loudspeaker is present. Without
// device enumeration the speaker cannot be detected and is assumed present.
func (p *Prober) HasSpeakerphone() bool {
	if !p.caps.DeviceEnumeration || !p.features.HasFeature(FeatureAudioOutput) {
		slog.Debug("speakerphone available", "detected", false)
		return true
	}

	for _, d := range p.system.OutputDevices() {
		if d.Type == TypeBuiltinSpeaker {
			slog.Debug("speakerphone available", "detected", true)
			return true
		}
	}
	return false
}
