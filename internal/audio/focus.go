package audio

// FocusGrant is a focus grant held by the Manager: either a HandleGrant or a
// ListenerGrant.
type FocusGrant interface {
	isFocusGrant()
}

// HandleGrant is a structured focus grant, released by abandoning its request.
type HandleGrant struct {
	Request *FocusRequest
}

// ListenerGrant is a legacy focus grant, released by listener identity.
type ListenerGrant struct {
	Listener FocusChangeListener
}

func (HandleGrant) isFocusGrant()   {}
func (ListenerGrant) isFocusGrant() {}

// nopFocusListener is registered when the caller supplies no listener.
type nopFocusListener struct{}

func (*nopFocusListener) OnAudioFocusChange(FocusChange) {}
