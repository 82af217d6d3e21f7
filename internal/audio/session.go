package audio

import (
	"errors"
	"sync"
)

// Session brackets a voice session: the ambient state is cached and focus
// taken when it begins, and Close restores both exactly once.
type Session struct {
	manager *Manager
	saved   AmbientState
	focus   FocusResult

	once     sync.Once
	closeErr error
}

// Begin caches the ambient audio state and acquires audio focus.
func (m *Manager) Begin() (*Session, error) {
	if err := m.CacheAudioState(); err != nil {
		return nil, err
	}
	saved, _ := m.CachedState()
	focus := m.SetAudioFocus()

	return &Session{
		manager: m,
		saved:   saved,
		focus:   focus,
	}, nil
}

// Run begins a session, calls fn and closes the session on every exit path,
// including a panic in fn.
func (m *Manager) Run(fn func(s *Session) error) (err error) {
	s, err := m.Begin()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(s)
}

// Manager returns the Manager driving the session.
func (s *Session) Manager() *Manager {
	return s.manager
}

// Saved returns the ambient state captured when the session began.
func (s *Session) Saved() AmbientState {
	return s.saved
}

// Focus returns the OS answer to the focus request made when the session began.
func (s *Session) Focus() FocusResult {
	return s.focus
}

// Close restores the ambient state and releases focus. Later calls return the
// result of the first.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.closeErr = s.manager.RestoreAudioState()
	})
	return s.closeErr
}
