package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/mocktest/internal/model"
)

// ErrUnknownSession is returned for an identifier that is not the active session.
var ErrUnknownSession = errors.New("session: unknown session")

// Manager keeps the single active session. Starting a new session closes
// the previous one, so timers of an abandoned session never fire into it.
type Manager struct {
	mu      sync.Mutex
	current *Session
	load    func() ([]model.Question, error)
	opts    []Option
}

// NewManager returns a Manager that loads the question set with load each
// time a session starts and applies opts to every session.
func NewManager(load func() ([]model.Question, error), opts ...Option) *Manager {
	return &Manager{load: load, opts: opts}
}

// Start creates a fresh session and makes it the active one.
func (m *Manager) Start() (*Session, error) {
	questions, err := m.load()
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	opts := append(append([]Option(nil), m.opts...), WithID(uuid.NewString()))
	s, err := New(questions, opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	if prev != nil {
		slog.Debug("replacing active session", "previous", prev.ID(), "next", s.ID())
		prev.Close()
	}
	return s, nil
}

// Get returns the active session if id names it.
func (m *Manager) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUnknownSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID() != id {
		return nil, ErrUnknownSession
	}
	return m.current, nil
}

// Active returns the active session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close closes the active session.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s != nil {
		s.Close()
	}
}
