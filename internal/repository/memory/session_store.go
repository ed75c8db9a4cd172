package memory

import (
	"context"
	"sync"

	"phone-auth-service/internal/models"
)

// AttemptStore keeps in-flight login attempts in process memory. Entries
// are removed by the flow when it finishes; there is no expiry.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]models.AuthAttempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]models.AuthAttempt)}
}

func (s *AttemptStore) Save(ctx context.Context, attempt *models.AuthAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.SessionID] = *attempt
	return nil
}

func (s *AttemptStore) Update(ctx context.Context, attempt *models.AuthAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.SessionID]; !ok {
		return models.ErrAttemptNotFound
	}
	s.attempts[attempt.SessionID] = *attempt
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, sessionID string) (*models.AuthAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[sessionID]
	if !ok {
		return nil, models.ErrAttemptNotFound
	}
	return &a, nil
}

func (s *AttemptStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, sessionID)
	return nil
}

// SessionStore is the in-memory counterpart of the Redis session cache.
type SessionStore struct {
	mu       sync.RWMutex
	notes    map[string]map[string]string
	markers  map[string]map[string]bool
	accounts map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		notes:    make(map[string]map[string]string),
		markers:  make(map[string]map[string]bool),
		accounts: make(map[string]string),
	}
}

func (s *SessionStore) SetNote(ctx context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notes[sessionID] == nil {
		s.notes[sessionID] = make(map[string]string)
	}
	s.notes[sessionID][key] = value
	return nil
}

func (s *SessionStore) SetMarker(ctx context.Context, sessionID, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markers[sessionID] == nil {
		s.markers[sessionID] = make(map[string]bool)
	}
	s.markers[sessionID][marker] = true
	return nil
}

func (s *SessionStore) ClearMarker(ctx context.Context, sessionID, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers[sessionID], marker)
	return nil
}

func (s *SessionStore) BindAccount(ctx context.Context, sessionID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[sessionID] = accountID
	return nil
}

func (s *SessionStore) Note(sessionID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.notes[sessionID][key]
	return v, ok
}

func (s *SessionStore) HasMarker(sessionID, marker string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markers[sessionID][marker]
}

func (s *SessionStore) BoundAccount(sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[sessionID]
}
