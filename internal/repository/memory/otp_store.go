package memory

import (
	"context"
	"sync"

	"phone-auth-service/internal/models"
)

// OTPStore keeps one credential per owner in process memory.
type OTPStore struct {
	mu    sync.Mutex
	creds map[string]*models.OTPCredential
}

func NewOTPStore() *OTPStore {
	return &OTPStore{creds: make(map[string]*models.OTPCredential)}
}

func (s *OTPStore) Save(ctx context.Context, cred *models.OTPCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cred
	s.creds[cred.OwnerID] = &cp
	return nil
}

func (s *OTPStore) Get(ctx context.Context, ownerID string) (*models.OTPCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[ownerID]
	if !ok {
		return nil, models.ErrOTPNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *OTPStore) IncrementAttempts(ctx context.Context, ownerID, credentialID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[ownerID]
	if !ok || c.ID != credentialID || c.Consumed {
		return 0, models.ErrOTPNotFound
	}
	c.Attempts++
	return c.Attempts, nil
}

func (s *OTPStore) Consume(ctx context.Context, ownerID, credentialID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[ownerID]
	if !ok || c.ID != credentialID || c.Consumed || c.Locked() {
		return false, nil
	}
	c.Consumed = true
	return true, nil
}

func (s *OTPStore) Delete(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, ownerID)
	return nil
}
