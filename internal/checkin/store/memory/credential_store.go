package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
)

// CredentialStore is an in-memory issuance store for tests and dev.  Claims
// are a compare-and-set under the store mutex.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]store.IssuedCredential
}

func NewCredentialStore(creds ...store.IssuedCredential) *CredentialStore {
	s := &CredentialStore{creds: make(map[string]store.IssuedCredential, len(creds))}
	for _, c := range creds {
		s.Put(c)
	}
	return s
}

// Put inserts or replaces a credential.  An empty ID defaults to the token.
func (s *CredentialStore) Put(c store.IssuedCredential) {
	if c.ID == "" {
		c.ID = c.Token
	}
	if c.Status == "" {
		c.Status = store.StatusActive
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.ID] = c
}

func (s *CredentialStore) FindActiveByToken(_ context.Context, token string) (*store.IssuedCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.creds {
		if c.Token == token && c.Status == store.StatusActive {
			out := c
			return &out, nil
		}
	}
	return nil, store.ErrCredentialNotFound
}

func (s *CredentialStore) FindActiveByFields(_ context.Context, subjectID, category string) (*store.IssuedCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *store.IssuedCredential
	for _, c := range s.creds {
		if c.Status != store.StatusActive || c.SubjectID != subjectID || !strings.EqualFold(c.Category, category) {
			continue
		}
		if best == nil || c.IssuedAt.After(best.IssuedAt) {
			cp := c
			best = &cp
		}
	}
	if best == nil {
		return nil, store.ErrCredentialNotFound
	}
	return best, nil
}

func (s *CredentialStore) ClaimIfUnclaimed(_ context.Context, credentialID, subjectID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[credentialID]
	if !ok {
		return false, store.ErrCredentialNotFound
	}
	if c.ClaimedBy != "" {
		return false, nil
	}
	at = at.UTC()
	c.ClaimedBy = subjectID
	c.ClaimedAt = &at
	s.creds[credentialID] = c
	return true, nil
}

func (s *CredentialStore) GetByID(_ context.Context, credentialID string) (*store.IssuedCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[credentialID]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}
	return &c, nil
}
