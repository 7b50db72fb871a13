// Package session holds the console's single authenticated session.
//
// Store is the read side shared with routes and navigation. Every mutation
// goes through Controller, which also owns the persisted user and token keys.
package session

import (
	"sync"
	"time"

	"clinic-console/internal/model"
)

type Snapshot struct {
	Loading        bool        `json:"loading"`
	Signed         bool        `json:"signed"`
	FirstAccess    bool        `json:"first_access"`
	User           *model.User `json:"user,omitempty"`
	TokenExpiresAt *time.Time  `json:"token_expires_at,omitempty"`
}

// Store is created empty and loading. A user and a token are always set and
// cleared together.
type Store struct {
	mu             sync.RWMutex
	loading        bool
	user           *model.User
	token          string
	tokenExpiresAt *time.Time
}

func NewStore() *Store {
	return &Store{loading: true}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Loading: s.loading,
		Signed:  s.user != nil,
	}
	if s.user != nil {
		user := s.user.Clone()
		snap.User = &user
		snap.FirstAccess = user.FirstAccess
	}
	if s.tokenExpiresAt != nil {
		exp := *s.tokenExpiresAt
		snap.TokenExpiresAt = &exp
	}

	return snap
}

// Token returns the bearer credential, empty when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.User{}, false
	}
	return s.user.Clone(), true
}

func (s *Store) finishRestore(user *model.User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user != nil && token != "" {
		s.setLocked(*user, token)
	}
	s.loading = false
}

func (s *Store) signIn(user model.User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(user, token)
	s.loading = false
}

func (s *Store) signOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.token = ""
	s.tokenExpiresAt = nil
}

// clearFirstAccess reports whether the flag was flipped.
func (s *Store) clearFirstAccess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil || !s.user.FirstAccess {
		return false
	}
	s.user.FirstAccess = false
	return true
}

func (s *Store) setLocked(user model.User, token string) {
	stored := user.Clone()
	s.user = &stored
	s.token = token
	s.tokenExpiresAt = tokenExpiry(token)
}
