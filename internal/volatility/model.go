// Package volatility holds the named random-walk profiles of the simulated
// quote source. Exactly one profile is active at a time.
package volatility

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownProfile = errors.New("unknown volatility profile")

type Setting struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	IsActive bool    `json:"is_active"`
}

// Target receives the active profile's value.
type Target interface {
	SetVolatility(vol float64)
}

var defaultSettings = []Setting{
	{ID: "low", Name: "Low", Value: 0.0001},
	{ID: "medium", Name: "Medium", Value: 0.0003},
	{ID: "high", Name: "High", Value: 0.0008},
}

const defaultProfile = "medium"

type Store struct {
	mu       sync.RWMutex
	settings map[string]Setting
	active   string
	target   Target
}

// NewStore seeds the built-in profiles and pushes the default one to target,
// which may be nil when quotes come from a live source.
func NewStore(target Target) *Store {
	s := &Store{settings: make(map[string]Setting, len(defaultSettings)), target: target}
	for _, st := range defaultSettings {
		s.settings[st.ID] = st
	}
	_ = s.SetActive(defaultProfile)
	return s
}

func (s *Store) GetSettings() []Setting {
	s.mu.RLock()
	out := make([]Setting, 0, len(s.settings))
	for _, st := range s.settings {
		st.IsActive = st.ID == s.active
		out = append(out, st)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

func (s *Store) Active() Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.settings[s.active]
	st.IsActive = true
	return st
}

func (s *Store) SetActive(id string) error {
	id = strings.ToLower(strings.TrimSpace(id))
	s.mu.Lock()
	st, ok := s.settings[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownProfile
	}
	s.active = id
	s.mu.Unlock()
	if s.target != nil {
		s.target.SetVolatility(st.Value)
	}
	return nil
}
