package scripts

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Update when no script has the given id.
var ErrNotFound = errors.New("script not found")

// Script is a reusable call-script text.
type Script struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is a process-local script list. Contents are lost on restart.
type Store struct {
	mu      sync.RWMutex
	scripts []Script
	now     func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }}
}

// List returns a copy of every script in insertion order. Never nil.
func (s *Store) List() []Script {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Script, len(s.scripts))
	copy(out, s.scripts)
	return out
}

// Create appends a new script with a fresh id.
func (s *Store) Create(title, content string) Script {
	now := s.now()
	sc := Script{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.scripts = append(s.scripts, sc)
	s.mu.Unlock()
	return sc
}

// Update replaces the title and content of the script with the given id.
func (s *Store) Update(id, title, content string) (Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.scripts {
		if s.scripts[i].ID != id {
			continue
		}
		s.scripts[i].Title = title
		s.scripts[i].Content = content
		s.scripts[i].UpdatedAt = s.now()
		return s.scripts[i], nil
	}
	return Script{}, ErrNotFound
}

// Len reports how many scripts are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scripts)
}
