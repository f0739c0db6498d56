// Package session holds the in-memory conversation history for a single
// run of the application. It is the single source of truth for
// exchanges; nothing survives a restart.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"vlshowcase/internal/models"
)

// ErrExchangeNotFound is returned when an exchange id does not resolve.
var ErrExchangeNotFound = errors.New("exchange not found")

// Store owns the ordered collection of exchanges, newest first, and the
// current selection. All operations are atomic with respect to the
// collection.
type Store struct {
	mu         sync.RWMutex
	exchanges  []*models.Exchange
	selectedID string
	now        func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// AddExchange creates a new exchange seeded with the user prompt and the
// assistant response as its first two turns, both stamped with the same
// creation instant. The new exchange is prepended and becomes selected.
func (s *Store) AddExchange(prompt, response, imageURL string) *models.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	ex := &models.Exchange{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Response:  response,
		ImageURL:  imageURL,
		Timestamp: ts,
		ConversationHistory: []models.ConversationTurn{
			{Role: models.RoleUser, Content: prompt, ImageURL: imageURL, Timestamp: ts},
			{Role: models.RoleAssistant, Content: response, Timestamp: ts},
		},
	}
	s.exchanges = append([]*models.Exchange{ex}, s.exchanges...)
	s.selectedID = ex.ID
	return ex.Clone()
}

// AddFollowUp appends a user turn and an assistant turn to the exchange
// and updates its response to mirror the latest assistant content.
// Returns ErrExchangeNotFound when the id does not resolve; no other
// exchange is ever touched as a fallback.
func (s *Store) AddFollowUp(exchangeID, userPrompt, assistantResponse string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex := s.find(exchangeID)
	if ex == nil {
		return ErrExchangeNotFound
	}
	ts := s.now().UnixMilli()
	// Keep turn timestamps non-decreasing even if the clock steps back.
	if n := len(ex.ConversationHistory); n > 0 && ex.ConversationHistory[n-1].Timestamp > ts {
		ts = ex.ConversationHistory[n-1].Timestamp
	}
	ex.ConversationHistory = append(ex.ConversationHistory,
		models.ConversationTurn{Role: models.RoleUser, Content: userPrompt, Timestamp: ts},
		models.ConversationTurn{Role: models.RoleAssistant, Content: assistantResponse, Timestamp: ts},
	)
	ex.Response = assistantResponse
	return nil
}

// Select sets the current selection. The empty string means no exchange
// is selected (composing a new prompt). Existence is not validated;
// callers pass ids obtained from this store.
func (s *Store) Select(exchangeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = exchangeID
}

// SelectedID returns the id of the selected exchange, or "".
func (s *Store) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

// Get returns a copy of the exchange with the given id.
func (s *Store) Get(exchangeID string) (*models.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex := s.find(exchangeID)
	if ex == nil {
		return nil, ErrExchangeNotFound
	}
	return ex.Clone(), nil
}

// Exchanges returns copies of all exchanges, newest first.
func (s *Store) Exchanges() []*models.Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Exchange, len(s.exchanges))
	for i, ex := range s.exchanges {
		out[i] = ex.Clone()
	}
	return out
}

// Len reports the number of exchanges in the session.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exchanges)
}

func (s *Store) find(exchangeID string) *models.Exchange {
	for _, ex := range s.exchanges {
		if ex.ID == exchangeID {
			return ex
		}
	}
	return nil
}
