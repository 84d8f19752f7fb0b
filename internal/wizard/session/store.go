package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"advance-wizard/internal/common/logger"
)

// Store dispatches events against persisted sessions. All mutation goes
// through Dispatch so every transition is a Reduce call followed by a save.
type Store struct {
	repo Repository
	log  logger.Logger
	now  func() time.Time
}

func NewStore(repo Repository, log logger.Logger) *Store {
	return &Store{
		repo: repo,
		log:  log.WithFields(map[string]interface{}{"component": "session-store"}),
		now:  time.Now,
	}
}

// Start creates a new session with a fresh id and correlation token.
func (s *Store) Start(ctx context.Context) (State, error) {
	state := Reduce(State{}, Started{
		SessionID:     uuid.NewString(),
		Authorization: uuid.NewString(),
		Now:           s.now().UTC(),
	})
	if err := s.repo.Save(ctx, state); err != nil {
		return State{}, err
	}
	s.log.Info("session started", map[string]interface{}{"session_id": state.SessionID})
	return state, nil
}

// Get returns the current state for a session id.
func (s *Store) Get(ctx context.Context, sessionID string) (State, error) {
	return s.repo.Get(ctx, sessionID)
}

// Dispatch loads the session, applies the events in order and persists the
// result. Events are applied atomically with respect to the saved state.
func (s *Store) Dispatch(ctx context.Context, sessionID string, events ...Event) (State, error) {
	state, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return State{}, err
	}

	for _, ev := range events {
		state = Reduce(state, ev)
	}
	state.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Delete removes a session entirely.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}
