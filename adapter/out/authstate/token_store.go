// Package authstate implements the Mail Client's TokenStore contract over
// the Persistence Gateway's agent_state collection (§4.B, §6).
package authstate

import (
	"context"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
)

type Store struct {
	docs out.DocumentStore
}

func New(docs out.DocumentStore) *Store {
	return &Store{docs: docs}
}

func (s *Store) Load(ctx context.Context, userID string) (*domain.AgentState, error) {
	var state domain.AgentState
	err := s.docs.GetByID(ctx, out.CollectionAgentState, userID, &state)
	if err != nil {
		if appErr := apperr.AsAppError(err); appErr != nil && appErr.Code == apperr.CodeNotFound {
			return &domain.AgentState{UserID: userID, ReauthRequired: true, UpdatedAt: time.Now().UTC()}, nil
		}
		return nil, err
	}
	return &state, nil
}

func (s *Store) Save(ctx context.Context, state *domain.AgentState) error {
	state.UpdatedAt = time.Now().UTC()
	return s.docs.Set(ctx, out.CollectionAgentState, state.UserID, state)
}
