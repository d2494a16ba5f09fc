// Package mocks provides mock expectation helpers for common testing patterns
package mocks

import (
	"context"

	"go.uber.org/mock/gomock"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	battlestate "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state"
	battlestatemock "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state/mock"
)

// ExpectSessionSaved accepts one save of the given session and echoes its version
func ExpectSessionSaved(mockRepo *battlestatemock.MockRepository, sessionID string) *gomock.Call {
	return mockRepo.EXPECT().
		Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, input *battlestate.SaveInput) (*battlestate.SaveOutput, error) {
			if input.Session.ID != sessionID {
				return nil, battle.SessionNotFound(input.Session.ID)
			}
			return &battlestate.SaveOutput{Version: input.Session.Version}, nil
		})
}

// ExpectSessionLoaded returns a copy of stored for a get by its id
func ExpectSessionLoaded(mockRepo *battlestatemock.MockRepository, stored *battle.Session) *gomock.Call {
	return mockRepo.EXPECT().
		Get(gomock.Any(), &battlestate.GetInput{SessionID: stored.ID}).
		Return(&battlestate.GetOutput{Session: stored.Clone()}, nil)
}

// ExpectSessionMissing reports the session as not stored
func ExpectSessionMissing(mockRepo *battlestatemock.MockRepository, sessionID string) *gomock.Call {
	return mockRepo.EXPECT().
		Get(gomock.Any(), &battlestate.GetInput{SessionID: sessionID}).
		Return(nil, battle.SessionNotFound(sessionID))
}

// ExpectSessionDeleted accepts one delete of the session
func ExpectSessionDeleted(mockRepo *battlestatemock.MockRepository, sessionID string, err error) *gomock.Call {
	if err != nil {
		return mockRepo.EXPECT().
			Delete(gomock.Any(), &battlestate.DeleteInput{SessionID: sessionID}).
			Return(nil, err)
	}
	return mockRepo.EXPECT().
		Delete(gomock.Any(), &battlestate.DeleteInput{SessionID: sessionID}).
		Return(&battlestate.DeleteOutput{}, nil)
}
