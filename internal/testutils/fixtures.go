package testutils

import (
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/testutils/builders"
)

// Default roster used by fixtures
const (
	TestChannelID = "chan_test"
	TestMonsterID = "boss"
	TestMonsterHP = 300
	TestUserHP    = 100
)

// TestUserIDs are the users in the default roster, sorted
var TestUserIDs = []string{"alice", "bob", "carol", "dave"}

// CreateTestSession creates an idle session with four users and a monster
func CreateTestSession(id string) *battle.Session {
	return rosterBuilder(id).Build()
}

// CreateTestSessionInProgress creates the default roster with a round open
func CreateTestSessionInProgress(id string) *battle.Session {
	return rosterBuilder(id).InProgress().Build()
}

func rosterBuilder(id string) *builders.SessionBuilder {
	b := builders.NewSessionBuilder().
		WithID(id).
		WithChannel(TestChannelID).
		WithMonster(TestMonsterID, TestMonsterHP)
	for _, userID := range TestUserIDs {
		b.WithUser(userID, TestUserHP)
	}
	return b
}
