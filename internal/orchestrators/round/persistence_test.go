package round_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/KirkDiggler/rpg-skill-engine/internal/catalog"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/ledger"
	"github.com/KirkDiggler/rpg-skill-engine/internal/modifiers"
	"github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round"
	"github.com/KirkDiggler/rpg-skill-engine/internal/permission"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/idgen"
	battlestate "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state"
	battlestatemock "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state/mock"
	"github.com/KirkDiggler/rpg-skill-engine/internal/testutils"
	"github.com/KirkDiggler/rpg-skill-engine/internal/testutils/builders"
	"github.com/KirkDiggler/rpg-skill-engine/internal/testutils/mocks"
)

func (s *OrchestratorTestSuite) TestSaveLoadRoundTrip() {
	_, err := s.service.LinkGroup(s.ctx, &round.LinkGroupInput{
		SessionID: s.session, Members: []string{"alice", "bob"}, Policy: battle.PolicyFullToAll,
	})
	s.Require().NoError(err)
	s.startRound()
	dice := 4
	_, err = s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "carol", SkillID: "ritual", TargetIDs: []string{"boss"}, Dice: &dice,
	})
	s.Require().NoError(err)
	s.endRound()

	before, err := s.service.GetSession(s.ctx, &round.GetSessionInput{SessionID: s.session})
	s.Require().NoError(err)

	saved, err := s.service.Save(s.ctx, &round.SaveInput{SessionID: s.session})
	s.Require().NoError(err)
	s.Assert().Equal(before.Session.Version, saved.Version)
	s.Assert().NotEmpty(saved.Blob)

	// mutate after the save, then restore the snapshot
	s.startRound()
	_, err = s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{SessionID: s.session, ParticipantID: "boss", Amount: 99})
	s.Require().NoError(err)

	loaded, err := s.service.Load(s.ctx, &round.LoadInput{SessionID: s.session, Blob: saved.Blob})
	s.Require().NoError(err)

	got := loaded.Session
	want := before.Session
	s.Assert().Equal(want.Round, got.Round)
	s.Assert().Equal(want.State, got.State)
	s.Assert().Equal(want.Participants, got.Participants)
	s.Assert().Equal(want.Instances, got.Instances)
	s.Assert().Equal(want.Groups, got.Groups)
	s.Assert().False(got.Dirty())
	s.Assert().Equal(300, s.hp("boss"))
}

func (s *OrchestratorTestSuite) TestLoadFromRepository() {
	s.startRound()
	_, err := s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{SessionID: s.session, ParticipantID: "boss", Amount: 25})
	s.Require().NoError(err)
	_, err = s.service.Save(s.ctx, &round.SaveInput{SessionID: s.session})
	s.Require().NoError(err)

	// a fresh process restores the session by id
	restarted := s.newService(testDefinitions(), nil)
	loaded, err := restarted.Load(s.ctx, &round.LoadInput{SessionID: s.session})
	s.Require().NoError(err)
	s.Assert().Equal(275, loaded.Session.Participants["boss"].HP)
	s.Assert().Equal(battle.StateRoundInProgress, loaded.Session.State)

	_, err = restarted.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_1"})
	s.Assert().True(errors.HasReason(err, errors.ReasonSessionExists))

	_, err = restarted.Load(s.ctx, &round.LoadInput{SessionID: "sess_missing"})
	s.Assert().True(errors.IsNotFound(err))
}

func (s *OrchestratorTestSuite) TestSaveDirty() {
	out, err := s.service.SaveDirty(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal([]string{s.session}, out.Saved)

	out, err = s.service.SaveDirty(s.ctx)
	s.Require().NoError(err)
	s.Assert().Empty(out.Saved, "nothing changed since the last save")

	s.startRound()
	out, err = s.service.SaveDirty(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal([]string{s.session}, out.Saved)
}

func (s *OrchestratorTestSuite) TestTeardownPurge() {
	_, err := s.service.Save(s.ctx, &round.SaveInput{SessionID: s.session})
	s.Require().NoError(err)

	_, err = s.service.Teardown(s.ctx, &round.TeardownInput{SessionID: s.session, Purge: true})
	s.Require().NoError(err)

	_, err = s.repo.Get(s.ctx, &battlestate.GetInput{SessionID: s.session})
	s.Assert().True(errors.IsNotFound(err))
}

func (s *OrchestratorTestSuite) TestChannelReusedAfterTeardown() {
	_, err := s.service.Save(s.ctx, &round.SaveInput{SessionID: s.session})
	s.Require().NoError(err)

	_, err = s.service.Teardown(s.ctx, &round.TeardownInput{SessionID: s.session})
	s.Require().NoError(err)

	next, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_1"})
	s.Require().NoError(err)
	s.Require().NotEqual(s.session, next.Session.ID)

	_, err = s.service.Save(s.ctx, &round.SaveInput{SessionID: next.Session.ID})
	s.Require().NoError(err)

	got, err := s.repo.GetByChannel(s.ctx, &battlestate.GetByChannelInput{ChannelID: "chan_1"})
	s.Require().NoError(err)
	s.Assert().Equal(next.Session.ID, got.Session.ID)

	// the finished battle is still stored by id
	_, err = s.repo.Get(s.ctx, &battlestate.GetInput{SessionID: s.session})
	s.Assert().NoError(err)

	out, err := s.service.SaveDirty(s.ctx)
	s.Require().NoError(err)
	s.Assert().Empty(out.Failed)
}

func (s *OrchestratorTestSuite) TestSaveReleasesStaleChannelBinding() {
	// a binding left by a battle from an earlier process
	stale := builders.NewSessionBuilder().WithID("sess_old").WithChannel("chan_2").Mutated().Build()
	_, err := s.repo.Save(s.ctx, &battlestate.SaveInput{Session: stale})
	s.Require().NoError(err)

	created, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_2"})
	s.Require().NoError(err)

	_, err = s.service.Save(s.ctx, &round.SaveInput{SessionID: created.Session.ID})
	s.Require().NoError(err)

	got, err := s.repo.GetByChannel(s.ctx, &battlestate.GetByChannelInput{ChannelID: "chan_2"})
	s.Require().NoError(err)
	s.Assert().Equal(created.Session.ID, got.Session.ID)
}

func (s *OrchestratorTestSuite) TestLoadMovesChannelBinding() {
	saved, err := s.service.Save(s.ctx, &round.SaveInput{SessionID: s.session})
	s.Require().NoError(err)

	snapshot, err := battle.Decode(saved.Blob)
	s.Require().NoError(err)
	snapshot.ChannelID = "chan_9"
	blob, err := battle.Encode(snapshot)
	s.Require().NoError(err)

	loaded, err := s.service.Load(s.ctx, &round.LoadInput{SessionID: s.session, Blob: blob})
	s.Require().NoError(err)
	s.Assert().Equal("chan_9", loaded.Session.ChannelID)

	got, err := s.service.GetSession(s.ctx, &round.GetSessionInput{ChannelID: "chan_9"})
	s.Require().NoError(err)
	s.Assert().Equal(s.session, got.Session.ID)

	_, err = s.service.GetSession(s.ctx, &round.GetSessionInput{ChannelID: "chan_1"})
	s.Require().Error(err)
	s.Assert().True(errors.IsNotFound(err))

	// both channels can be saved independently afterwards
	_, err = s.service.Save(s.ctx, &round.SaveInput{SessionID: s.session})
	s.Require().NoError(err)
	next, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_1"})
	s.Require().NoError(err)
	_, err = s.service.Save(s.ctx, &round.SaveInput{SessionID: next.Session.ID})
	s.Require().NoError(err)

	stored, err := s.repo.GetByChannel(s.ctx, &battlestate.GetByChannelInput{ChannelID: "chan_9"})
	s.Require().NoError(err)
	s.Assert().Equal(s.session, stored.Session.ID)
	stored, err = s.repo.GetByChannel(s.ctx, &battlestate.GetByChannelInput{ChannelID: "chan_1"})
	s.Require().NoError(err)
	s.Assert().Equal(next.Session.ID, stored.Session.ID)
}

func (s *OrchestratorTestSuite) TestLoadOntoTakenChannelFails() {
	other, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_9"})
	s.Require().NoError(err)

	saved, err := s.service.Save(s.ctx, &round.SaveInput{SessionID: s.session})
	s.Require().NoError(err)
	snapshot, err := battle.Decode(saved.Blob)
	s.Require().NoError(err)
	snapshot.ChannelID = "chan_9"
	blob, err := battle.Encode(snapshot)
	s.Require().NoError(err)

	_, err = s.service.Load(s.ctx, &round.LoadInput{SessionID: s.session, Blob: blob})
	s.Require().Error(err)
	s.Assert().Equal(errors.ReasonSessionExists, errors.GetReason(err))

	// nothing moved
	got, err := s.service.GetSession(s.ctx, &round.GetSessionInput{ChannelID: "chan_1"})
	s.Require().NoError(err)
	s.Assert().Equal(s.session, got.Session.ID)
	got, err = s.service.GetSession(s.ctx, &round.GetSessionInput{ChannelID: "chan_9"})
	s.Require().NoError(err)
	s.Assert().Equal(other.Session.ID, got.Session.ID)
}

func (s *OrchestratorTestSuite) TestLoadAfterTeardownIsMutable() {
	saved, err := s.service.Save(s.ctx, &round.SaveInput{SessionID: s.session})
	s.Require().NoError(err)
	_, err = s.service.Teardown(s.ctx, &round.TeardownInput{SessionID: s.session})
	s.Require().NoError(err)

	_, err = s.service.Load(s.ctx, &round.LoadInput{SessionID: s.session, Blob: saved.Blob})
	s.Require().NoError(err)

	s.startRound()
	_, err = s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{SessionID: s.session, ParticipantID: "boss", Amount: 10})
	s.Require().NoError(err)
	s.Assert().Equal(290, s.hp("boss"))

	got, err := s.service.GetSession(s.ctx, &round.GetSessionInput{ChannelID: "chan_1"})
	s.Require().NoError(err)
	s.Assert().Equal(s.session, got.Session.ID)
}

func (s *OrchestratorTestSuite) TestRunAutosave() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.service.RunAutosave(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	// the final pass on shutdown saved the dirty session
	_, err := s.repo.Get(s.ctx, &battlestate.GetInput{SessionID: s.session})
	s.Assert().NoError(err)
}

type PersistenceMockTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	mockRepo *battlestatemock.MockRepository
	service  round.Service
	ctx      context.Context
}

func TestPersistenceMockSuite(t *testing.T) {
	suite.Run(t, new(PersistenceMockTestSuite))
}

func (s *PersistenceMockTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockRepo = battlestatemock.NewMockRepository(s.ctrl)
	s.ctx = context.Background()

	cat, err := catalog.New(&catalog.Config{Definitions: testDefinitions()})
	s.Require().NoError(err)
	auth, err := permission.New(&permission.Config{Catalog: cat})
	s.Require().NoError(err)
	groupIDs := idgen.NewSequential(idgen.PrefixGroup)
	l, err := ledger.New(&ledger.Config{
		Catalog:     cat,
		Authority:   auth,
		InstanceIDs: idgen.NewSequential(idgen.PrefixInstance),
		GroupIDs:    groupIDs,
	})
	s.Require().NoError(err)
	p, err := modifiers.New(&modifiers.Config{Catalog: cat, Roller: fixedRoller{value: 1}})
	s.Require().NoError(err)

	s.service, err = round.NewOrchestrator(&round.Config{
		Ledger:     l,
		Pipeline:   p,
		SessionIDs: idgen.NewSequential(idgen.PrefixSession),
		GroupIDs:   groupIDs,
		Repository: s.mockRepo,
	})
	s.Require().NoError(err)
}

func (s *PersistenceMockTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *PersistenceMockTestSuite) TestSaveFailureKeepsSessionDirty() {
	created, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan"})
	s.Require().NoError(err)
	id := created.Session.ID
	_, err = s.service.AddParticipant(s.ctx, &round.AddParticipantInput{
		SessionID:   id,
		Participant: battle.Participant{ID: "boss", HP: 10},
	})
	s.Require().NoError(err)

	s.mockRepo.EXPECT().
		Save(gomock.Any(), gomock.Any()).
		Return(nil, errors.Unavailable("redis down"))

	_, err = s.service.Save(s.ctx, &round.SaveInput{SessionID: id})
	s.Require().Error(err)
	s.Assert().Equal(errors.CodeUnavailable, errors.GetCode(err))

	mocks.ExpectSessionSaved(s.mockRepo, id)

	out, err := s.service.SaveDirty(s.ctx)
	s.Require().NoError(err)
	s.Assert().Equal([]string{id}, out.Saved)

	got, err := s.service.GetSession(s.ctx, &round.GetSessionInput{SessionID: id})
	s.Require().NoError(err)
	s.Assert().False(got.Session.Dirty())
}

func (s *PersistenceMockTestSuite) TestLoadFromRepository() {
	stored := testutils.CreateTestSession("sess_9")
	stored.Round = 3
	stored.Version = 12

	mocks.ExpectSessionLoaded(s.mockRepo, stored)

	out, err := s.service.Load(s.ctx, &round.LoadInput{SessionID: "sess_9"})
	s.Require().NoError(err)
	s.Assert().Equal(3, out.Session.Round)
	s.Assert().Len(out.Session.Participants, len(testutils.TestUserIDs)+1)
	s.Assert().False(out.Session.Dirty())

	_, err = s.service.StartRound(s.ctx, &round.StartRoundInput{SessionID: "sess_9"})
	s.Assert().NoError(err)
}

func (s *PersistenceMockTestSuite) TestLoadMissingSession() {
	mocks.ExpectSessionMissing(s.mockRepo, "sess_gone")

	_, err := s.service.Load(s.ctx, &round.LoadInput{SessionID: "sess_gone"})
	s.Require().Error(err)
	s.Assert().True(errors.IsNotFound(err))
}

func (s *PersistenceMockTestSuite) TestTeardownReleasesChannel() {
	created, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan"})
	s.Require().NoError(err)

	s.mockRepo.EXPECT().
		ReleaseChannel(gomock.Any(), &battlestate.ReleaseChannelInput{ChannelID: "chan", SessionID: created.Session.ID}).
		Return(nil, errors.Unavailable("redis down"))

	// a failed release does not fail the teardown
	_, err = s.service.Teardown(s.ctx, &round.TeardownInput{SessionID: created.Session.ID})
	s.Assert().NoError(err)
}

func (s *PersistenceMockTestSuite) TestPurgeIgnoresMissingSnapshot() {
	created, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan"})
	s.Require().NoError(err)

	mocks.ExpectSessionDeleted(s.mockRepo, created.Session.ID, battle.SessionNotFound(created.Session.ID))

	_, err = s.service.Teardown(s.ctx, &round.TeardownInput{SessionID: created.Session.ID, Purge: true})
	s.Assert().NoError(err)
}

func (s *PersistenceMockTestSuite) TestLoadReleasesPreviousChannel() {
	created, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan"})
	s.Require().NoError(err)

	moved := created.Session.Clone()
	moved.ChannelID = "chan_moved"
	blob, err := battle.Encode(moved)
	s.Require().NoError(err)

	s.mockRepo.EXPECT().
		ReleaseChannel(gomock.Any(), &battlestate.ReleaseChannelInput{ChannelID: "chan", SessionID: created.Session.ID}).
		Return(&battlestate.ReleaseChannelOutput{Released: true}, nil)

	_, err = s.service.Load(s.ctx, &round.LoadInput{Blob: blob})
	s.Require().NoError(err)

	// a new battle can open on the freed channel
	_, err = s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan"})
	s.Assert().NoError(err)
}
