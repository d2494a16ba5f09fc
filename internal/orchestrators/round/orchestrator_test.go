package round_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KirkDiggler/rpg-toolkit/events"
	"github.com/stretchr/testify/suite"

	"github.com/KirkDiggler/rpg-skill-engine/internal/catalog"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/ledger"
	"github.com/KirkDiggler/rpg-skill-engine/internal/modifiers"
	"github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round"
	"github.com/KirkDiggler/rpg-skill-engine/internal/permission"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/clock"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/idgen"
	battlestate "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state"
	"github.com/KirkDiggler/rpg-skill-engine/internal/telemetry"
)

// fixedRoller always rolls the same value
type fixedRoller struct{ value int }

func (r fixedRoller) Roll(_ int) (int, error) { return r.value, nil }
func (r fixedRoller) RollN(count, _ int) ([]int, error) {
	out := make([]int, count)
	for i := range out {
		out[i] = r.value
	}
	return out, nil
}

func testDefinitions() []battle.SkillDefinition {
	return []battle.SkillDefinition{
		{
			ID: "ritual", Name: "Ritual", Owner: "carol", Arity: battle.AritySingle, Duration: 4,
			Phases: []battle.Phase{
				{Name: "preparation", MinRounds: 1},
				{Name: "activation", MinRounds: 1},
				{Name: "resolution", MinRounds: 1},
			},
			Effect: &battle.Effect{Kind: battle.EffectDamage, Amount: 40, FromDice: true},
		},
		{
			ID: "bolt", Name: "Bolt", Owner: "alice", Arity: battle.AritySingle, Duration: 1,
			Effect: &battle.Effect{Kind: battle.EffectDamage, Amount: 15, Immediate: true},
		},
		{
			ID: "ward", Name: "Ward", Owner: "alice", Arity: battle.AritySelf, Duration: 2,
			Modifiers: []battle.Modifier{{Kind: battle.ModifierClamp, Scope: battle.ScopeOwner, Min: 50, Max: 150}},
		},
		{
			ID: "link", Name: "Link", Owner: "bob", Arity: battle.ArityGroup, Duration: 2,
			Sharing: &battle.SharingSpec{Policy: battle.PolicySplitEven},
		},
	}
}

type OrchestratorTestSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *clock.Manual
	bus      events.EventBus
	recorder *telemetry.Recorder
	repo     *battlestate.InMemoryRepository
	service  round.Service
	session  string
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewManual(time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC))
	s.bus = events.NewBus()
	s.recorder = telemetry.NewRecorder()
	s.repo = battlestate.NewInMemory()
	s.service = s.newService(testDefinitions(), map[string][]permission.Rule{
		"bolt": {permission.AllowList{Actors: []string{"alice", "dave"}}},
	})

	out, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_1"})
	s.Require().NoError(err)
	s.session = out.Session.ID

	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		s.addParticipant(id, battle.RoleUser, 100)
	}
	s.addParticipant("boss", battle.RoleMonster, 300)
}

func (s *OrchestratorTestSuite) newService(defs []battle.SkillDefinition, rules map[string][]permission.Rule) round.Service {
	cat, err := catalog.New(&catalog.Config{Definitions: defs})
	s.Require().NoError(err)
	auth, err := permission.New(&permission.Config{Catalog: cat, Rules: rules})
	s.Require().NoError(err)

	groupIDs := idgen.NewSequential(idgen.PrefixGroup)
	l, err := ledger.New(&ledger.Config{
		Catalog:          cat,
		Authority:        auth,
		InstanceIDs:      idgen.NewSequential(idgen.PrefixInstance),
		GroupIDs:         groupIDs,
		OneSkillPerOwner: true,
	})
	s.Require().NoError(err)

	roller := fixedRoller{value: 30}
	p, err := modifiers.New(&modifiers.Config{Catalog: cat, Roller: roller})
	s.Require().NoError(err)

	svc, err := round.NewOrchestrator(&round.Config{
		Ledger:     l,
		Pipeline:   p,
		SessionIDs: idgen.NewSequential(idgen.PrefixSession),
		GroupIDs:   groupIDs,
		Repository: s.repo,
		Roller:     roller,
		EventBus:   s.bus,
		Observer: telemetry.NewObserver(telemetry.ObserverConfig{
			Sink:  s.recorder,
			Clock: s.clock,
		}),
		Clock: s.clock,
	})
	s.Require().NoError(err)
	return svc
}

func (s *OrchestratorTestSuite) addParticipant(id string, role battle.Role, hp int) {
	_, err := s.service.AddParticipant(s.ctx, &round.AddParticipantInput{
		SessionID:   s.session,
		Participant: battle.Participant{ID: id, Roles: []battle.Role{role}, HP: hp},
	})
	s.Require().NoError(err)
}

func (s *OrchestratorTestSuite) startRound() {
	_, err := s.service.StartRound(s.ctx, &round.StartRoundInput{SessionID: s.session})
	s.Require().NoError(err)
}

func (s *OrchestratorTestSuite) endRound() *round.EndRoundOutput {
	out, err := s.service.EndRound(s.ctx, &round.EndRoundInput{SessionID: s.session})
	s.Require().NoError(err)
	return out
}

func (s *OrchestratorTestSuite) hp(id string) int {
	out, err := s.service.GetSession(s.ctx, &round.GetSessionInput{SessionID: s.session})
	s.Require().NoError(err)
	return out.Session.Participants[id].HP
}

func (s *OrchestratorTestSuite) countEvents(eventType string) *atomic.Int32 {
	var n atomic.Int32
	s.bus.SubscribeFunc(eventType, 0, func(_ context.Context, _ events.Event) error {
		n.Add(1)
		return nil
	})
	return &n
}

func (s *OrchestratorTestSuite) TestNewOrchestratorValidation() {
	_, err := round.NewOrchestrator(&round.Config{})
	s.Require().Error(err)
	s.Assert().True(errors.IsInvalidArgument(err))
	s.Assert().Contains(err.Error(), "Ledger")

	_, err = round.NewOrchestrator(nil)
	s.Assert().True(errors.IsInvalidArgument(err))
}

func (s *OrchestratorTestSuite) TestOneSessionPerChannel() {
	_, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_1"})
	s.Require().Error(err)
	s.Assert().True(errors.HasReason(err, errors.ReasonSessionExists))

	other, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_2"})
	s.Require().NoError(err)
	s.Assert().NotEqual(s.session, other.Session.ID)
	s.Assert().Equal(1, other.Session.Round)
	s.Assert().Equal(battle.StateIdle, other.Session.State)
}

func (s *OrchestratorTestSuite) TestRoundStateMachine() {
	_, err := s.service.EndRound(s.ctx, &round.EndRoundInput{SessionID: s.session})
	s.Assert().True(errors.HasReason(err, errors.ReasonSessionNotInProgress))

	s.startRound()
	_, err = s.service.StartRound(s.ctx, &round.StartRoundInput{SessionID: s.session})
	s.Assert().True(errors.IsFailedPrecondition(err))

	out := s.endRound()
	s.Assert().Equal(1, out.Round)

	sess, err := s.service.GetSession(s.ctx, &round.GetSessionInput{ChannelID: "chan_1"})
	s.Require().NoError(err)
	s.Assert().Equal(2, sess.Session.Round)
	s.Assert().Equal(battle.StateIdle, sess.Session.State)
}

func (s *OrchestratorTestSuite) TestMutationsRequireRoundInProgress() {
	_, err := s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "alice", SkillID: "ward",
	})
	s.Require().Error(err)
	s.Assert().True(errors.HasReason(err, errors.ReasonSessionNotInProgress))

	_, err = s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{SessionID: s.session, ParticipantID: "boss", Amount: 5})
	s.Assert().True(errors.HasReason(err, errors.ReasonSessionNotInProgress))

	// roster maintenance is fine while idle
	s.addParticipant("eve", battle.RoleUser, 50)
}

func (s *OrchestratorTestSuite) TestScenarioA_SplitEvenGroup() {
	_, err := s.service.LinkGroup(s.ctx, &round.LinkGroupInput{
		SessionID: s.session,
		Members:   []string{"bob", "alice"},
		Policy:    battle.PolicySplitEven,
	})
	s.Require().NoError(err)
	s.startRound()

	out, err := s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{
		SessionID: s.session, ParticipantID: "alice", Amount: 100,
	})
	s.Require().NoError(err)
	s.Assert().Equal(map[string]int{"alice": 50, "bob": 50}, map[string]int(out.Applied))
	s.Assert().Equal(50, s.hp("alice"))
	s.Assert().Equal(50, s.hp("bob"))
}

func (s *OrchestratorTestSuite) TestScenarioB_MultiPhaseFiresOnce() {
	resolved := s.countEvents(round.EventSkillResolved)
	s.startRound()

	dice := 7
	out, err := s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "carol", SkillID: "ritual",
		TargetIDs: []string{"boss"}, Dice: &dice,
	})
	s.Require().NoError(err)
	s.Require().NotNil(out.Outcome.Instance)
	s.Assert().Equal([]int{7}, out.Outcome.Instance.DiceResults)
	s.Assert().Empty(out.Outcome.Applied)
	instanceID := out.Outcome.Instance.ID

	// two cycles reach the terminal phase without firing
	for i := 0; i < 2; i++ {
		s.endRound()
		s.startRound()
	}
	s.Assert().Equal(300, s.hp("boss"))
	s.Assert().Equal(int32(0), resolved.Load())

	// the third cycle satisfies the resolution phase's own minimum
	third := s.endRound()
	s.startRound()
	s.Require().Len(third.Transitions, 1)
	s.Require().NotNil(third.Transitions[0].Firing)
	s.Assert().Equal(300-47, s.hp("boss"))
	s.Assert().Equal(int32(1), resolved.Load())

	// expiry of a resolved multi phase skill does not fire again
	end := s.endRound()
	s.Require().Len(end.Expired, 1)
	s.Assert().Equal(instanceID, end.Expired[0].InstanceID)
	s.Assert().Nil(end.Expired[0].Firing)
	s.Assert().Equal(300-47, s.hp("boss"))
	s.Assert().Equal(int32(1), resolved.Load())
}

func (s *OrchestratorTestSuite) TestScenarioC_PermissionDeniedLeavesLedgerUnchanged() {
	s.startRound()
	before, err := s.service.GetSession(s.ctx, &round.GetSessionInput{SessionID: s.session})
	s.Require().NoError(err)

	_, err = s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "bob", SkillID: "bolt", TargetIDs: []string{"boss"},
	})
	s.Require().Error(err)
	s.Assert().True(errors.IsPermissionDenied(err))

	list, err := s.service.ListActive(s.ctx, &round.ListActiveInput{SessionID: s.session, ParticipantID: "bob"})
	s.Require().NoError(err)
	s.Assert().Empty(list.Instances)

	after, err := s.service.GetSession(s.ctx, &round.GetSessionInput{SessionID: s.session})
	s.Require().NoError(err)
	s.Assert().Equal(before.Session.Version, after.Session.Version)
	s.Assert().Empty(after.Session.Instances)
}

func (s *OrchestratorTestSuite) TestScenarioD_RemovalDissolvesGroup() {
	link, err := s.service.LinkGroup(s.ctx, &round.LinkGroupInput{
		SessionID: s.session, Members: []string{"alice", "bob"}, Policy: battle.PolicySplitEven,
	})
	s.Require().NoError(err)

	removed, err := s.service.RemoveParticipant(s.ctx, &round.RemoveParticipantInput{
		SessionID: s.session, ParticipantID: "bob",
	})
	s.Require().NoError(err)
	s.Assert().Equal([]string{link.Group.ID}, removed.Removal.DissolvedGroups)

	s.startRound()
	out, err := s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{
		SessionID: s.session, ParticipantID: "alice", Amount: 100,
	})
	s.Require().NoError(err)
	s.Assert().Equal(map[string]int{"alice": 100}, map[string]int(out.Applied))

	alive, err := s.service.IsAlive(s.ctx, &round.IsAliveInput{SessionID: s.session, ParticipantID: "alice"})
	s.Require().NoError(err)
	s.Assert().False(alive.Alive)
}

func (s *OrchestratorTestSuite) TestImmediateEffectOutcome() {
	died := s.countEvents(round.EventParticipantDied)
	s.startRound()

	_, err := s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{SessionID: s.session, ParticipantID: "boss", Amount: 290})
	s.Require().NoError(err)

	out, err := s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "alice", SkillID: "bolt", TargetIDs: []string{"boss"},
	})
	s.Require().NoError(err)
	s.Assert().Equal(map[string]int{"boss": 15}, out.Outcome.Applied)
	s.Assert().True(out.Outcome.Instance.Resolved)
	s.Assert().Equal(0, s.hp("boss"))
	s.Assert().Equal(int32(1), died.Load())
}

func (s *OrchestratorTestSuite) TestDiceEventRunsModifiers() {
	s.startRound()
	_, err := s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "alice", SkillID: "ward",
	})
	s.Require().NoError(err)

	roll := 12
	out, err := s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "alice", Dice: &roll,
	})
	s.Require().NoError(err)
	s.Require().NotNil(out.Outcome.Dice)
	s.Assert().Equal(12, out.Outcome.Dice.Raw)
	s.Assert().Equal(50, out.Outcome.Dice.Value)
	s.Assert().Nil(out.Outcome.Instance)

	// the roller is used when no value is given
	rolled, err := s.service.RollDice(s.ctx, &round.RollDiceInput{SessionID: s.session, ActorID: "bob"})
	s.Require().NoError(err)
	s.Assert().Equal([]int{30}, rolled.Rolls)
	s.Assert().Equal(30, rolled.Result.Value)

	_, err = s.service.RollDice(s.ctx, &round.RollDiceInput{SessionID: s.session, ActorID: "bob", Notation: "d20"})
	s.Assert().True(errors.IsInvalidArgument(err))
}

func (s *OrchestratorTestSuite) TestHandleEventValidation() {
	s.startRound()
	testCases := []struct {
		name  string
		input *round.HandleEventInput
	}{
		{name: "nil input", input: nil},
		{name: "no actor", input: &round.HandleEventInput{SessionID: s.session, SkillID: "ward"}},
		{name: "no skill or dice", input: &round.HandleEventInput{SessionID: s.session, ActorID: "alice"}},
		{name: "no session", input: &round.HandleEventInput{ActorID: "alice", SkillID: "ward"}},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.service.HandleEvent(s.ctx, tc.input)
			s.Assert().True(errors.IsInvalidArgument(err), "got %v", err)
		})
	}

	_, err := s.service.HandleEvent(s.ctx, &round.HandleEventInput{SessionID: s.session, ActorID: "alice", SkillID: "nope"})
	s.Assert().True(errors.HasReason(err, errors.ReasonUnknownSkill))
}

func (s *OrchestratorTestSuite) TestGroupSkillAndCancel() {
	dissolved := s.countEvents(round.EventGroupDissolved)
	s.startRound()

	out, err := s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "bob", SkillID: "link", TargetIDs: []string{"carol", "dave"},
	})
	s.Require().NoError(err)
	s.Require().NotNil(out.Outcome.Group)

	_, err = s.service.CancelSkill(s.ctx, &round.CancelSkillInput{SessionID: s.session, InstanceID: out.Outcome.Instance.ID})
	s.Require().NoError(err)
	s.Assert().Equal(int32(1), dissolved.Load())

	sess, err := s.service.GetSession(s.ctx, &round.GetSessionInput{SessionID: s.session})
	s.Require().NoError(err)
	s.Assert().Empty(sess.Session.Groups)
	s.Assert().Empty(sess.Session.Instances)
}

func (s *OrchestratorTestSuite) TestSetRolesAffectsNextCheck() {
	s.service = s.newService(testDefinitions(), map[string][]permission.Rule{
		"bolt": {permission.AnyRole(battle.RoleAdmin)},
	})
	created, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_roles"})
	s.Require().NoError(err)
	s.session = created.Session.ID
	s.addParticipant("bob", battle.RoleUser, 100)
	s.addParticipant("boss", battle.RoleMonster, 300)
	s.startRound()

	event := &round.HandleEventInput{SessionID: s.session, ActorID: "bob", SkillID: "bolt", TargetIDs: []string{"boss"}}
	_, err = s.service.HandleEvent(s.ctx, event)
	s.Assert().True(errors.IsPermissionDenied(err))

	_, err = s.service.SetRoles(s.ctx, &round.SetRolesInput{
		SessionID: s.session, ParticipantID: "bob", Roles: []battle.Role{battle.RoleUser, battle.RoleAdmin},
	})
	s.Require().NoError(err)

	_, err = s.service.HandleEvent(s.ctx, event)
	s.Assert().NoError(err)
}

func (s *OrchestratorTestSuite) TestHealDoesNotReviveTheDead() {
	s.startRound()
	_, err := s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{SessionID: s.session, ParticipantID: "dave", Amount: 100})
	s.Require().NoError(err)
	_, err = s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{SessionID: s.session, ParticipantID: "carol", Amount: 60})
	s.Require().NoError(err)

	out, err := s.service.Heal(s.ctx, &round.HealInput{SessionID: s.session, ParticipantID: "dave", Amount: 30})
	s.Require().NoError(err)
	s.Assert().Empty(out.Applied)

	out, err = s.service.Heal(s.ctx, &round.HealInput{SessionID: s.session, ParticipantID: "carol", Amount: 500})
	s.Require().NoError(err)
	s.Assert().Equal(100, s.hp("carol"))
}

func (s *OrchestratorTestSuite) TestAdvancePhaseGuard() {
	s.startRound()
	out, err := s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "carol", SkillID: "ritual", TargetIDs: []string{"boss"},
	})
	s.Require().NoError(err)

	_, err = s.service.AdvancePhase(s.ctx, &round.AdvancePhaseInput{SessionID: s.session, InstanceID: out.Outcome.Instance.ID})
	s.Require().Error(err)
	s.Assert().True(errors.HasReason(err, errors.ReasonInvalidPhaseTransition))

	_, err = s.service.AdvancePhase(s.ctx, &round.AdvancePhaseInput{SessionID: s.session, InstanceID: "inst_missing"})
	s.Assert().True(errors.IsNotFound(err))
}

func (s *OrchestratorTestSuite) TestTeardown() {
	out, err := s.service.Teardown(s.ctx, &round.TeardownInput{SessionID: s.session})
	s.Require().NoError(err)
	s.Assert().Equal(1, out.Round)

	_, err = s.service.StartRound(s.ctx, &round.StartRoundInput{SessionID: s.session})
	s.Assert().True(errors.IsNotFound(err))
	_, err = s.service.Teardown(s.ctx, &round.TeardownInput{SessionID: s.session})
	s.Assert().True(errors.IsNotFound(err))

	_, err = s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_1"})
	s.Assert().NoError(err, "channel is free after teardown")
}

func (s *OrchestratorTestSuite) TestConcurrentMutationsAreSerialized() {
	other, err := s.service.CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_2"})
	s.Require().NoError(err)
	_, err = s.service.AddParticipant(s.ctx, &round.AddParticipantInput{
		SessionID:   other.Session.ID,
		Participant: battle.Participant{ID: "boss", Roles: []battle.Role{battle.RoleMonster}, HP: 300},
	})
	s.Require().NoError(err)

	sessions := []string{s.session, other.Session.ID}
	for _, id := range sessions {
		_, err := s.service.StartRound(s.ctx, &round.StartRoundInput{SessionID: id})
		s.Require().NoError(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		for _, id := range sessions {
			wg.Add(1)
			go func(sessionID string) {
				defer wg.Done()
				_, err := s.service.ApplyDamage(s.ctx, &round.ApplyDamageInput{
					SessionID: sessionID, ParticipantID: "boss", Amount: 1,
				})
				s.Assert().NoError(err)
				_, err = s.service.IsAlive(s.ctx, &round.IsAliveInput{SessionID: sessionID, ParticipantID: "boss"})
				s.Assert().NoError(err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range sessions {
		out, err := s.service.GetSession(s.ctx, &round.GetSessionInput{SessionID: id})
		s.Require().NoError(err)
		s.Assert().Equal(200, out.Session.Participants["boss"].HP, "session %s", id)
	}
}

func (s *OrchestratorTestSuite) TestTelemetryRecordsEveryOperation() {
	s.startRound()
	_, _ = s.service.HandleEvent(s.ctx, &round.HandleEventInput{
		SessionID: s.session, ActorID: "bob", SkillID: "bolt", TargetIDs: []string{"boss"},
	})

	results := s.recorder.Results()
	last := results[len(results)-1]
	s.Assert().Equal("handle_event", last.Operation)
	s.Assert().Equal(s.session, last.SessionID)
	s.Assert().Equal("bob", last.ActorID)
	s.Assert().False(last.Success)
	s.Assert().Equal("PERMISSION_DENIED", last.Reason)

	var ops []string
	for _, sum := range s.recorder.Summaries() {
		ops = append(ops, fmt.Sprintf("%s:%d", sum.Operation, sum.Total))
	}
	s.Assert().Contains(ops, "add_participant:5")
	s.Assert().Contains(ops, "start_round:1")
}
