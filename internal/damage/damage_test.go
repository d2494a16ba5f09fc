package damage_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/KirkDiggler/rpg-skill-engine/internal/damage"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
	"github.com/KirkDiggler/rpg-skill-engine/internal/testutils/builders"
)

type DamageTestSuite struct {
	suite.Suite
	session *battle.Session
}

func TestDamageSuite(t *testing.T) {
	suite.Run(t, new(DamageTestSuite))
}

func (s *DamageTestSuite) SetupTest() {
	s.session = builders.NewSessionBuilder().
		WithUser("p1", 100).
		WithUser("p2", 100).
		WithUser("p3", 100).
		WithUser("p4", 100).
		Build()
}

func (s *DamageTestSuite) link(policy battle.Policy, formedBy, primary string, members ...string) {
	s.Require().NoError(registry.Link(s.session, &battle.SharingGroup{
		ID: "g", Members: members, Policy: policy, FormedBy: formedBy, PrimaryID: primary,
	}))
}

func (s *DamageTestSuite) instance(id string, targets ...string) *battle.SkillInstance {
	return &battle.SkillInstance{ID: id, SkillID: "skill", OwnerID: "p1", Targets: targets, RemainingRounds: 1}
}

func (s *DamageTestSuite) TestDirectDamageWithoutGroup() {
	plan, err := damage.Resolve(s.session, s.instance("i1", "p2", "p3"), 30)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p2": 30, "p3": 30}, plan)
}

func (s *DamageTestSuite) TestSplitEvenTwoMembers() {
	s.link(battle.PolicySplitEven, "", "", "p1", "p2")

	plan, err := damage.Distribute(s.session, "p1", 100)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 50, "p2": 50}, plan)
}

func (s *DamageTestSuite) TestSplitEvenRemainderGoesToLowestID() {
	s.link(battle.PolicySplitEven, "", "", "p3", "p2", "p1")

	plan, err := damage.Distribute(s.session, "p3", 100)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 34, "p2": 33, "p3": 33}, plan)
}

func (s *DamageTestSuite) TestSplitEvenSumAndKeys() {
	for _, total := range []int{0, 1, 2, 7, 99, 100, 101, 1000} {
		for _, dead := range [][]string{nil, {"p2"}, {"p2", "p4"}} {
			s.Run(fmt.Sprintf("%d_dead_%v", total, dead), func() {
				s.SetupTest()
				s.link(battle.PolicySplitEven, "", "", "p1", "p2", "p3", "p4")
				for _, id := range dead {
					s.session.Participants[id].Alive = false
				}
				alive := s.session.AliveIDs("")

				plan, err := damage.Distribute(s.session, "p1", total)
				s.Require().NoError(err)
				s.Assert().Equal(total, plan.Total())
				s.Assert().Equal(alive, plan.IDs(), "one key per alive member")
				for _, id := range plan.IDs() {
					s.Assert().NotEqual("all_alive", id)
				}
			})
		}
	}
}

func (s *DamageTestSuite) TestFullToAll() {
	s.link(battle.PolicyFullToAll, "", "", "p1", "p2", "p3")
	s.session.Participants["p3"].Alive = false

	plan, err := damage.Distribute(s.session, "p2", 25)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 25, "p2": 25}, plan)
}

func (s *DamageTestSuite) TestPrimaryAbsorbs() {
	s.link(battle.PolicyPrimaryAbsorbs, "", "p3", "p1", "p2", "p3")

	plan, err := damage.Distribute(s.session, "p1", 40)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 0, "p2": 0, "p3": 40}, plan)

	s.session.Participants["p3"].Alive = false
	plan, err = damage.Distribute(s.session, "p1", 40)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 40}, plan, "dead primary absorbs nothing")
}

func (s *DamageTestSuite) TestGroupOnlyAppliesToFormingSkill() {
	s.link(battle.PolicySplitEven, "i1", "", "p1", "p2")

	plan, err := damage.Resolve(s.session, s.instance("i1", "p1"), 60)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 30, "p2": 30}, plan)

	plan, err = damage.Resolve(s.session, s.instance("i2", "p1"), 60)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 60}, plan)

	plan, err = damage.Distribute(s.session, "p1", 60)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 60}, plan)
}

func (s *DamageTestSuite) TestGlobalGroupAppliesToAnySource() {
	s.Require().NoError(registry.Link(s.session, &battle.SharingGroup{
		ID: "g", Members: []string{"p1", "p2"}, Policy: battle.PolicySplitEven, FormedBy: "i1", Global: true,
	}))

	plan, err := damage.Distribute(s.session, "p2", 10)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p1": 5, "p2": 5}, plan)
}

func (s *DamageTestSuite) TestDeadTargetsExcluded() {
	s.session.Participants["p2"].Alive = false

	plan, err := damage.Resolve(s.session, s.instance("i1", "p2", "p3", "gone"), 10)
	s.Require().NoError(err)
	s.Assert().Equal(damage.Plan{"p3": 10}, plan)

	plan, err = damage.Distribute(s.session, "p2", 10)
	s.Require().NoError(err)
	s.Assert().Empty(plan)
}

func (s *DamageTestSuite) TestInvalidInput() {
	_, err := damage.Resolve(s.session, s.instance("i1", "p2"), -1)
	s.Assert().True(errors.IsInvalidArgument(err))

	_, err = damage.Resolve(s.session, nil, 1)
	s.Assert().True(errors.IsInvalidArgument(err))

	_, err = damage.Distribute(s.session, "ghost", 1)
	s.Assert().True(errors.IsNotFound(err))
}

func (s *DamageTestSuite) TestCommit() {
	changes, err := damage.Commit(s.session, damage.Plan{"p1": 150, "p2": 20}, battle.EffectDamage)
	s.Require().NoError(err)
	s.Require().Len(changes, 2)
	s.Assert().True(changes[0].Died)
	s.Assert().Equal(80, s.session.Participants["p2"].HP)

	_, err = damage.Commit(s.session, damage.Plan{"p2": 10}, battle.EffectHeal)
	s.Require().NoError(err)
	s.Assert().Equal(90, s.session.Participants["p2"].HP)

	inst := s.instance("i9", "p1", "p2")
	revival := damage.Revival(s.session, inst, 30)
	s.Assert().Equal(damage.Plan{"p1": 30}, revival)
	_, err = damage.Commit(s.session, revival, battle.EffectRevive)
	s.Require().NoError(err)
	s.Assert().True(s.session.Participants["p1"].Alive)
	s.Assert().Equal(30, s.session.Participants["p1"].HP)
}

func (s *DamageTestSuite) TestCommitIsAllOrNothing() {
	_, err := damage.Commit(s.session, damage.Plan{"p1": 10, "ghost": 10}, battle.EffectDamage)
	s.Require().Error(err)
	s.Assert().Equal(100, s.session.Participants["p1"].HP)

	_, err = damage.Commit(s.session, damage.Plan{"p1": 10}, "poison")
	s.Assert().True(errors.IsInvalidArgument(err))
	s.Assert().Equal(100, s.session.Participants["p1"].HP)
}
