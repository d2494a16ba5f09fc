package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
)

type RegistryTestSuite struct {
	suite.Suite
	session *battle.Session
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupTest() {
	s.session = battle.NewSession("sess", "chan", time.Now())
	for _, id := range []string{"p1", "p2", "p3"} {
		s.Require().NoError(registry.Add(s.session, &battle.Participant{
			ID: id, Roles: []battle.Role{battle.RoleUser}, HP: 100,
		}))
	}
}

func (s *RegistryTestSuite) TestAddDefaults() {
	p, ok := s.session.Participant("p1")
	s.Require().True(ok)
	s.Assert().Equal("p1", p.Name)
	s.Assert().Equal(100, p.MaxHP)
	s.Assert().True(p.Alive)
}

func (s *RegistryTestSuite) TestAddDuplicate() {
	err := registry.Add(s.session, &battle.Participant{ID: "p1", HP: 5})
	s.Require().Error(err)
	s.Assert().Equal(errors.ReasonDuplicateParticipant, errors.GetReason(err))
	s.Assert().Equal(100, s.session.Participants["p1"].HP, "state untouched")
}

func (s *RegistryTestSuite) TestAddValidation() {
	s.Assert().True(errors.IsInvalidArgument(registry.Add(s.session, &battle.Participant{HP: 5})))
	s.Assert().True(errors.IsInvalidArgument(registry.Add(s.session, &battle.Participant{ID: "x", HP: -1})))
	s.Assert().True(errors.IsInvalidArgument(registry.Add(s.session, nil)))
}

func (s *RegistryTestSuite) TestApplyDamageClampsAndKills() {
	change, err := registry.ApplyDamage(s.session, "p1", 30)
	s.Require().NoError(err)
	s.Assert().Equal(-30, change.Delta())
	s.Assert().False(change.Died)

	change, err = registry.ApplyDamage(s.session, "p1", 500)
	s.Require().NoError(err)
	s.Assert().Equal(0, change.After)
	s.Assert().True(change.Died)

	alive, err := registry.IsAlive(s.session, "p1")
	s.Require().NoError(err)
	s.Assert().False(alive)

	change, err = registry.ApplyDamage(s.session, "p1", 10)
	s.Require().NoError(err)
	s.Assert().False(change.Died, "already dead")
	s.Assert().Equal(0, change.Delta())

	_, err = registry.ApplyDamage(s.session, "ghost", 10)
	s.Assert().True(errors.IsNotFound(err))

	_, err = registry.ApplyDamage(s.session, "p2", -5)
	s.Assert().True(errors.IsInvalidArgument(err))
}

func (s *RegistryTestSuite) TestHealAndRevive() {
	_, err := registry.ApplyDamage(s.session, "p1", 40)
	s.Require().NoError(err)

	change, err := registry.Heal(s.session, "p1", 100)
	s.Require().NoError(err)
	s.Assert().Equal(100, change.After, "clamped at max")

	_, err = registry.ApplyDamage(s.session, "p2", 100)
	s.Require().NoError(err)
	change, err = registry.Heal(s.session, "p2", 50)
	s.Require().NoError(err)
	s.Assert().Equal(0, change.After, "dead are not healed")

	change, err = registry.Revive(s.session, "p2", 0)
	s.Require().NoError(err)
	s.Assert().True(change.Revived)
	s.Assert().Equal(1, change.After)
	s.Assert().True(s.session.Participants["p2"].Alive)

	change, err = registry.Revive(s.session, "p2", 50)
	s.Require().NoError(err)
	s.Assert().False(change.Revived, "already alive")
}

func (s *RegistryTestSuite) TestAliveWithRole() {
	s.Require().NoError(registry.Add(s.session, &battle.Participant{
		ID: "boss", Roles: []battle.Role{battle.RoleMonster}, HP: 300,
	}))
	_, err := registry.ApplyDamage(s.session, "p2", 100)
	s.Require().NoError(err)

	s.Assert().Equal([]string{"p1", "p3"}, registry.AliveWithRole(s.session, battle.RoleUser))
	s.Assert().Equal([]string{"boss"}, registry.AliveWithRole(s.session, battle.RoleMonster))
}

func (s *RegistryTestSuite) TestLinkIsExclusive() {
	s.Require().NoError(registry.Link(s.session, &battle.SharingGroup{
		ID: "g1", Members: []string{"p2", "p1"}, Policy: battle.PolicySplitEven,
	}))
	s.Assert().Equal([]string{"p1", "p2"}, s.session.Groups["g1"].Members)
	s.Assert().Equal("g1", s.session.Participants["p1"].GroupID)

	err := registry.Link(s.session, &battle.SharingGroup{
		ID: "g2", Members: []string{"p2", "p3"}, Policy: battle.PolicyFullToAll,
	})
	s.Require().Error(err)
	s.Assert().True(errors.IsFailedPrecondition(err))
	s.Assert().Empty(s.session.Participants["p3"].GroupID, "no partial link")
	s.Assert().NotContains(s.session.Groups, "g2")
}

func (s *RegistryTestSuite) TestLinkValidation() {
	testCases := []struct {
		name  string
		group *battle.SharingGroup
	}{
		{"too small", &battle.SharingGroup{ID: "g", Members: []string{"p1"}, Policy: battle.PolicySplitEven}},
		{"duplicates collapse", &battle.SharingGroup{ID: "g", Members: []string{"p1", "p1"}, Policy: battle.PolicySplitEven}},
		{"bad policy", &battle.SharingGroup{ID: "g", Members: []string{"p1", "p2"}, Policy: "all_alive"}},
		{"primary outside", &battle.SharingGroup{ID: "g", Members: []string{"p1", "p2"}, Policy: battle.PolicyPrimaryAbsorbs, PrimaryID: "p3"}},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Assert().True(errors.IsInvalidArgument(registry.Link(s.session, tc.group)))
		})
	}

	err := registry.Link(s.session, &battle.SharingGroup{ID: "g", Members: []string{"p1", "ghost"}, Policy: battle.PolicySplitEven})
	s.Assert().True(errors.IsNotFound(err))
}

func (s *RegistryTestSuite) TestDissolve() {
	s.Require().NoError(registry.Link(s.session, &battle.SharingGroup{
		ID: "g1", Members: []string{"p1", "p2"}, Policy: battle.PolicySplitEven,
	}))
	s.Require().NoError(registry.Dissolve(s.session, "g1"))
	s.Assert().Empty(s.session.Groups)
	s.Assert().Empty(s.session.Participants["p1"].GroupID)

	s.Assert().True(errors.IsNotFound(registry.Dissolve(s.session, "g1")))
}

func (s *RegistryTestSuite) TestRemoveDissolvesUndersizedGroup() {
	s.Require().NoError(registry.Link(s.session, &battle.SharingGroup{
		ID: "g1", Members: []string{"p1", "p2"}, Policy: battle.PolicySplitEven,
	}))

	removal, err := registry.Remove(s.session, "p1")
	s.Require().NoError(err)
	s.Assert().Equal([]string{"g1"}, removal.DissolvedGroups)
	s.Assert().Empty(s.session.Groups)
	s.Assert().Empty(s.session.Participants["p2"].GroupID)
}

func (s *RegistryTestSuite) TestRemoveKeepsLargerGroupAndMovesPrimary() {
	s.Require().NoError(registry.Link(s.session, &battle.SharingGroup{
		ID: "g1", Members: []string{"p1", "p2", "p3"}, Policy: battle.PolicyPrimaryAbsorbs, PrimaryID: "p1",
	}))

	removal, err := registry.Remove(s.session, "p1")
	s.Require().NoError(err)
	s.Assert().Empty(removal.DissolvedGroups)
	s.Assert().Equal([]string{"p2", "p3"}, s.session.Groups["g1"].Members)
	s.Assert().Equal("p2", s.session.Groups["g1"].PrimaryID)
}

func (s *RegistryTestSuite) TestRemoveCascadesToInstances() {
	s.session.Instances = []*battle.SkillInstance{
		{ID: "i1", SkillID: "link", OwnerID: "p1", Targets: []string{"p2", "p3"}, RemainingRounds: 2},
		{ID: "i2", SkillID: "heal", OwnerID: "p2", Targets: []string{"p1", "p3"}, RemainingRounds: 2},
	}
	s.Require().NoError(registry.Link(s.session, &battle.SharingGroup{
		ID: "g1", Members: []string{"p2", "p3"}, Policy: battle.PolicyFullToAll, FormedBy: "i1",
	}))
	s.session.Instances[0].GroupID = "g1"

	removal, err := registry.Remove(s.session, "p1")
	s.Require().NoError(err)
	s.Assert().Equal([]string{"i1"}, removal.CancelledInstances)
	s.Assert().Equal([]string{"g1"}, removal.DissolvedGroups)

	s.Require().Len(s.session.Instances, 1)
	s.Assert().Equal([]string{"p3"}, s.session.Instances[0].Targets)
	s.Assert().Empty(s.session.Groups)
	s.Assert().NotContains(s.session.Participants, "p1")

	_, err = registry.Remove(s.session, "p1")
	s.Assert().Equal(errors.ReasonNotFound, errors.GetReason(err))
}
