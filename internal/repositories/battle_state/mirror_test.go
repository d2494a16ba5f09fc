package battlestate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	battlestate "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state"
	battlestatemock "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state/mock"
)

type MirrorTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	primary *battlestatemock.MockRepository
	backup  *battlestatemock.MockRepository
	repo    battlestate.Repository
	ctx     context.Context
}

func TestMirrorSuite(t *testing.T) {
	suite.Run(t, new(MirrorTestSuite))
}

func (s *MirrorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.primary = battlestatemock.NewMockRepository(s.ctrl)
	s.backup = battlestatemock.NewMockRepository(s.ctrl)
	s.ctx = context.Background()

	repo, err := battlestate.NewMirror(&battlestate.MirrorConfig{
		Primary: s.primary,
		Backup:  s.backup,
	})
	s.Require().NoError(err)
	s.repo = repo
}

func (s *MirrorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *MirrorTestSuite) TestNewMirrorValidation() {
	_, err := battlestate.NewMirror(&battlestate.MirrorConfig{Primary: s.primary})
	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "Backup")
}

func (s *MirrorTestSuite) TestSaveWritesBoth() {
	input := &battlestate.SaveInput{Session: newTestSession("sess_1", "chan_1")}
	s.primary.EXPECT().Save(s.ctx, input).Return(&battlestate.SaveOutput{Version: 1}, nil)
	s.backup.EXPECT().Save(s.ctx, input).Return(&battlestate.SaveOutput{Version: 1}, nil)

	out, err := s.repo.Save(s.ctx, input)
	s.Require().NoError(err)
	s.Assert().Equal(int64(1), out.Version)
}

func (s *MirrorTestSuite) TestSaveBackupFailureIsTolerated() {
	input := &battlestate.SaveInput{Session: newTestSession("sess_1", "chan_1")}
	s.primary.EXPECT().Save(s.ctx, input).Return(&battlestate.SaveOutput{Version: 1}, nil)
	s.backup.EXPECT().Save(s.ctx, input).Return(nil, errors.Unavailable("disk full"))

	_, err := s.repo.Save(s.ctx, input)
	s.Assert().NoError(err)
}

func (s *MirrorTestSuite) TestSavePrimaryFailureSkipsBackup() {
	input := &battlestate.SaveInput{Session: newTestSession("sess_1", "chan_1")}
	s.primary.EXPECT().Save(s.ctx, input).Return(nil, errors.Unavailable("redis down"))

	_, err := s.repo.Save(s.ctx, input)
	s.Require().Error(err)
	s.Assert().Equal(errors.CodeUnavailable, errors.GetCode(err))
}

func (s *MirrorTestSuite) TestGetFallsBackToBackup() {
	input := &battlestate.GetInput{SessionID: "sess_1"}
	restored := &battlestate.GetOutput{Session: newTestSession("sess_1", "chan_1")}
	s.primary.EXPECT().Get(s.ctx, input).Return(nil, battle.SessionNotFound("sess_1"))
	s.backup.EXPECT().Get(s.ctx, input).Return(restored, nil)

	out, err := s.repo.Get(s.ctx, input)
	s.Require().NoError(err)
	s.Assert().Same(restored, out)
}

func (s *MirrorTestSuite) TestGetReturnsPrimaryErrorWhenBothMiss() {
	input := &battlestate.GetInput{SessionID: "sess_1"}
	s.primary.EXPECT().Get(s.ctx, input).Return(nil, errors.Unavailable("redis down"))
	s.backup.EXPECT().Get(s.ctx, input).Return(nil, battle.SessionNotFound("sess_1"))

	_, err := s.repo.Get(s.ctx, input)
	s.Assert().Equal(errors.CodeUnavailable, errors.GetCode(err))
}

func (s *MirrorTestSuite) TestGetInvalidDoesNotFallBack() {
	input := &battlestate.GetInput{}
	s.primary.EXPECT().Get(s.ctx, input).Return(nil, errors.InvalidArgument("session ID is required"))

	_, err := s.repo.Get(s.ctx, input)
	s.Assert().True(errors.IsInvalidArgument(err))
}

func (s *MirrorTestSuite) TestGetByChannelFallsBack() {
	input := &battlestate.GetByChannelInput{ChannelID: "chan_1"}
	restored := &battlestate.GetOutput{Session: newTestSession("sess_1", "chan_1")}
	s.primary.EXPECT().GetByChannel(s.ctx, input).Return(nil, errors.Unavailable("redis down"))
	s.backup.EXPECT().GetByChannel(s.ctx, input).Return(restored, nil)

	out, err := s.repo.GetByChannel(s.ctx, input)
	s.Require().NoError(err)
	s.Assert().Equal("sess_1", out.Session.ID)
}

func (s *MirrorTestSuite) TestDelete() {
	input := &battlestate.DeleteInput{SessionID: "sess_1"}

	s.Run("either store holding it is enough", func() {
		s.primary.EXPECT().Delete(s.ctx, input).Return(nil, battle.SessionNotFound("sess_1"))
		s.backup.EXPECT().Delete(s.ctx, input).Return(&battlestate.DeleteOutput{}, nil)
		_, err := s.repo.Delete(s.ctx, input)
		s.Assert().NoError(err)
	})

	s.Run("neither store", func() {
		s.primary.EXPECT().Delete(s.ctx, input).Return(nil, battle.SessionNotFound("sess_1"))
		s.backup.EXPECT().Delete(s.ctx, input).Return(nil, battle.SessionNotFound("sess_1"))
		_, err := s.repo.Delete(s.ctx, input)
		s.Assert().True(errors.IsNotFound(err))
	})
}

func (s *MirrorTestSuite) TestReleaseChannel() {
	input := &battlestate.ReleaseChannelInput{ChannelID: "chan_1", SessionID: "sess_1"}

	s.Run("releases on both stores", func() {
		s.primary.EXPECT().ReleaseChannel(s.ctx, input).Return(&battlestate.ReleaseChannelOutput{Released: true}, nil)
		s.backup.EXPECT().ReleaseChannel(s.ctx, input).Return(nil, errors.Unavailable("disk full"))
		out, err := s.repo.ReleaseChannel(s.ctx, input)
		s.Require().NoError(err)
		s.Assert().True(out.Released)
	})

	s.Run("primary failure is returned", func() {
		s.primary.EXPECT().ReleaseChannel(s.ctx, input).Return(nil, errors.Unavailable("redis down"))
		s.backup.EXPECT().ReleaseChannel(s.ctx, input).Return(&battlestate.ReleaseChannelOutput{Released: true}, nil)
		_, err := s.repo.ReleaseChannel(s.ctx, input)
		s.Assert().Equal(errors.CodeUnavailable, errors.GetCode(err))
	})
}

func (s *MirrorTestSuite) TestListFallsBack() {
	s.primary.EXPECT().List(s.ctx, gomock.Any()).Return(nil, errors.Unavailable("redis down"))
	s.backup.EXPECT().List(s.ctx, gomock.Any()).Return(&battlestate.ListOutput{SessionIDs: []string{"sess_1"}}, nil)

	out, err := s.repo.List(s.ctx, &battlestate.ListInput{})
	s.Require().NoError(err)
	s.Assert().Equal([]string{"sess_1"}, out.SessionIDs)
}

func (s *MirrorTestSuite) TestMirrorOverRealStores() {
	primary := battlestate.NewInMemory()
	backup := battlestate.NewInMemory()
	repo, err := battlestate.NewMirror(&battlestate.MirrorConfig{Primary: primary, Backup: backup})
	s.Require().NoError(err)

	_, err = repo.Save(s.ctx, &battlestate.SaveInput{Session: newTestSession("sess_1", "chan_1")})
	s.Require().NoError(err)

	// primary loses its data
	_, err = primary.Delete(s.ctx, &battlestate.DeleteInput{SessionID: "sess_1"})
	s.Require().NoError(err)

	out, err := repo.Get(s.ctx, &battlestate.GetInput{SessionID: "sess_1"})
	s.Require().NoError(err)
	s.Assert().Equal(500, out.Session.Participants["boss"].HP)
}
