package v1alpha1_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KirkDiggler/rpg-skill-engine/internal/damage"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/handlers/skills/v1alpha1"
	"github.com/KirkDiggler/rpg-skill-engine/internal/ledger"
	"github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round"
	roundmock "github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round/mock"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
)

type HandlerTestSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockRound *roundmock.MockService
	handler   *v1alpha1.Handler
	ctx       context.Context
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockRound = roundmock.NewMockService(s.ctrl)
	s.ctx = context.Background()

	handler, err := v1alpha1.NewHandler(&v1alpha1.HandlerConfig{
		RoundService: s.mockRound,
	})
	s.Require().NoError(err)
	s.handler = handler
}

func (s *HandlerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerTestSuite) TestNewHandler_RequiresService() {
	_, err := v1alpha1.NewHandler(&v1alpha1.HandlerConfig{})
	s.Require().Error(err)
	s.Assert().True(errors.IsInvalidArgument(err))

	_, err = v1alpha1.NewHandler(nil)
	s.Require().Error(err)
}

func (s *HandlerTestSuite) TestCreateSession_Success() {
	session := battle.NewSession("ses_1", "chan_1", testNow)

	s.mockRound.EXPECT().
		CreateSession(s.ctx, &round.CreateSessionInput{ChannelID: "chan_1"}).
		Return(&round.CreateSessionOutput{Session: session}, nil)

	resp, err := s.handler.CreateSession(s.ctx, &v1alpha1.CreateSessionRequest{ChannelID: "chan_1"})
	s.Require().NoError(err)
	s.Assert().Equal("ses_1", resp.Session.ID)
}

func (s *HandlerTestSuite) TestCreateSession_MissingChannel() {
	_, err := s.handler.CreateSession(s.ctx, &v1alpha1.CreateSessionRequest{})
	s.Require().Error(err)

	st, ok := status.FromError(err)
	s.Require().True(ok)
	s.Assert().Equal(codes.InvalidArgument, st.Code())
	s.Assert().Contains(st.Message(), "channel_id")
}

func (s *HandlerTestSuite) TestCreateSession_ChannelTaken() {
	s.mockRound.EXPECT().
		CreateSession(s.ctx, gomock.Any()).
		Return(nil, battle.SessionExists("chan_1", "ses_1"))

	_, err := s.handler.CreateSession(s.ctx, &v1alpha1.CreateSessionRequest{ChannelID: "chan_1"})
	s.Require().Error(err)
	s.Assert().Equal(codes.AlreadyExists, status.Code(err))
}

func (s *HandlerTestSuite) TestGetSession_NeedsSelector() {
	_, err := s.handler.GetSession(s.ctx, &v1alpha1.GetSessionRequest{})
	s.Require().Error(err)
	s.Assert().Equal(codes.InvalidArgument, status.Code(err))
}

func (s *HandlerTestSuite) TestHandleEvent_Success() {
	dice := 73
	outcome := &round.Outcome{
		Applied: map[string]int{"boss": 15},
	}

	s.mockRound.EXPECT().
		HandleEvent(s.ctx, &round.HandleEventInput{
			SessionID: "ses_1",
			ActorID:   "alice",
			SkillID:   "bolt",
			TargetIDs: []string{"boss"},
			Dice:      &dice,
		}).
		Return(&round.HandleEventOutput{Outcome: outcome}, nil)

	resp, err := s.handler.HandleEvent(s.ctx, &v1alpha1.HandleEventRequest{
		SessionID: "ses_1",
		ActorID:   "alice",
		SkillID:   "bolt",
		TargetIDs: []string{"boss"},
		Dice:      &dice,
	})
	s.Require().NoError(err)
	s.Assert().Equal(15, resp.Outcome.Applied["boss"])
}

func (s *HandlerTestSuite) TestHandleEvent_Validation() {
	testCases := []struct {
		name  string
		req   *v1alpha1.HandleEventRequest
		field string
	}{
		{
			name:  "missing session",
			req:   &v1alpha1.HandleEventRequest{ActorID: "alice", SkillID: "bolt"},
			field: "session_id",
		},
		{
			name:  "missing actor",
			req:   &v1alpha1.HandleEventRequest{SessionID: "ses_1", SkillID: "bolt"},
			field: "actor_id",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.handler.HandleEvent(s.ctx, tc.req)
			s.Require().Error(err)
			s.Assert().Equal(codes.InvalidArgument, status.Code(err))
			s.Assert().Contains(status.Convert(err).Message(), tc.field)
		})
	}
}

func (s *HandlerTestSuite) TestHandleEvent_PermissionDenied() {
	s.mockRound.EXPECT().
		HandleEvent(s.ctx, gomock.Any()).
		Return(nil, battle.PermissionDenied("bob", "bolt"))

	_, err := s.handler.HandleEvent(s.ctx, &v1alpha1.HandleEventRequest{
		SessionID: "ses_1",
		ActorID:   "bob",
		SkillID:   "bolt",
	})
	s.Require().Error(err)
	s.Assert().Equal(codes.PermissionDenied, status.Code(err))

	recovered := errors.FromGRPCError(err)
	s.Assert().True(errors.HasReason(recovered, errors.ReasonPermissionDenied))
}

func (s *HandlerTestSuite) TestEndRound_PassesSummary() {
	s.mockRound.EXPECT().
		EndRound(s.ctx, &round.EndRoundInput{SessionID: "ses_1"}).
		Return(&round.EndRoundOutput{
			Round:  3,
			Ticked: 2,
			Expired: []*ledger.Expiry{
				{InstanceID: "inst_1", SkillID: "ritual", OwnerID: "carol"},
			},
			Deaths: []string{"dave"},
		}, nil)

	resp, err := s.handler.EndRound(s.ctx, &v1alpha1.SessionRequest{SessionID: "ses_1"})
	s.Require().NoError(err)
	s.Assert().Equal(3, resp.Round)
	s.Assert().Equal(2, resp.Ticked)
	s.Require().Len(resp.Expired, 1)
	s.Assert().Equal("ritual", resp.Expired[0].SkillID)
	s.Assert().Equal([]string{"dave"}, resp.Deaths)
}

func (s *HandlerTestSuite) TestEndRound_NotInProgress() {
	s.mockRound.EXPECT().
		EndRound(s.ctx, gomock.Any()).
		Return(nil, battle.SessionNotInProgress("ses_1", battle.StateIdle))

	_, err := s.handler.EndRound(s.ctx, &v1alpha1.SessionRequest{SessionID: "ses_1"})
	s.Require().Error(err)
	s.Assert().Equal(codes.FailedPrecondition, status.Code(err))
}

func (s *HandlerTestSuite) TestApplyDamage() {
	s.mockRound.EXPECT().
		ApplyDamage(s.ctx, &round.ApplyDamageInput{SessionID: "ses_1", ParticipantID: "boss", Amount: 30}).
		Return(&round.ApplyDamageOutput{
			Applied: damage.Plan{"boss": 30},
			Changes: []registry.HPChange{{ParticipantID: "boss", Before: 300, After: 270}},
		}, nil)

	resp, err := s.handler.ApplyDamage(s.ctx, &v1alpha1.HPRequest{
		SessionID:     "ses_1",
		ParticipantID: "boss",
		Amount:        30,
	})
	s.Require().NoError(err)
	s.Assert().Equal(30, resp.Applied["boss"])
	s.Require().Len(resp.Changes, 1)
	s.Assert().Equal(270, resp.Changes[0].After)
}

func (s *HandlerTestSuite) TestSaveSession() {
	s.mockRound.EXPECT().
		Save(s.ctx, &round.SaveInput{SessionID: "ses_1"}).
		Return(&round.SaveOutput{Blob: []byte(`{"id":"ses_1"}`), Version: 4}, nil)

	resp, err := s.handler.SaveSession(s.ctx, &v1alpha1.SessionRequest{SessionID: "ses_1"})
	s.Require().NoError(err)
	s.Assert().Equal(int64(4), resp.Version)
	s.Assert().JSONEq(`{"id":"ses_1"}`, string(resp.Blob))
}

func (s *HandlerTestSuite) TestListActive_RequiresParticipant() {
	_, err := s.handler.ListActive(s.ctx, &v1alpha1.ParticipantRequest{SessionID: "ses_1"})
	s.Require().Error(err)
	s.Assert().Equal(codes.InvalidArgument, status.Code(err))
}
