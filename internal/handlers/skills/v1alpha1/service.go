package v1alpha1

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "skills.v1alpha1.SkillEngine"

// SkillEngineServer is the server API for the skill engine service
type SkillEngineServer interface {
	CreateSession(context.Context, *CreateSessionRequest) (*SessionResponse, error)
	GetSession(context.Context, *GetSessionRequest) (*SessionResponse, error)
	Teardown(context.Context, *TeardownRequest) (*TeardownResponse, error)
	AddParticipant(context.Context, *AddParticipantRequest) (*ParticipantResponse, error)
	RemoveParticipant(context.Context, *ParticipantRequest) (*RemoveParticipantResponse, error)
	SetRoles(context.Context, *SetRolesRequest) (*ParticipantResponse, error)
	StartRound(context.Context, *SessionRequest) (*StartRoundResponse, error)
	EndRound(context.Context, *SessionRequest) (*EndRoundResponse, error)
	HandleEvent(context.Context, *HandleEventRequest) (*HandleEventResponse, error)
	AdvancePhase(context.Context, *InstanceRequest) (*AdvancePhaseResponse, error)
	CancelSkill(context.Context, *InstanceRequest) (*CancelSkillResponse, error)
	ApplyDamage(context.Context, *HPRequest) (*HPResponse, error)
	Heal(context.Context, *HPRequest) (*HPResponse, error)
	RollDice(context.Context, *RollDiceRequest) (*RollDiceResponse, error)
	ListActive(context.Context, *ParticipantRequest) (*ListActiveResponse, error)
	IsAlive(context.Context, *ParticipantRequest) (*IsAliveResponse, error)
	SaveSession(context.Context, *SessionRequest) (*SaveSessionResponse, error)
	LoadSession(context.Context, *LoadSessionRequest) (*SessionResponse, error)
}

// SkillEngineServiceDesc describes the service for grpc.Server
var SkillEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SkillEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateSession", SkillEngineServer.CreateSession),
		unary("GetSession", SkillEngineServer.GetSession),
		unary("Teardown", SkillEngineServer.Teardown),
		unary("AddParticipant", SkillEngineServer.AddParticipant),
		unary("RemoveParticipant", SkillEngineServer.RemoveParticipant),
		unary("SetRoles", SkillEngineServer.SetRoles),
		unary("StartRound", SkillEngineServer.StartRound),
		unary("EndRound", SkillEngineServer.EndRound),
		unary("HandleEvent", SkillEngineServer.HandleEvent),
		unary("AdvancePhase", SkillEngineServer.AdvancePhase),
		unary("CancelSkill", SkillEngineServer.CancelSkill),
		unary("ApplyDamage", SkillEngineServer.ApplyDamage),
		unary("Heal", SkillEngineServer.Heal),
		unary("RollDice", SkillEngineServer.RollDice),
		unary("ListActive", SkillEngineServer.ListActive),
		unary("IsAlive", SkillEngineServer.IsAlive),
		unary("SaveSession", SkillEngineServer.SaveSession),
		unary("LoadSession", SkillEngineServer.LoadSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "skills/v1alpha1/engine",
}

// RegisterSkillEngineServer registers the service on s
func RegisterSkillEngineServer(s grpc.ServiceRegistrar, srv SkillEngineServer) {
	s.RegisterService(&SkillEngineServiceDesc, srv)
}

func unary[Req, Resp any](
	method string,
	call func(SkillEngineServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SkillEngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(SkillEngineServer), ctx, req.(*Req))
			})
		},
	}
}

// SkillEngineClient is the client API for the skill engine service. Calls
// always use the JSON codec.
type SkillEngineClient interface {
	CreateSession(ctx context.Context, in *CreateSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	GetSession(ctx context.Context, in *GetSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	Teardown(ctx context.Context, in *TeardownRequest, opts ...grpc.CallOption) (*TeardownResponse, error)
	AddParticipant(ctx context.Context, in *AddParticipantRequest, opts ...grpc.CallOption) (*ParticipantResponse, error)
	RemoveParticipant(ctx context.Context, in *ParticipantRequest, opts ...grpc.CallOption) (*RemoveParticipantResponse, error)
	SetRoles(ctx context.Context, in *SetRolesRequest, opts ...grpc.CallOption) (*ParticipantResponse, error)
	StartRound(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*StartRoundResponse, error)
	EndRound(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*EndRoundResponse, error)
	HandleEvent(ctx context.Context, in *HandleEventRequest, opts ...grpc.CallOption) (*HandleEventResponse, error)
	AdvancePhase(ctx context.Context, in *InstanceRequest, opts ...grpc.CallOption) (*AdvancePhaseResponse, error)
	CancelSkill(ctx context.Context, in *InstanceRequest, opts ...grpc.CallOption) (*CancelSkillResponse, error)
	ApplyDamage(ctx context.Context, in *HPRequest, opts ...grpc.CallOption) (*HPResponse, error)
	Heal(ctx context.Context, in *HPRequest, opts ...grpc.CallOption) (*HPResponse, error)
	RollDice(ctx context.Context, in *RollDiceRequest, opts ...grpc.CallOption) (*RollDiceResponse, error)
	ListActive(ctx context.Context, in *ParticipantRequest, opts ...grpc.CallOption) (*ListActiveResponse, error)
	IsAlive(ctx context.Context, in *ParticipantRequest, opts ...grpc.CallOption) (*IsAliveResponse, error)
	SaveSession(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SaveSessionResponse, error)
	LoadSession(ctx context.Context, in *LoadSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error)
}

type skillEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewSkillEngineClient wraps a connection
func NewSkillEngineClient(cc grpc.ClientConnInterface) SkillEngineClient {
	return &skillEngineClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *skillEngineClient) CreateSession(ctx context.Context, in *CreateSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "CreateSession", in, opts)
}

func (c *skillEngineClient) GetSession(ctx context.Context, in *GetSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "GetSession", in, opts)
}

func (c *skillEngineClient) Teardown(ctx context.Context, in *TeardownRequest, opts ...grpc.CallOption) (*TeardownResponse, error) {
	return invoke[TeardownResponse](ctx, c.cc, "Teardown", in, opts)
}

func (c *skillEngineClient) AddParticipant(ctx context.Context, in *AddParticipantRequest, opts ...grpc.CallOption) (*ParticipantResponse, error) {
	return invoke[ParticipantResponse](ctx, c.cc, "AddParticipant", in, opts)
}

func (c *skillEngineClient) RemoveParticipant(ctx context.Context, in *ParticipantRequest, opts ...grpc.CallOption) (*RemoveParticipantResponse, error) {
	return invoke[RemoveParticipantResponse](ctx, c.cc, "RemoveParticipant", in, opts)
}

func (c *skillEngineClient) SetRoles(ctx context.Context, in *SetRolesRequest, opts ...grpc.CallOption) (*ParticipantResponse, error) {
	return invoke[ParticipantResponse](ctx, c.cc, "SetRoles", in, opts)
}

func (c *skillEngineClient) StartRound(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*StartRoundResponse, error) {
	return invoke[StartRoundResponse](ctx, c.cc, "StartRound", in, opts)
}

func (c *skillEngineClient) EndRound(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*EndRoundResponse, error) {
	return invoke[EndRoundResponse](ctx, c.cc, "EndRound", in, opts)
}

func (c *skillEngineClient) HandleEvent(ctx context.Context, in *HandleEventRequest, opts ...grpc.CallOption) (*HandleEventResponse, error) {
	return invoke[HandleEventResponse](ctx, c.cc, "HandleEvent", in, opts)
}

func (c *skillEngineClient) AdvancePhase(ctx context.Context, in *InstanceRequest, opts ...grpc.CallOption) (*AdvancePhaseResponse, error) {
	return invoke[AdvancePhaseResponse](ctx, c.cc, "AdvancePhase", in, opts)
}

func (c *skillEngineClient) CancelSkill(ctx context.Context, in *InstanceRequest, opts ...grpc.CallOption) (*CancelSkillResponse, error) {
	return invoke[CancelSkillResponse](ctx, c.cc, "CancelSkill", in, opts)
}

func (c *skillEngineClient) ApplyDamage(ctx context.Context, in *HPRequest, opts ...grpc.CallOption) (*HPResponse, error) {
	return invoke[HPResponse](ctx, c.cc, "ApplyDamage", in, opts)
}

func (c *skillEngineClient) Heal(ctx context.Context, in *HPRequest, opts ...grpc.CallOption) (*HPResponse, error) {
	return invoke[HPResponse](ctx, c.cc, "Heal", in, opts)
}

func (c *skillEngineClient) RollDice(ctx context.Context, in *RollDiceRequest, opts ...grpc.CallOption) (*RollDiceResponse, error) {
	return invoke[RollDiceResponse](ctx, c.cc, "RollDice", in, opts)
}

func (c *skillEngineClient) ListActive(ctx context.Context, in *ParticipantRequest, opts ...grpc.CallOption) (*ListActiveResponse, error) {
	return invoke[ListActiveResponse](ctx, c.cc, "ListActive", in, opts)
}

func (c *skillEngineClient) IsAlive(ctx context.Context, in *ParticipantRequest, opts ...grpc.CallOption) (*IsAliveResponse, error) {
	return invoke[IsAliveResponse](ctx, c.cc, "IsAlive", in, opts)
}

func (c *skillEngineClient) SaveSession(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SaveSessionResponse, error) {
	return invoke[SaveSessionResponse](ctx, c.cc, "SaveSession", in, opts)
}

func (c *skillEngineClient) LoadSession(ctx context.Context, in *LoadSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "LoadSession", in, opts)
}
