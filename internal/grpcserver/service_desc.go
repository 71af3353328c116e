package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "jobmate.campaign.v1.CampaignService"

// CampaignServiceServer is the handler type checked by grpc.RegisterService.
// Every RPC takes and returns a google.protobuf.Struct carrying JSON-shaped
// payloads, so no generated code is needed.
type CampaignServiceServer interface {
	CreateCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	PauseCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResumeCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ArchiveCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListCampaigns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListCards(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TransitionCard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddNote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetImportantDates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type rpc func(CampaignServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn rpc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(CampaignServiceServer)
			if interceptor == nil {
				return fn(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes CampaignService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CampaignServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateCampaign", CampaignServiceServer.CreateCampaign),
		unary("UpdateCampaign", CampaignServiceServer.UpdateCampaign),
		unary("PauseCampaign", CampaignServiceServer.PauseCampaign),
		unary("ResumeCampaign", CampaignServiceServer.ResumeCampaign),
		unary("ArchiveCampaign", CampaignServiceServer.ArchiveCampaign),
		unary("GetCampaign", CampaignServiceServer.GetCampaign),
		unary("ListCampaigns", CampaignServiceServer.ListCampaigns),
		unary("GetCard", CampaignServiceServer.GetCard),
		unary("ListCards", CampaignServiceServer.ListCards),
		unary("TransitionCard", CampaignServiceServer.TransitionCard),
		unary("AddNote", CampaignServiceServer.AddNote),
		unary("SetImportantDates", CampaignServiceServer.SetImportantDates),
		unary("AddContact", CampaignServiceServer.AddContact),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "campaign/v1/campaign.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv CampaignServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is a thin caller for CampaignService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an open connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with req and returns the decoded response.
func (c *Client) Call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
