package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "clinicflow.v1.SchedulingService"

// SchedulingServiceServer is the scheduling RPC surface. Messages are
// google.protobuf.Struct documents.
type SchedulingServiceServer interface {
	CheckConflict(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PreviewDrop(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DropAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProjectCalendar(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncLunchBlocks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBlockedSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddBlockedSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveBlockedSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetSchedule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchCalendar(*structpb.Struct, CalendarStream) error
}

// CalendarStream is the server side of WatchCalendar.
type CalendarStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type calendarStream struct {
	grpclib.ServerStream
}

func (s calendarStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func watchCalendarHandler(srv any, stream grpclib.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SchedulingServiceServer).WatchCalendar(in, calendarStream{stream})
}

type unaryCall func(SchedulingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpclib.MethodDesc {
	return grpclib.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulingServiceServer), ctx, in)
			}
			info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: Method(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulingServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var SchedulingServiceDesc = grpclib.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		unary("CheckConflict", SchedulingServiceServer.CheckConflict),
		unary("CreateAppointment", SchedulingServiceServer.CreateAppointment),
		unary("ConfirmAppointment", SchedulingServiceServer.ConfirmAppointment),
		unary("CancelAppointment", SchedulingServiceServer.CancelAppointment),
		unary("DeleteAppointment", SchedulingServiceServer.DeleteAppointment),
		unary("PreviewDrop", SchedulingServiceServer.PreviewDrop),
		unary("DropAppointment", SchedulingServiceServer.DropAppointment),
		unary("ProjectCalendar", SchedulingServiceServer.ProjectCalendar),
		unary("SyncLunchBlocks", SchedulingServiceServer.SyncLunchBlocks),
		unary("UpdateAppointment", SchedulingServiceServer.UpdateAppointment),
		unary("ListAppointments", SchedulingServiceServer.ListAppointments),
		unary("ListBlockedSlots", SchedulingServiceServer.ListBlockedSlots),
		unary("AddBlockedSlot", SchedulingServiceServer.AddBlockedSlot),
		unary("RemoveBlockedSlot", SchedulingServiceServer.RemoveBlockedSlot),
		unary("SetSchedule", SchedulingServiceServer.SetSchedule),
	},
	Streams: []grpclib.StreamDesc{
		{StreamName: "WatchCalendar", Handler: watchCalendarHandler, ServerStreams: true},
	},
	Metadata: "clinicflow/v1/scheduling.proto",
}

func RegisterSchedulingServiceServer(s grpclib.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}

// SchedulingClient calls a SchedulingService over conn.
type SchedulingClient struct {
	conn grpclib.ClientConnInterface
}

func NewSchedulingClient(conn grpclib.ClientConnInterface) *SchedulingClient {
	return &SchedulingClient{conn: conn}
}

// Call invokes method with req and returns the response document.
func (c *SchedulingClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpclib.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, Method(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchCalendar opens a projection stream. recv blocks for the next
// projection and fails once ctx is done or the server ends the stream.
func (c *SchedulingClient) WatchCalendar(ctx context.Context, req *structpb.Struct, opts ...grpclib.CallOption) (recv func() (*structpb.Struct, error), err error) {
	stream, err := c.conn.NewStream(ctx, &SchedulingServiceDesc.Streams[0], Method("WatchCalendar"), opts...)
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &structpb.Struct{}
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return func() (*structpb.Struct, error) {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			return nil, err
		}
		return out, nil
	}, nil
}
