package api

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/notifier"
)

const (
	// NotifierServiceName is the fully qualified gRPC service name.
	NotifierServiceName = "errordecode.v1.Notifier"
	// NotifyFullMethod is the method path used by clients and interceptors.
	NotifyFullMethod = "/" + NotifierServiceName + "/Notify"
)

// NotifierServer is the server API for the Notifier service. Messages are
// google.protobuf.Struct carrying the REST JSON shapes.
type NotifierServer interface {
	Notify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterNotifierServer attaches srv to s.
func RegisterNotifierServer(s grpc.ServiceRegistrar, srv NotifierServer) {
	s.RegisterService(&notifierServiceDesc, srv)
}

func notifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotifierServer).Notify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: NotifyFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NotifierServer).Notify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var notifierServiceDesc = grpc.ServiceDesc{
	ServiceName: NotifierServiceName,
	HandlerType: (*NotifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Notify", Handler: notifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "errordecode/v1/notifier.proto",
}

// NotifierClient calls the Notifier service.
type NotifierClient struct {
	cc grpc.ClientConnInterface
}

// NewNotifierClient wraps an established connection.
func NewNotifierClient(cc grpc.ClientConnInterface) *NotifierClient {
	return &NotifierClient{cc: cc}
}

// Notify sends one report envelope.
func (c *NotifierClient) Notify(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, NotifyFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NotifierService adapts the orchestrator to the gRPC surface.
type NotifierService struct {
	logger   *slog.Logger
	notifier Notifier
}

// NewNotifierService constructs the gRPC handler.
func NewNotifierService(logger *slog.Logger, n Notifier) *NotifierService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifierService{logger: logger, notifier: n}
}

// Notify implements NotifierServer.
func (s *NotifierService) Notify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	report, analysisOnly, err := FromStructNotifyRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if timeout := s.notifier.Config().Server.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := s.notifier.Handle(ctx, report, analysisOnly)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := ToStructResult(result)
	if err != nil {
		s.logger.Error("encode notify response", slog.Any("error", err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	var (
		validation *models.ValidationError
		dispatch   *notifier.DispatchError
	)
	switch {
	case errors.As(err, &validation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &dispatch):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
