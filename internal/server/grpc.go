package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
)

const extractionServiceName = "creditreport.v1.Extraction"

// ExtractionServer is the gRPC contract. Messages are structpb.Struct so no
// generated stubs are needed; fields mirror the HTTP JSON bodies.
type ExtractionServer interface {
	Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetDecision(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// GRPCServer serves ExtractionServer over an ExtractionService.
type GRPCServer struct {
	svc    *ExtractionService
	logger *slog.Logger
}

func NewGRPCServer(svc *ExtractionService, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCServer{svc: svc, logger: logger}
}

// Extract accepts {"document_id"} for a registered document or {"path"} for a
// file on the server's disk, plus an optional {"async": true}.
func (s *GRPCServer) Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	queue := fields["async"].GetBoolValue()

	var (
		res SubmitResult
		err error
	)
	switch {
	case fields["document_id"].GetStringValue() != "":
		id, perr := documentID(in)
		if perr != nil {
			return nil, perr
		}
		res, err = s.svc.SubmitDocument(ctx, id, queue)
	case fields["path"].GetStringValue() != "":
		res, err = s.svc.SubmitPath(ctx, strings.TrimSpace(fields["path"].GetStringValue()), queue)
	default:
		return nil, common.InvalidArgumentError("document_id or path is required")
	}
	if err != nil {
		s.logger.Warn("grpc.extract.failed", "error", err)
		return nil, common.GRPCError(err)
	}
	return toStruct(res)
}

func (s *GRPCServer) GetDecision(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := documentID(in)
	if err != nil {
		return nil, err
	}
	d, err := s.svc.Decision(ctx, id)
	if err != nil {
		return nil, common.GRPCError(err)
	}
	return toStruct(d)
}

func documentID(in *structpb.Struct) (uuid.UUID, error) {
	raw := strings.TrimSpace(in.GetFields()["document_id"].GetStringValue())
	if err := common.NewValidator().Field("document_id", raw, common.Required, common.UUID).Err(); err != nil {
		return uuid.Nil, common.GRPCError(err)
	}
	return uuid.MustParse(raw), nil
}

// toStruct goes through JSON so struct tags define the wire shape.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalError("encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, common.InternalError("encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalError("encode response")
	}
	return out, nil
}

// RegisterExtractionServer registers srv and a health service reporting SERVING.
func RegisterExtractionServer(s *grpc.Server, srv ExtractionServer) *health.Server {
	s.RegisterService(&extractionServiceDesc, srv)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(extractionServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

var extractionServiceDesc = grpc.ServiceDesc{
	ServiceName: extractionServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: unaryHandler("Extract", ExtractionServer.Extract)},
		{MethodName: "GetDecision", Handler: unaryHandler("GetDecision", ExtractionServer.GetDecision)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "creditreport/v1/extraction.proto",
}

func unaryHandler(name string, call func(ExtractionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + extractionServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExtractionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ExtractionServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LoggingInterceptor logs every unary call with its status.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("grpc.request", "method", info.FullMethod, "error", err)
		} else {
			logger.Info("grpc.request", "method", info.FullMethod)
		}
		return resp, err
	}
}
