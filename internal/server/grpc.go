package server

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/common"
	"github.com/joseph-ayodele/rxverify/internal/utils"
)

const (
	verificationServiceName = "rxverify.v1.Verification"
	methodVerify            = "/" + verificationServiceName + "/Verify"
	methodRegister          = "/" + verificationServiceName + "/Register"
)

// VerificationServer takes the raw image bytes and answers with the same JSON
// document the HTTP API returns, as a google.protobuf.Struct.
type VerificationServer interface {
	Verify(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
	Register(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
}

type VerificationService struct {
	pipeline Pipeline
	logger   *slog.Logger
}

func NewVerificationService(p Pipeline, logger *slog.Logger) *VerificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationService{pipeline: p, logger: logger}
}

func (s *VerificationService) Verify(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if len(in.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "No image uploaded")
	}
	out, err := utils.ToStruct(s.pipeline.Verify(ctx, in.GetValue()))
	if err != nil {
		s.logger.Error("failed to encode verdict", "error", err)
		return nil, common.GRPCError(fmt.Errorf("%w: encode verdict", common.ErrInternal))
	}
	return out, nil
}

func (s *VerificationService) Register(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if len(in.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "No image uploaded")
	}
	res, err := s.pipeline.Register(ctx, in.GetValue())
	if err != nil {
		return nil, common.GRPCError(err)
	}
	out, err := utils.ToStruct(res)
	if err != nil {
		s.logger.Error("failed to encode registration", "error", err)
		return nil, common.GRPCError(fmt.Errorf("%w: encode registration", common.ErrInternal))
	}
	return out, nil
}

func RegisterVerificationServer(s grpc.ServiceRegistrar, srv VerificationServer) {
	s.RegisterService(&verificationServiceDesc, srv)
}

var verificationServiceDesc = grpc.ServiceDesc{
	ServiceName: verificationServiceName,
	HandlerType: (*VerificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: verifyHandler},
		{MethodName: "Register", Handler: registerHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rxverify/v1/verification.proto",
}

func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerificationServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodVerify}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerificationServer).Verify(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func registerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerificationServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRegister}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerificationServer).Register(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// methodRoles lists the roles accepted per method when auth is enabled.
// Methods not listed (health, reflection) are open.
var methodRoles = map[string][]string{
	methodVerify:   {constants.RoleIssuer, constants.RoleVerifier},
	methodRegister: {constants.RoleIssuer},
}

type GRPCConfig struct {
	MaxRecvBytes int // 0 keeps grpc's default
	Auth         AuthConfig
}

// NewGRPCServer wires the verification service, health and reflection behind
// recovery, request-id and auth interceptors.
func NewGRPCServer(p Pipeline, cfg GRPCConfig, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(
		recoveryInterceptor(logger),
		requestIDInterceptor(),
		authInterceptor(cfg.Auth),
	)}
	if cfg.MaxRecvBytes > 0 {
		// the image plus protobuf framing must fit
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxRecvBytes+64<<10))
	}
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(verificationServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(srv)

	RegisterVerificationServer(srv, NewVerificationService(p, logger))
	return srv, hs
}

func recoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)
				logger.Error("panic recovered",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(stack[:n]),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func requestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-request-id"); len(ids) > 0 && ids[0] != "" {
				ctx = common.WithRequestID(ctx, ids[0])
			}
		}
		return handler(ctx, req)
	}
}

func authInterceptor(auth AuthConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		roles, guarded := methodRoles[info.FullMethod]
		if !auth.Enabled() || !guarded {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization metadata")
		}
		raw, ok := bearer(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "invalid authorization format")
		}
		claims, err := auth.ParseToken(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if !hasAnyRole(claims.Roles, roles) {
			return nil, status.Error(codes.PermissionDenied, "required role: "+strings.Join(roles, " or "))
		}
		return handler(common.WithPrincipal(ctx, claims.Subject, claims.Roles), req)
	}
}
