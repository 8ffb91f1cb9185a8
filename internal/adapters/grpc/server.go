package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type LicenseInternalService interface {
	VerifyLicense(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPublicKeys(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// LicenseInternalServer exposes license verification to sibling services over
// the mesh's struct-typed internal transport.
type LicenseInternalServer struct {
	service *application.Service
	signer  ports.TokenSigner
}

func NewLicenseInternalServer(service *application.Service, signer ports.TokenSigner) *LicenseInternalServer {
	return &LicenseInternalServer{service: service, signer: signer}
}

func Register(server grpc.ServiceRegistrar, svc LicenseInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "viralforge.license.v1.LicenseInternalService",
		HandlerType: (*LicenseInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "VerifyLicense",
				Handler:    verifyLicenseHandler(svc),
			},
			{
				MethodName: "GetPublicKeys",
				Handler:    getPublicKeysHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/license/v1/license_internal.proto",
	}, svc)
}

func (s *LicenseInternalServer) VerifyLicense(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	keyVal := fields["key"]
	if keyVal == nil || keyVal.GetStringValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "missing key")
	}

	verifyReq := application.VerifyRequest{
		Key: keyVal.GetStringValue(),
	}
	if v := fields["product_id"]; v != nil {
		verifyReq.ProductID = v.GetStringValue()
	}
	if v := fields["machine_id"]; v != nil {
		verifyReq.MachineID = v.GetStringValue()
	}

	result, err := s.service.VerifyLicense(ctx, verifyReq)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			return nil, status.Error(codes.ResourceExhausted, "rate limited")
		}
		return nil, status.Errorf(codes.Internal, "verify license: %v", err)
	}

	payload := map[string]any{
		"valid":  result.Valid,
		"reason": result.Reason,
	}
	if result.License != nil {
		payload["status"] = result.License.Status
		payload["product_id"] = result.License.ProductID.String()
		payload["activations"] = result.License.Activations
		payload["max_activations"] = result.License.MaxActivations
		if result.License.ExpiresAt != nil {
			payload["expires_at"] = result.License.ExpiresAt.Unix()
		}
	}
	resp, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *LicenseInternalServer) GetPublicKeys(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	keys, err := s.signer.PublicJWKs()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get keys: %v", err)
	}
	items := make([]any, 0, len(keys))
	for _, key := range keys {
		items = append(items, key)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"keys": items,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func verifyLicenseHandler(svc LicenseInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.VerifyLicense(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.license.v1.LicenseInternalService/VerifyLicense",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.VerifyLicense(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func getPublicKeysHandler(svc LicenseInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &emptypb.Empty{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetPublicKeys(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.license.v1.LicenseInternalService/GetPublicKeys",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*emptypb.Empty)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetPublicKeys(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
