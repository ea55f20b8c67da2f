package grpcsvc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/vegshop/internal/service/auth"
)

// TokenVerifier проверяет JWT пользователя.
type TokenVerifier interface {
	Verify(raw string) (auth.Principal, error)
}

// AdminAuthInterceptor пропускает к OrderAdmin только администраторов.
// Остальные сервисы (health) доступны без токена.
func AdminAuthInterceptor(verifier TokenVerifier) grpc.UnaryServerInterceptor {
	prefix := "/" + ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if verifier == nil || !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		var raw string
		if values := md.Get("authorization"); len(values) > 0 {
			raw = strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
		}
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "authorization token is required")
		}

		principal, err := verifier.Verify(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if !principal.IsAdmin() {
			return nil, status.Error(codes.PermissionDenied, "admin access required")
		}
		return handler(ctx, req)
	}
}
