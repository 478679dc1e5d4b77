package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/metrics"
)

type sessionKey struct{}

// WithSession attaches the caller session to ctx
func WithSession(ctx context.Context, s *manager.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the caller session, nil for anonymous calls
func SessionFromContext(ctx context.Context) *manager.Session {
	s, _ := ctx.Value(sessionKey{}).(*manager.Session)
	return s
}

// userFromContext returns the editor behind the call, empty when none
func userFromContext(ctx context.Context) string {
	if s := SessionFromContext(ctx); s != nil {
		return s.User
	}
	return ""
}

// tokenFromContext reads a bearer token from the authorization metadata
func tokenFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	token, found := strings.CutPrefix(values[0], "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

func methodName(fullMethod string) string {
	// "/strata.v1.Strata/ListPages" -> "ListPages"
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}

// adminMethods manage sessions
var adminMethods = map[string]bool{
	"IssueToken":   true,
	"RevokeToken":  true,
	"ListSessions": true,
}

// authenticate resolves the session of a call on the TCP listener. Every
// method needs a valid token; session management needs an admin one.
func authenticate(ctx context.Context, sessions *manager.SessionManager, fullMethod string) (context.Context, error) {
	token := tokenFromContext(ctx)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	s, err := sessions.Validate(token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if adminMethods[methodName(fullMethod)] && s.Role != manager.RoleAdmin {
		return nil, status.Errorf(codes.PermissionDenied, "%s requires the %s role", methodName(fullMethod), manager.RoleAdmin)
	}
	return WithSession(ctx, s), nil
}

// AuthInterceptor creates a gRPC unary interceptor checking session tokens
func AuthInterceptor(sessions *manager.SessionManager) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, err := authenticate(ctx, sessions, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStreamInterceptor is AuthInterceptor for streams
func AuthStreamInterceptor(sessions *manager.SessionManager) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), sessions, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &sessionStream{ServerStream: ss, ctx: ctx})
	}
}

type sessionStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *sessionStream) Context() context.Context {
	return s.ctx
}

// localSession resolves the session of a call on the unix socket. Local
// callers are trusted as admins; a token, when sent, names the editor.
func localSession(ctx context.Context, sessions *manager.SessionManager) context.Context {
	if token := tokenFromContext(ctx); token != "" {
		if s, err := sessions.Validate(token); err == nil {
			s.Role = manager.RoleAdmin
			return WithSession(ctx, s)
		}
	}
	return WithSession(ctx, &manager.Session{Role: manager.RoleAdmin})
}

// ReadOnlyInterceptor creates a gRPC unary interceptor that only allows read-only operations.
// This is used for the Unix socket listener to prevent write operations from local CLI.
func ReadOnlyInterceptor(sessions *manager.SessionManager) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// Check if this is a read-only method
		if !isReadOnlyMethod(info.FullMethod) {
			return nil, status.Errorf(
				codes.PermissionDenied,
				"write operations not allowed on Unix socket - use the TCP API with a session token (strata token issue <user>)",
			)
		}

		return handler(localSession(ctx, sessions), req)
	}
}

// ReadOnlyStreamInterceptor is ReadOnlyInterceptor for streams
func ReadOnlyStreamInterceptor(sessions *manager.SessionManager) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !isReadOnlyMethod(info.FullMethod) {
			return status.Error(codes.PermissionDenied, "write operations not allowed on Unix socket")
		}
		return handler(srv, &sessionStream{ServerStream: ss, ctx: localSession(ss.Context(), sessions)})
	}
}

// isReadOnlyMethod checks if a gRPC method is read-only
func isReadOnlyMethod(method string) bool {
	name := methodName(method)

	// Read-only methods (List*, Get*, Watch*)
	readOnlyPrefixes := []string{
		"List",
		"Get",
		"Watch",
	}

	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	// RenderContent previews without persisting; session management is how
	// the first token of a node is obtained.
	readOnlyMethods := []string{
		"RenderContent",
		"IssueToken",
		"RevokeToken",
	}

	for _, allowedMethod := range readOnlyMethods {
		if name == allowedMethod {
			return true
		}
	}

	// Default: block
	return false
}

// MetricsInterceptor records request counts and durations
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		timer := metrics.NewTimer()
		resp, err := handler(ctx, req)

		name := methodName(info.FullMethod)
		timer.ObserveDurationVec(metrics.APIRequestDuration, name)
		metrics.APIRequestsTotal.WithLabelValues(name, status.Code(err).String()).Inc()
		return resp, err
	}
}
