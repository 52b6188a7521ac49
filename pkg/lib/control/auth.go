package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type spiffeIDContextKey struct{}

// SpiffeIDFromContext returns the caller identity injected by the SPIFFE
// interceptors.
func SpiffeIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(spiffeIDContextKey{}).(string)
	return id, ok
}

// spiffeIDFromTLS returns the trust domain of the first SPIFFE URI SAN on the
// client certificate, e.g. spiffe://operator -> "operator".
func spiffeIDFromTLS(ctx context.Context) (string, bool) {
	// Already injected.
	if id, ok := SpiffeIDFromContext(ctx); ok {
		return id, true
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p == nil {
		return "", false
	}
	ti, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", false
	}
	state := ti.State
	if len(state.PeerCertificates) == 0 || state.PeerCertificates[0] == nil {
		return "", false
	}

	for _, uri := range state.PeerCertificates[0].URIs {
		if uri != nil && uri.Scheme == "spiffe" && uri.Host != "" {
			return uri.Host, true
		}
	}
	return "", false
}

func injectSpiffeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, spiffeIDContextKey{}, id)
}

func requireSpiffeIDUnary(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id, ok := spiffeIDFromTLS(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}
	return handler(injectSpiffeID(ctx, id), req)
}

type streamWithCtx struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *streamWithCtx) Context() context.Context { return s.ctx }

func requireSpiffeIDStream(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	id, ok := spiffeIDFromTLS(ss.Context())
	if !ok {
		return status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}
	return handler(srv, &streamWithCtx{ServerStream: ss, ctx: injectSpiffeID(ss.Context(), id)})
}
