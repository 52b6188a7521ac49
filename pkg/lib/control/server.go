package control

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/config"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/console"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
)

// shutdownGrace bounds GracefulStop before in-flight calls are cut off.
const shutdownGrace = 5 * time.Second

// Backend is what the control plane drives; *supervisor.Supervisor
// implements it.
type Backend interface {
	Command(text string) error
	Stop() error
	Kill() error
	Status(ctx context.Context) (lib.SupervisorStatus, error)
}

// Server owns the listener and the gRPC server for the Control service.
type Server struct {
	lis  net.Listener
	grpc *grpc.Server
	svc  *service
	log  *zerolog.Logger
}

// NewServer listens on cfg.Address and registers the Control service. With
// TLS material configured, clients must present a certificate signed by the
// configured CA that carries a SPIFFE URI SAN.
func NewServer(cfg config.ControlConfig, backend Backend, history *console.History) (*Server, error) {
	log := logging.For("control")

	opts := []grpc.ServerOption{}
	unary := []grpc.UnaryServerInterceptor{logUnary(log)}
	stream := []grpc.StreamServerInterceptor{logStream(log)}
	if cfg.TLSEnabled() {
		tlsConfig, err := serverTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
		unary = append([]grpc.UnaryServerInterceptor{requireSpiffeIDUnary}, unary...)
		stream = append([]grpc.StreamServerInterceptor{requireSpiffeIDStream}, stream...)
	} else {
		log.Warn().Str("address", cfg.Address).Msg("control plane has no TLS configured; serving plaintext")
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(unary...), grpc.ChainStreamInterceptor(stream...))

	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	s := grpc.NewServer(opts...)
	svc := newService(backend, history)
	RegisterControlServer(s, svc)

	return &Server{lis: lis, grpc: s, svc: svc, log: log}, nil
}

func serverTLSConfig(cfg config.ControlConfig) (*tls.Config, error) {
	cert, err := tls.X509KeyPair([]byte(cfg.TLSCert), []byte(cfg.TLSKey))
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %w", err)
	}

	caPool := x509.NewCertPool()
	if ok := caPool.AppendCertsFromPEM([]byte(cfg.TLSCA)); !ok {
		return nil, errors.New("failed to append CA certificate to pool")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// Addr returns the network address the server is bound to.
func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// Serve serves until ctx is canceled, then stops gracefully. Log streams are
// ended first so that they do not hold the shutdown.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(s.lis) }()
	s.log.Info().Str("address", s.Addr().String()).Msg("control plane listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.svc.shutdown()
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownGrace):
		s.log.Warn().Msg("graceful stop timed out")
		s.grpc.Stop()
	}
	<-errCh
	return ctx.Err()
}

func (s *Server) String() string { return "control" }

func logUnary(log *zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		if id, ok := SpiffeIDFromContext(ctx); ok {
			ev = ev.Str("caller", id)
		}
		ev.Str("method", info.FullMethod).Msg("control call")
		return resp, err
	}
}

func logStream(log *zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ev := log.Info()
		if id, ok := SpiffeIDFromContext(ss.Context()); ok {
			ev = ev.Str("caller", id)
		}
		ev.Str("method", info.FullMethod).Msg("control stream opened")
		err := handler(srv, ss)
		log.Debug().Err(err).Str("method", info.FullMethod).Msg("control stream closed")
		return err
	}
}
