package control

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/config"
)

// Dial creates a client connection for cfg.Address. TLS material in cfg is
// used as the client certificate and trust root; without it the connection is
// plaintext.
func Dial(cfg config.ControlConfig) (*grpc.ClientConn, error) {
	if cfg.Address == "" {
		return nil, errors.New("control address is empty")
	}

	creds := insecure.NewCredentials()
	if cfg.TLSEnabled() {
		cert, err := tls.X509KeyPair([]byte(cfg.TLSCert), []byte(cfg.TLSKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse TLS cert/key: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.TLSCA)) {
			return nil, errors.New("failed to parse CA cert")
		}
		creds = credentials.NewTLS(&tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS13,
		})
	}

	return grpc.NewClient(cfg.Address, grpc.WithTransportCredentials(creds))
}

// Client calls the Control service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SendCommand(ctx context.Context, text string) error {
	return c.cc.Invoke(ctx, fullMethod("SendCommand"), wrapperspb.String(text), new(emptypb.Empty))
}

func (c *Client) SaveAs(ctx context.Context, alias string) error {
	return c.cc.Invoke(ctx, fullMethod("SaveAs"), wrapperspb.String(alias), new(emptypb.Empty))
}

func (c *Client) Stop(ctx context.Context) error {
	return c.cc.Invoke(ctx, fullMethod("Stop"), new(emptypb.Empty), new(emptypb.Empty))
}

func (c *Client) Kill(ctx context.Context) error {
	return c.cc.Invoke(ctx, fullMethod("Kill"), new(emptypb.Empty), new(emptypb.Empty))
}

func (c *Client) Status(ctx context.Context) (lib.SupervisorStatus, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("Status"), new(emptypb.Empty), out); err != nil {
		return lib.SupervisorStatus{}, err
	}
	return StatusFromStruct(out), nil
}

// Logs opens the console stream. Recv returns io.EOF when the server ends it.
func (c *Client) Logs(ctx context.Context) (grpc.ServerStreamingClient[wrapperspb.StringValue], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("Logs"))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, wrapperspb.StringValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(new(emptypb.Empty)); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// Code returns the gRPC status code of err.
func Code(err error) codes.Code {
	st, ok := status.FromError(err)
	if !ok {
		return codes.Unknown
	}
	return st.Code()
}
