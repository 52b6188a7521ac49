package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc/codes"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/config"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/control"
)

const defaultAddress = "localhost:50051"

// controlConfig reads the address and TLS material from the environment;
// the --address flag wins over MCWRAP_CONTROL_ADDRESS.
func controlConfig() config.ControlConfig {
	addr := strings.TrimSpace(addressFlag)
	if addr == "" {
		addr = strings.TrimSpace(os.Getenv("MCWRAP_CONTROL_ADDRESS"))
	}
	if addr == "" {
		addr = defaultAddress
	}

	return config.ControlConfig{
		Address: addr,
		TLSKey:  os.Getenv("MCWRAP_TLS_KEY"),
		TLSCert: os.Getenv("MCWRAP_TLS_CERT"),
		TLSCA:   os.Getenv("MCWRAP_TLS_CA_CERT"),
	}
}

// withClient dials the wrapper, runs fn and closes the connection.
func withClient(ctx context.Context, fn func(*control.Client) error) error {
	cfg := controlConfig()
	if cfg.TLSEnabled() && (cfg.TLSKey == "" || cfg.TLSCert == "" || cfg.TLSCA == "") {
		return fmt.Errorf("incomplete TLS environment; require MCWRAP_TLS_KEY, MCWRAP_TLS_CERT, MCWRAP_TLS_CA_CERT")
	}

	conn, err := control.Dial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	return explain(fn(control.NewClient(conn)))
}

// explain turns the status codes an operator is likely to hit into a hint.
func explain(err error) error {
	switch control.Code(err) {
	case codes.OK:
		return nil
	case codes.Unavailable:
		return fmt.Errorf("mcwrap is not reachable or the server has exited: %w", err)
	case codes.Unauthenticated:
		return fmt.Errorf("client certificate must carry a SPIFFE ID: %w", err)
	default:
		return err
	}
}
