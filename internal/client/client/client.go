// Package client talks to the accountgate server over HTTP or gRPC behind
// one interface.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/client/config"
)

// Identity is what the server reports about a credential token.
type Identity struct {
	ID        string
	UserName  string
	ExpiresAt time.Time
}

type Client interface {
	Close() error
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (token string, err error)
	ForgotPassword(ctx context.Context, username string) (resetToken string, err error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	Me(ctx context.Context, token string) (*Identity, error)
}

// New builds the client selected by cfg.Transport.
func New(cfg *config.Config) (Client, error) {
	switch cfg.Transport {
	case config.TransportHTTP, "":
		return NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout), nil
	case config.TransportGRPC:
		return NewGRPCClient(cfg.ServerEndpointAddr)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
