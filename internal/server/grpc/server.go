// Package grpc exposes the account service over gRPC using the messages
// generated from internal/proto/accountgate.proto.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/accountgate/internal/logging"
	pb "github.com/dmitrijs2005/accountgate/internal/proto"
	"github.com/dmitrijs2005/accountgate/internal/server/auth"
	"google.golang.org/grpc"
)

var _ pb.AccountGateServer = (*GRPCServer)(nil)

type GRPCServer struct {
	pb.UnimplementedAccountGateServer
	address  string
	accounts AccountService
	issuer   auth.TokenIssuer
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, as AccountService, issuer auth.TokenIssuer) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		accounts: as,
		issuer:   issuer,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.requestInterceptor, s.accessTokenInterceptor))
	pb.RegisterAccountGateServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	return srv.Serve(lis)
}
