package client

import (
	"context"

	pb "github.com/dmitrijs2005/accountgate/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.AccountGateClient
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(pb.AccessTokenHeader, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func NewGRPCClient(endpointURL string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(endpointURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &GRPCClient{endpointURL: endpointURL, conn: conn, client: pb.NewAccountGateClient(conn)}, nil
}

func (s *GRPCClient) mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var kind error
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		kind = ErrUnavailable
	case codes.Unauthenticated:
		kind = ErrUnauthorized
	case codes.InvalidArgument:
		kind = ErrRejected
	case codes.PermissionDenied:
		kind = ErrLocked
	case codes.NotFound:
		kind = ErrNotFound
	case codes.AlreadyExists:
		kind = ErrConflict
	case codes.ResourceExhausted:
		kind = ErrRateLimited
	default:
		kind = ErrServer
	}
	return &APIError{Kind: kind, Message: st.Message()}
}

func (s *GRPCClient) Register(ctx context.Context, userName, password string) error {
	_, err := s.client.Register(ctx, &pb.RegisterRequest{Username: userName, Password: password})
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) Login(ctx context.Context, userName, password string) (string, error) {
	resp, err := s.client.Login(ctx, &pb.LoginRequest{Username: userName, Password: password})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.GetToken(), nil
}

func (s *GRPCClient) ForgotPassword(ctx context.Context, userName string) (string, error) {
	resp, err := s.client.ForgotPassword(ctx, &pb.ForgotPasswordRequest{Username: userName})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.GetResetToken(), nil
}

func (s *GRPCClient) ResetPassword(ctx context.Context, token, newPassword string) error {
	_, err := s.client.ResetPassword(ctx, &pb.ResetPasswordRequest{Token: token, NewPassword: newPassword})
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) Me(ctx context.Context, token string) (*Identity, error) {
	resp, err := s.client.Me(withAccessToken(ctx, token), &pb.MeRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}

	id := &Identity{ID: resp.GetId(), UserName: resp.GetUsername()}
	if resp.GetExpiresAt() != nil {
		id.ExpiresAt = resp.GetExpiresAt().AsTime()
	}
	return id, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
