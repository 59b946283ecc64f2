package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/accountgate/internal/common"
	pb "github.com/dmitrijs2005/accountgate/internal/proto"
	"github.com/dmitrijs2005/accountgate/internal/server/models"
	"github.com/dmitrijs2005/accountgate/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// AccountService is the part of services.AccountService the handlers use.
type AccountService interface {
	Register(ctx context.Context, username, password string) (*models.Account, error)
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	ForgotPassword(ctx context.Context, username string) (*services.ResetTicket, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// toStatus maps service errors onto gRPC codes. Lockout details travel in
// the status message.
func toStatus(err error) error {
	var locked *common.LockedError
	var failed *common.LoginFailedError

	switch {
	case errors.As(err, &locked):
		return status.Error(codes.PermissionDenied, locked.Error())
	case errors.As(err, &failed):
		return status.Error(codes.Unauthenticated, failed.Error())
	case errors.Is(err, common.ErrorInvalidCredentials):
		return status.Error(codes.Unauthenticated, common.ErrorInvalidCredentials.Error())
	case errors.Is(err, common.ErrorDuplicateUsername):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "user not found")
	case errors.Is(err, common.ErrorInvalidOrExpiredToken):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	if req.GetUsername() == "" || req.GetPassword() == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}

	acc, err := s.accounts.Register(ctx, req.GetUsername(), req.GetPassword())
	if err != nil {
		if !errors.Is(err, common.ErrorDuplicateUsername) && !errors.Is(err, common.ErrorValidation) {
			s.logger.Error(ctx, "register failed", "error", err)
		}
		return nil, toStatus(err)
	}

	return &pb.RegisterResponse{Id: acc.ID, Message: "registered"}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.LoginResponse, error) {
	if req.GetUsername() == "" || req.GetPassword() == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}

	res, err := s.accounts.Login(ctx, req.GetUsername(), req.GetPassword())
	if err != nil {
		return nil, toStatus(err)
	}

	return &pb.LoginResponse{
		Token:     res.Token,
		ExpiresAt: timestamppb.New(res.ExpiresAt),
		Message:   "logged in",
	}, nil
}

func (s *GRPCServer) ForgotPassword(ctx context.Context, req *pb.ForgotPasswordRequest) (*pb.ForgotPasswordResponse, error) {
	if req.GetUsername() == "" {
		return nil, status.Error(codes.InvalidArgument, "username is required")
	}

	ticket, err := s.accounts.ForgotPassword(ctx, req.GetUsername())
	if err != nil {
		return nil, toStatus(err)
	}

	return &pb.ForgotPasswordResponse{
		ResetToken: ticket.Token,
		ExpiresAt:  timestamppb.New(ticket.ExpiresAt),
		Message:    "reset token issued",
	}, nil
}

func (s *GRPCServer) ResetPassword(ctx context.Context, req *pb.ResetPasswordRequest) (*pb.ResetPasswordResponse, error) {
	if req.GetToken() == "" || req.GetNewPassword() == "" {
		return nil, status.Error(codes.InvalidArgument, "token and new_password are required")
	}

	if err := s.accounts.ResetPassword(ctx, req.GetToken(), req.GetNewPassword()); err != nil {
		return nil, toStatus(err)
	}

	return &pb.ResetPasswordResponse{Message: "password reset"}, nil
}

// Me returns the claims of the access token the interceptor verified.
func (s *GRPCServer) Me(ctx context.Context, _ *pb.MeRequest) (*pb.MeResponse, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	out := &pb.MeResponse{Id: claims.UserID, Username: claims.UserName}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = timestamppb.New(claims.ExpiresAt.Time)
	}
	return out, nil
}
