// Package httpapi is the JSON-over-HTTP surface of the account service,
// built on gin. Routes live under /api/auth; every response body carries a
// "message" field.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/accountgate/internal/common"
	"github.com/dmitrijs2005/accountgate/internal/logging"
	"github.com/dmitrijs2005/accountgate/internal/server/models"
	"github.com/dmitrijs2005/accountgate/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AccountService is the part of services.AccountService the handlers use.
type AccountService interface {
	Register(ctx context.Context, username, password string) (*models.Account, error)
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	ForgotPassword(ctx context.Context, username string) (*services.ResetTicket, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type Handler struct {
	accounts AccountService
	logger   logging.Logger
}

func NewHandler(s AccountService, l logging.Logger) *Handler {
	return &Handler{accounts: s, logger: l.With("module", "http_handler")}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Username string `json:"username" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func respondMessage(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"message": msg})
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, msgHealth)
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, msgCredsRequired)
		return
	}

	_, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		respondMessage(c, http.StatusCreated, msgRegistered)
	case errors.Is(err, common.ErrorDuplicateUsername):
		respondMessage(c, http.StatusConflict, msgDuplicateUsername)
	case errors.Is(err, common.ErrorValidation):
		respondMessage(c, http.StatusBadRequest, msgPasswordTooLong)
	default:
		h.logger.Error(c.Request.Context(), "register failed", "error", err)
		respondMessage(c, http.StatusInternalServerError, msgInternal)
	}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, msgCredsRequired)
		return
	}

	res, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"message": msgLoggedIn, "token": res.Token})
		return
	}

	var locked *common.LockedError
	var failed *common.LoginFailedError

	switch {
	case errors.As(err, &locked):
		respondMessage(c, http.StatusForbidden, stillLockedMessage(locked.RemainingMinutes))
	case errors.As(err, &failed) && failed.Locked:
		respondMessage(c, http.StatusBadRequest, lockedNowMessage(failed.LockDuration))
	case errors.Is(err, common.ErrorInvalidCredentials):
		respondMessage(c, http.StatusBadRequest, msgInvalidCredentials)
	default:
		h.logger.Error(c.Request.Context(), "login failed", "error", err)
		respondMessage(c, http.StatusInternalServerError, msgInternal)
	}
}

// ForgotPassword handles POST /api/auth/forgot-password. The reset token is
// returned in the body since there is no out-of-band delivery.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, msgUserRequired)
		return
	}

	ticket, err := h.accounts.ForgotPassword(c.Request.Context(), req.Username)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": msgResetIssued, "resetToken": ticket.Token})
	case errors.Is(err, common.ErrorNotFound):
		respondMessage(c, http.StatusNotFound, msgUserNotFound)
	default:
		h.logger.Error(c.Request.Context(), "forgot password failed", "error", err)
		respondMessage(c, http.StatusInternalServerError, msgInternal)
	}
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, msgResetRequired)
		return
	}

	err := h.accounts.ResetPassword(c.Request.Context(), req.Token, req.NewPassword)
	switch {
	case err == nil:
		respondMessage(c, http.StatusOK, msgPasswordReset)
	case errors.Is(err, common.ErrorInvalidOrExpiredToken):
		respondMessage(c, http.StatusBadRequest, msgInvalidReset)
	case errors.Is(err, common.ErrorValidation):
		respondMessage(c, http.StatusBadRequest, msgPasswordTooLong)
	default:
		h.logger.Error(c.Request.Context(), "reset password failed", "error", err)
		respondMessage(c, http.StatusInternalServerError, msgInternal)
	}
}

// Me handles GET /api/auth/me and echoes the verified token claims.
func (h *Handler) Me(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		respondMessage(c, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	body := gin.H{"id": claims.UserID, "username": claims.UserName}
	if claims.ExpiresAt != nil {
		body["expiresAt"] = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, body)
}
