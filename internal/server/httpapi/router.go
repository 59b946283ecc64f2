package httpapi

import (
	"github.com/dmitrijs2005/accountgate/internal/logging"
	"github.com/dmitrijs2005/accountgate/internal/server/auth"
	"github.com/gin-gonic/gin"
)

// RouterConfig tunes the router. A zero LoginRateLimit disables throttling.
type RouterConfig struct {
	LoginRateLimit float64
	LoginRateBurst int
}

// NewRouter wires all routes and middlewares.
func NewRouter(h *Handler, issuer auth.TokenIssuer, l logging.Logger, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(l.With("module", "http_access")))

	r.GET("/", h.Health)

	api := r.Group("/api/auth")

	login := []gin.HandlerFunc{h.Login}
	if cfg.LoginRateLimit > 0 {
		login = append([]gin.HandlerFunc{RateLimit(NewClientRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst))}, login...)
	}

	api.POST("/register", h.Register)
	api.POST("/login", login...)
	api.POST("/forgot-password", h.ForgotPassword)
	api.POST("/reset-password", h.ResetPassword)
	api.GET("/me", AuthRequired(issuer), h.Me)

	return r
}
