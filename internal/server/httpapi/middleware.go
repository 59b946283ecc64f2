package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/common"
	"github.com/dmitrijs2005/accountgate/internal/logging"
	"github.com/dmitrijs2005/accountgate/internal/server/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	claimsKey       = "auth_claims"
)

// RequestID keeps a well-formed incoming X-Request-ID and mints one otherwise.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs method, path, status and latency.
func AccessLog(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// AuthRequired verifies the Bearer token and stores its claims on the
// context for the handler.
func AuthRequired(issuer auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			respondMessage(c, http.StatusUnauthorized, msgUnauthorized)
			c.Abort()
			return
		}

		claims, err := issuer.Parse(strings.TrimSpace(h[len("Bearer "):]))
		if err != nil {
			msg := msgUnauthorized
			if errors.Is(err, common.ErrTokenExpired) {
				msg = msgTokenExpired
			}
			respondMessage(c, http.StatusUnauthorized, msg)
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func claimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// maxTrackedClients bounds the limiter table; idle entries are swept once
// it is exceeded.
const maxTrackedClients = 4096

const clientIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter hands out one token bucket per client IP.
type ClientRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func NewClientRateLimiter(perSecond float64, burst int) *ClientRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientRateLimiter{
		clients: map[string]*clientLimiter{},
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether client may make a request now.
func (l *ClientRateLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if len(l.clients) >= maxTrackedClients {
		for k, v := range l.clients {
			if now.Sub(v.lastSeen) > clientIdleTTL {
				delete(l.clients, k)
			}
		}
	}

	cl, ok := l.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// RateLimit rejects requests over the per-client budget with 429.
func RateLimit(l *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			respondMessage(c, http.StatusTooManyRequests, msgTooManyRequest)
			c.Abort()
			return
		}
		c.Next()
	}
}
