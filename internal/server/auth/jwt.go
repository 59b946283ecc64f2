// Package auth holds the credential primitives used by the account service:
// bcrypt password hashing and HS256 JWT credential tokens.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the account a credential token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"id"`
	UserName string `json:"username"`
}

// TokenIssuer mints signed, time-limited credential tokens.
type TokenIssuer interface {
	Issue(userID, userName string, ttl time.Duration) (token string, expiresAt time.Time, err error)
	Parse(token string) (*Claims, error)
}

// JWTIssuer signs tokens with HMAC-SHA256.
type JWTIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewJWTIssuer(secretKey string) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secretKey), now: time.Now}
}

func (i *JWTIssuer) Issue(userID, userName string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   userID,
		UserName: userName,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and expiry. Expired tokens give
// common.ErrTokenExpired, anything else invalid gives common.ErrInvalidToken.
func (i *JWTIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
