package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/common"
	"github.com/dmitrijs2005/accountgate/internal/logging"
	"github.com/dmitrijs2005/accountgate/internal/server/auth"
	"github.com/dmitrijs2005/accountgate/internal/server/models"
	"github.com/dmitrijs2005/accountgate/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAccounts struct {
	registerErr error

	loginRes *services.LoginResult
	loginErr error

	ticket    *services.ResetTicket
	forgotErr error

	resetErr error

	gotUser, gotPassword, gotToken string
}

func (f *fakeAccounts) Register(ctx context.Context, username, password string) (*models.Account, error) {
	f.gotUser, f.gotPassword = username, password
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &models.Account{ID: "id-1", UserName: username}, nil
}

func (f *fakeAccounts) Login(ctx context.Context, username, password string) (*services.LoginResult, error) {
	f.gotUser, f.gotPassword = username, password
	return f.loginRes, f.loginErr
}

func (f *fakeAccounts) ForgotPassword(ctx context.Context, username string) (*services.ResetTicket, error) {
	f.gotUser = username
	return f.ticket, f.forgotErr
}

func (f *fakeAccounts) ResetPassword(ctx context.Context, token, newPassword string) error {
	f.gotToken, f.gotPassword = token, newPassword
	return f.resetErr
}

type fakeIssuer struct {
	claims *auth.Claims
	err    error
}

func (f *fakeIssuer) Issue(string, string, time.Duration) (string, time.Time, error) {
	return "", time.Time{}, errors.New("not used")
}

func (f *fakeIssuer) Parse(token string) (*auth.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func newTestRouter(svc AccountService, issuer auth.TokenIssuer, cfg RouterConfig) *gin.Engine {
	return NewRouter(NewHandler(svc, logging.Nop{}), issuer, logging.Nop{}, cfg)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeAccounts{}, &fakeIssuer{}, RouterConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API Login GENAI está funcionando!", rec.Body.String())
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		err     error
		code    int
		message string
	}{
		{name: "created", body: credentialsRequest{"alice", "pw1"}, code: http.StatusCreated, message: "Usuário registrado com sucesso!"},
		{name: "duplicate", body: credentialsRequest{"alice", "pw1"}, err: common.ErrorDuplicateUsername, code: http.StatusConflict, message: "Nome de usuário já existe."},
		{name: "internal", body: credentialsRequest{"alice", "pw1"}, err: common.ErrorInternal, code: http.StatusInternalServerError, message: "Erro interno do servidor."},
		{name: "password too long", body: credentialsRequest{"alice", "pw1"}, err: common.ErrorPasswordTooLong, code: http.StatusBadRequest, message: "A senha deve ter no máximo 72 bytes."},
		{name: "missing password", body: map[string]string{"username": "alice"}, code: http.StatusBadRequest, message: msgCredsRequired},
		{name: "malformed json", body: "{nope", code: http.StatusBadRequest, message: msgCredsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAccounts{registerErr: tt.err}
			r := newTestRouter(svc, &fakeIssuer{}, RouterConfig{})

			rec, body := doJSON(t, r, http.MethodPost, "/api/auth/register", tt.body)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name    string
		res     *services.LoginResult
		err     error
		code    int
		message string
		token   bool
	}{
		{
			name: "ok", res: &services.LoginResult{Token: "jwt"},
			code: http.StatusOK, message: "Login bem-sucedido!", token: true,
		},
		{
			name: "unknown user", err: common.ErrorInvalidCredentials,
			code: http.StatusBadRequest, message: "Credenciais inválidas.",
		},
		{
			name: "wrong password", err: &common.LoginFailedError{Attempts: 1},
			code: http.StatusBadRequest, message: "Credenciais inválidas.",
		},
		{
			name: "attempt that locks", err: &common.LoginFailedError{Attempts: 3, Locked: true, LockDuration: 5 * time.Minute},
			code: http.StatusBadRequest, message: "Muitas tentativas de login falhas. Conta bloqueada por 5 minutos.",
		},
		{
			name: "still locked", err: &common.LockedError{RemainingMinutes: 4},
			code: http.StatusForbidden, message: "Conta bloqueada. Por favor, tente novamente em 4 minutos.",
		},
		{
			name: "internal", err: common.ErrorInternal,
			code: http.StatusInternalServerError, message: "Erro interno do servidor.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAccounts{loginRes: tt.res, loginErr: tt.err}
			r := newTestRouter(svc, &fakeIssuer{}, RouterConfig{})

			rec, body := doJSON(t, r, http.MethodPost, "/api/auth/login", credentialsRequest{"alice", "pw"})

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, body["message"])
			if tt.token {
				assert.Equal(t, "jwt", body["token"])
			} else {
				assert.NotContains(t, body, "token")
			}
			assert.Equal(t, "alice", svc.gotUser)
			assert.Equal(t, "pw", svc.gotPassword)
		})
	}
}

func TestForgotPasswordHandler(t *testing.T) {
	t.Run("issued", func(t *testing.T) {
		svc := &fakeAccounts{ticket: &services.ResetTicket{Token: "abc"}}
		rec, body := doJSON(t, newTestRouter(svc, &fakeIssuer{}, RouterConfig{}), http.MethodPost,
			"/api/auth/forgot-password", forgotPasswordRequest{"alice"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Token de redefinição de senha gerado.", body["message"])
		assert.Equal(t, "abc", body["resetToken"])
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := &fakeAccounts{forgotErr: common.ErrorNotFound}
		rec, body := doJSON(t, newTestRouter(svc, &fakeIssuer{}, RouterConfig{}), http.MethodPost,
			"/api/auth/forgot-password", forgotPasswordRequest{"ghost"})

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Usuário não encontrado.", body["message"])
	})

	t.Run("internal", func(t *testing.T) {
		svc := &fakeAccounts{forgotErr: common.ErrorInternal}
		rec, _ := doJSON(t, newTestRouter(svc, &fakeIssuer{}, RouterConfig{}), http.MethodPost,
			"/api/auth/forgot-password", forgotPasswordRequest{"alice"})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("missing username", func(t *testing.T) {
		rec, body := doJSON(t, newTestRouter(&fakeAccounts{}, &fakeIssuer{}, RouterConfig{}), http.MethodPost,
			"/api/auth/forgot-password", map[string]string{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgUserRequired, body["message"])
	})
}

func TestResetPasswordHandler(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		err     error
		code    int
		message string
	}{
		{name: "ok", body: resetPasswordRequest{"tok", "pw2"}, code: http.StatusOK, message: "Senha redefinida com sucesso."},
		{name: "bad token", body: resetPasswordRequest{"tok", "pw2"}, err: common.ErrorInvalidOrExpiredToken,
			code: http.StatusBadRequest, message: "Token de redefinição inválido ou expirado."},
		{name: "internal", body: resetPasswordRequest{"tok", "pw2"}, err: common.ErrorInternal,
			code: http.StatusInternalServerError, message: "Erro interno do servidor."},
		{name: "new password too long", body: resetPasswordRequest{"tok", "pw2"}, err: common.ErrorPasswordTooLong,
			code: http.StatusBadRequest, message: "A senha deve ter no máximo 72 bytes."},
		{name: "missing new password", body: map[string]string{"token": "tok"}, code: http.StatusBadRequest, message: msgResetRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAccounts{resetErr: tt.err}
			rec, body := doJSON(t, newTestRouter(svc, &fakeIssuer{}, RouterConfig{}), http.MethodPost,
				"/api/auth/reset-password", tt.body)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, body["message"])
		})
	}

	t.Run("newPassword key is honoured", func(t *testing.T) {
		svc := &fakeAccounts{}
		_, _ = doJSON(t, newTestRouter(svc, &fakeIssuer{}, RouterConfig{}), http.MethodPost,
			"/api/auth/reset-password", map[string]string{"token": "tok", "newPassword": "pw2"})

		assert.Equal(t, "tok", svc.gotToken)
		assert.Equal(t, "pw2", svc.gotPassword)
	})
}

func TestMeHandler(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	claims := &auth.Claims{UserID: "id-1", UserName: "alice"}
	claims.ExpiresAt = jwt.NewNumericDate(exp)

	tests := []struct {
		name    string
		header  string
		issuer  *fakeIssuer
		code    int
		message string
	}{
		{name: "no header", issuer: &fakeIssuer{claims: claims}, code: http.StatusUnauthorized, message: msgUnauthorized},
		{name: "not bearer", header: "Basic abc", issuer: &fakeIssuer{claims: claims}, code: http.StatusUnauthorized, message: msgUnauthorized},
		{name: "invalid", header: "Bearer abc", issuer: &fakeIssuer{err: common.ErrInvalidToken}, code: http.StatusUnauthorized, message: msgUnauthorized},
		{name: "expired", header: "Bearer abc", issuer: &fakeIssuer{err: common.ErrTokenExpired}, code: http.StatusUnauthorized, message: msgTokenExpired},
		{name: "ok", header: "bearer abc", issuer: &fakeIssuer{claims: claims}, code: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeAccounts{}, tt.issuer, RouterConfig{})

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			body := map[string]any{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "id-1", body["id"])
				assert.Equal(t, "alice", body["username"])
				assert.Equal(t, exp.Format(time.RFC3339), body["expiresAt"])
			} else {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}
