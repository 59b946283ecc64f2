package httpapi

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/timex"
)

// Response texts. Clients match on them, keep them stable.
const (
	msgHealth = "API Login GENAI está funcionando!"

	msgRegistered        = "Usuário registrado com sucesso!"
	msgDuplicateUsername = "Nome de usuário já existe."
	msgInternal          = "Erro interno do servidor."

	msgLoggedIn           = "Login bem-sucedido!"
	msgInvalidCredentials = "Credenciais inválidas."

	msgUserNotFound    = "Usuário não encontrado."
	msgResetIssued     = "Token de redefinição de senha gerado."
	msgInvalidReset    = "Token de redefinição inválido ou expirado."
	msgPasswordReset   = "Senha redefinida com sucesso."
	msgCredsRequired   = "Nome de usuário e senha são obrigatórios."
	msgUserRequired    = "Nome de usuário é obrigatório."
	msgResetRequired   = "Token e nova senha são obrigatórios."
	msgPasswordTooLong = "A senha deve ter no máximo 72 bytes."
	msgTooManyRequest  = "Muitas requisições. Tente novamente mais tarde."

	msgUnauthorized = "Token inválido ou ausente."
	msgTokenExpired = "Token expirado."
)

// lockedNowMessage is sent on the attempt that trips the lock.
func lockedNowMessage(lockDuration time.Duration) string {
	return fmt.Sprintf("Muitas tentativas de login falhas. Conta bloqueada por %d minutos.", timex.CeilMinutes(lockDuration))
}

// stillLockedMessage is sent while the lock window is open.
func stillLockedMessage(remainingMinutes int) string {
	return fmt.Sprintf("Conta bloqueada. Por favor, tente novamente em %d minutos.", remainingMinutes)
}
