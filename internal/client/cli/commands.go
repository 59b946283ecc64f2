package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountgate/internal/client/client"
	"github.com/dmitrijs2005/accountgate/internal/common"
)

var errEmptyInput = errors.New("input must not be empty")

func (a *App) readUserName() (string, error) {
	userName, err := GetSimpleText(a.reader, "-Enter user name", a.out)
	if err != nil {
		return "", err
	}
	if userName == "" {
		return "", errEmptyInput
	}
	return userName, nil
}

func (a *App) readPassword() ([]byte, error) {
	password, err := GetPassword(a.out)
	if err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, errEmptyInput
	}
	return password, nil
}

func (a *App) fail(action string, err error) error {
	fmt.Fprintf(a.out, "%s unsuccessful: %s\n", action, err.Error())
	return err
}

func (a *App) Register(ctx context.Context) error {
	userName, err := a.readUserName()
	if err != nil {
		return a.fail("Registration", err)
	}

	password, err := a.readPassword()
	if err != nil {
		return a.fail("Registration", err)
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.client.Register(ctx, userName, string(password)); err != nil {
		return a.fail("Registration", err)
	}

	fmt.Fprintln(a.out, "Registration successful")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	userName, err := a.readUserName()
	if err != nil {
		return a.fail("Login", err)
	}

	password, err := a.readPassword()
	if err != nil {
		return a.fail("Login", err)
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	token, err := a.client.Login(ctx, userName, string(password))
	if err != nil {
		if errors.Is(err, client.ErrLocked) {
			fmt.Fprintln(a.out, "Account is locked")
		}
		return a.fail("Login", err)
	}

	a.token = token
	a.userName = userName
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

func (a *App) ForgotPassword(ctx context.Context) error {
	userName, err := a.readUserName()
	if err != nil {
		return a.fail("Password reset request", err)
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	token, err := a.client.ForgotPassword(ctx, userName)
	if err != nil {
		return a.fail("Password reset request", err)
	}

	fmt.Fprintf(a.out, "Reset token: %s\n", token)
	return nil
}

func (a *App) ResetPassword(ctx context.Context) error {
	token, err := GetSimpleText(a.reader, "-Enter reset token", a.out)
	if err != nil {
		return a.fail("Password reset", err)
	}
	if token == "" {
		return a.fail("Password reset", errEmptyInput)
	}

	password, err := a.readPassword()
	if err != nil {
		return a.fail("Password reset", err)
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	if err := a.client.ResetPassword(ctx, token, string(password)); err != nil {
		return a.fail("Password reset", err)
	}

	fmt.Fprintln(a.out, "Password changed")
	return nil
}

func (a *App) Me(ctx context.Context) error {
	if !a.isLoggedIn() {
		return a.fail("Me", client.ErrUnauthorized)
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	id, err := a.client.Me(ctx, a.token)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			a.token, a.userName = "", ""
		}
		return a.fail("Me", err)
	}

	fmt.Fprintf(a.out, "id: %s\nusername: %s\nexpires: %s\n", id.ID, id.UserName, id.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.token, a.userName = "", ""
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
