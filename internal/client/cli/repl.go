package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnknownCommand is returned by a one-shot invocation of a command the
// CLI does not know.
var ErrUnknownCommand = errors.New("unknown command")

// execIface is the command surface the loop drives. *App satisfies it.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	ForgotPassword(ctx context.Context) error
	ResetPassword(ctx context.Context) error
	Me(ctx context.Context) error
	Logout(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register, login, forgot, reset, exit"
	helpLoggedIn  = "Available commands: me, logout, forgot, reset, exit"
)

// dispatch runs one command. quit reports that the user asked to leave.
func dispatch(ctx context.Context, a execIface, cmd string, w io.Writer) (quit bool, err error) {
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			fmt.Fprintln(w, helpLoggedIn)
		} else {
			fmt.Fprintln(w, helpLoggedOut)
		}
	case "register":
		err = a.Register(ctx)
	case "login":
		err = a.Login(ctx)
	case "forgot":
		err = a.ForgotPassword(ctx)
	case "reset":
		err = a.ResetPassword(ctx)
	case "me":
		err = a.Me(ctx)
	case "logout":
		err = a.Logout(ctx)
	case "exit", "quit":
		fmt.Fprintln(w, "Bye!")
		return true, nil
	default:
		fmt.Fprintln(w, "Unknown command:", cmd)
		return false, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return false, err
}

// runREPL reads commands line by line from reader until EOF, "exit" or
// "quit". Command errors are reported by the commands themselves and do not
// stop the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	fmt.Fprintln(w, "Welcome to accountgate CLI (type 'help' for commands)")

	for {
		if ctx.Err() != nil {
			return
		}

		fmt.Fprintf(w, "ag %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		if quit, _ := dispatch(ctx, a, parts[0], w); quit {
			return
		}
	}
}
