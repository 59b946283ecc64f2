package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dmitrijs2005/accountgate/internal/client/cli"
	"github.com/dmitrijs2005/accountgate/internal/client/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx, commandArgs(os.Args[1:])); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}

// commandArgs drops flags and their values so that only a trailing command
// name, if any, is left. Every client flag takes a value.
func commandArgs(args []string) []string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if i > 0 && strings.HasPrefix(args[i-1], "-") && !strings.Contains(args[i-1], "=") {
			continue
		}
		return args[i : i+1]
	}
	return nil
}
