package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/accountgate/internal/server"
	"github.com/dmitrijs2005/accountgate/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	app.Run(ctx)
}
