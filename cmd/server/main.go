package main

import (
	"context"
	"errors"
	"io/fs"
	"log"

	"github.com/dmitrijs2005/docingest/internal/server"
	"github.com/dmitrijs2005/docingest/internal/server/config"
	"github.com/joho/godotenv"
)

func main() {

	// .env is optional outside docker-compose
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("%v", err)
	}

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
