package main

import (
	"context"
	"log"

	"github.com/pocketdesk/pocketdesk/internal/desktop"
	"github.com/pocketdesk/pocketdesk/internal/desktop/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := desktop.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
