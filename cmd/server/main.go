package main

import (
	"log"

	"github.com/example/exodetect/internal/config"
	"github.com/example/exodetect/internal/database"
	"github.com/example/exodetect/internal/routes"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)
	rdb := database.ConnectRedis(cfg)

	app := routes.NewApp(db, cfg, rdb)

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
