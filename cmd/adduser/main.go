package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/modsentry/moderation-api/internal/config"
	"github.com/modsentry/moderation-api/internal/db"
	"github.com/modsentry/moderation-api/internal/models"
)

// adduser provisions an API user and prints its bearer token.
func main() {
	name := flag.String("name", "", "user display name")
	email := flag.String("email", "", "user email (unique)")
	limit := flag.Int64("limit", 100, "daily request limit")
	flag.Parse()

	if *name == "" || *email == "" {
		log.Fatal("usage: adduser -name <name> -email <email> [-limit <n>]")
	}

	cfg := config.Load()
	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(&models.User{}); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	token, err := models.GenerateAPIToken(32)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}

	user := models.User{
		Name:          *name,
		Email:         *email,
		APIToken:      token,
		RequestsLimit: *limit,
	}
	if err := gdb.Create(&user).Error; err != nil {
		log.Fatalf("create user: %v", err)
	}

	fmt.Printf("user %d created\ntoken: %s\n", user.ID, token)
}
