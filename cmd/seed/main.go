// seed inserts development sample data for local testing. Run via ./scripts/seed.sh.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"auth-control-plane/internal/config"
	"auth-control-plane/internal/db"
	"auth-control-plane/internal/security"
	userdomain "auth-control-plane/internal/user/domain"
	userrepo "auth-control-plane/internal/user/repository"
)

const (
	devUserEmail     = "dev@example.com"
	devUserID        = "dev-user-001"
	devPassword      = "Dev-Passw0rd-2024!"
	unverifiedEmail  = "unverified@example.com"
	unverifiedUserID = "dev-user-002"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()

	if err := users.Create(ctx, &userdomain.User{
		ID:              devUserID,
		Email:           devUserEmail,
		Name:            "Dev User",
		PasswordHash:    passwordHash,
		EmailVerifiedAt: &now,
		Status:          userdomain.UserStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		log.Fatalf("create dev user: %v", err)
	}

	// Second account stays unverified so the verification flow can be
	// exercised end to end against a local SMTP catcher.
	if err := users.Create(ctx, &userdomain.User{
		ID:           unverifiedUserID,
		Email:        unverifiedEmail,
		Name:         "Unverified User",
		PasswordHash: passwordHash,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		log.Fatalf("create unverified user: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)
	fmt.Printf("Unverified login: %s / %s\n", unverifiedEmail, devPassword)
}
