// ABOUTME: Admin commands that work on local files instead of the running gateway
// ABOUTME: Seeds the catalog database, mints admin tokens and hashes API keys

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-concierge/internal/auth"
	"github.com/2389/coven-concierge/internal/config"
	"github.com/2389/coven-concierge/internal/store"
)

const defaultTokenTTL = 30 * 24 * time.Hour

func loadGatewayConfig() (*config.Config, error) {
	path := config.Path()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// cmdSeed imports a YAML seed file into the configured database.
func cmdSeed(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: seed <file>")
	}

	seed, err := store.LoadSeed(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadGatewayConfig()
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := seed.Apply(ctx, s); err != nil {
		return fmt.Errorf("applying seed: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Imported %d products and %d FAQs\n", len(seed.Products), len(seed.FAQs))
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	return nil
}

// cmdToken prints a JWT signed with the gateway's admin.jwt_secret.
func cmdToken(args []string) error {
	flags, rest, err := parseFlags(args, "subject", "ttl")
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("usage: token [--subject S] [--ttl D]")
	}

	subject := flags["subject"]
	if subject == "" {
		subject = "admin"
	}

	ttl := defaultTokenTTL
	if raw, ok := flags["ttl"]; ok {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid --ttl: %w", err)
		}
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}
	}

	cfg, err := loadGatewayConfig()
	if err != nil {
		return err
	}
	if cfg.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is not configured")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Admin.JWTSecret)).Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

// cmdHashKey prints the bcrypt hash to paste into admin.api_key_hash.
func cmdHashKey(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hash-key <key>")
	}

	hash, err := auth.HashAPIKey(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
