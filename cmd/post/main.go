package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/directory"
	"github.com/Connectlite/cl/internal/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		email       string
		password    string
		description string
		link        string
		imageURL    string
	)

	flag.StringVar(&email, "email", envOrDefault("CONNECTLITE_EMAIL", ""), "account email")
	flag.StringVar(&password, "password", envOrDefault("CONNECTLITE_PASSWORD", ""), "account password")
	flag.StringVar(&description, "text", "", "post text")
	flag.StringVar(&link, "link", "", "optional link to attach")
	flag.StringVar(&imageURL, "image", "", "optional image URL to attach")
	flag.Parse()

	if email == "" || password == "" {
		return fmt.Errorf("--email and --password are required (or set CONNECTLITE_EMAIL and CONNECTLITE_PASSWORD)")
	}
	if description == "" && imageURL == "" {
		return fmt.Errorf("--text or --image is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := config.Load(logger)
	if !cfg.Enabled || cfg.DemoMode {
		return fmt.Errorf("no directory service configured: set CONNECTLITE_CONFIG")
	}

	ctx := context.Background()
	client := directory.NewClient(cfg, logger)

	fmt.Printf("Signing in as %s...\n", email)
	ident, err := client.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s\n", ident.UID)

	post := domain.Post{
		AuthorID:     ident.UID,
		AuthorName:   ident.DisplayName,
		AuthorAvatar: ident.AvatarURL,
		Description:  description,
		Link:         link,
		ImageURL:     imageURL,
	}

	id, err := client.AppendPost(ctx, post)
	if err != nil {
		return err
	}
	fmt.Printf("Post published: %s\n", id)

	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
