package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/config"
	"github.com/scrippt-tech/scrippt-server/internal/service"
)

// jwks_refresh descarga el juego de claves de Google y reescribe el snapshot local.
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadGoogleConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	out := flag.String("out", cfg.JWKSCachePath, "snapshot path")
	timeout := flag.Duration("timeout", cfg.FetchTimeout(), "fetch timeout")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	verifier := service.NewGoogleVerifier(logger, service.GoogleVerifierConfig{
		ClientID:     cfg.ClientID,
		CertsURL:     cfg.CertsURL,
		CachePath:    *out,
		FetchTimeout: *timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
	defer cancel()

	keys, err := verifier.Refresh(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "refresh key set: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== GOOGLE KEY SET ===\n")
	fmt.Printf("source:     %s\n", cfg.CertsURL)
	fmt.Printf("snapshot:   %s\n", *out)
	fmt.Printf("fetched at: %s\n", keys.FetchedAt.Format(time.RFC3339))
	fmt.Printf("max-age:    %ds\n", keys.MaxAge)
	for _, k := range keys.Keys {
		fmt.Printf("  kid=%s alg=%s use=%s\n", k.KeyID, k.Algorithm, k.Use)
	}
}
