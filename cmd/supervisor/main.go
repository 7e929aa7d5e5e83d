// Command supervisor is the control-plane entrypoint: it loads config,
// opens the shared store, and runs the Supervisor's liveness loop
// alongside the operator-facing HTTP API until it receives a shutdown
// signal.
package main

import (
	"context"
	"encoding/hex"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/config"
	"github.com/reddit-fleet/scraper-control/internal/server"
	"github.com/reddit-fleet/scraper-control/internal/store"
	"github.com/reddit-fleet/scraper-control/internal/supervisor"
	"github.com/reddit-fleet/scraper-control/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		log.Fatal("Failed to initialize store:", err)
	}
	defer st.Close()

	key, err := hex.DecodeString(cfg.Vault.KeyHex)
	if err != nil || len(key) != 32 {
		log.Fatal("VAULT_KEY_HEX must be a 32-byte hex-encoded key")
	}
	sealer, err := vault.NewSealer(key)
	if err != nil {
		log.Fatal("Failed to initialize vault sealer:", err)
	}

	sup := supervisor.New(st)
	httpServer := server.NewServer(cfg.Server, st, sup, sealer)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	go func() {
		log.Println("Starting supervisor liveness loop")
		if err := sup.Run(ctx); err != nil {
			log.Printf("Supervisor error: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	cancel()
	log.Println("Shutdown complete")
}
