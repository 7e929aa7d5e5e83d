// Command worker is the per-tenant scraper process the Supervisor execs.
// It loads its own scraper record, unseals its Reddit OAuth credentials,
// and runs a single rotation loop (posts or comments, per -mode) until
// the process receives a shutdown signal.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reddit-fleet/scraper-control/internal/config"
	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/ratelimit"
	"github.com/reddit-fleet/scraper-control/internal/reddit"
	"github.com/reddit-fleet/scraper-control/internal/store"
	"github.com/reddit-fleet/scraper-control/internal/transport"
	"github.com/reddit-fleet/scraper-control/internal/vault"
	"github.com/reddit-fleet/scraper-control/internal/worker"
)

func main() {
	scraperID := flag.String("scraper-id", "", "scraper record id to run")
	mode := flag.String("mode", string(models.ScraperTypePosts), "posts or comments")
	flag.Parse()

	if *scraperID == "" {
		log.Fatal("worker: -scraper-id is required")
	}

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

	rec, err := st.LoadScraper(ctx, *scraperID)
	if err != nil {
		log.Fatalf("worker %s: failed to load scraper record: %v", *scraperID, err)
	}

	key, err := hex.DecodeString(cfg.Vault.KeyHex)
	if err != nil || len(key) != 32 {
		log.Fatal("VAULT_KEY_HEX must be a 32-byte hex-encoded key")
	}
	sealer, err := vault.NewSealer(key)
	if err != nil {
		log.Fatal("Failed to initialize vault sealer:", err)
	}
	secrets, err := sealer.UnsealSecrets(rec.Credentials)
	if err != nil {
		log.Fatalf("worker %s: failed to unseal credentials: %v", *scraperID, err)
	}

	oracle := ratelimit.NewOracle(cfg.RateLimit.Threshold)
	httpClient, counting := transport.NewClient(oracle, transport.Labels{
		Subreddit:   rec.Primary(),
		ScraperType: rec.ScraperType,
	})
	client := reddit.NewClient(httpClient, secrets)

	usage := transport.NewRecorder(st, oracle, cfg.RateLimit.FlushInterval, cfg.RateLimit.CostPer1000Requests)
	go usage.Run(ctx, counting)

	var action worker.Action
	switch models.ScraperType(*mode) {
	case models.ScraperTypeComments:
		action = worker.NewCommentsWorker(st, client, rec.Config).Action()
	default:
		action = worker.NewPostsWorker(st, client, rec.Config).Action()
	}

	rotation := worker.NewRotation(st, oracle, *scraperID, action,
		time.Duration(rec.Config.RotationDelaySeconds)*time.Second,
		time.Duration(rec.Config.IntervalSeconds)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("worker %s: shutdown signal received", *scraperID)
		cancel()
	}()

	if err := rotation.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("worker %s: rotation exited with error: %v", *scraperID, err)
	}
	log.Printf("worker %s: stopped", *scraperID)
}
