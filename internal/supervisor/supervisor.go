// Package supervisor implements the Control Plane Supervisor of spec.md
// §4.H: process lifecycle for scraper workers, liveness polling, and
// auto-restart with backoff. Each scraper is an isolated OS child process,
// one credential set per child.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reddit-fleet/scraper-control/internal/models"
	"github.com/reddit-fleet/scraper-control/internal/store"
)

// WorkerBinary is the path to the per-tenant worker executable the
// Supervisor execs. Overridable for tests.
var WorkerBinary = "./worker"

const (
	livenessPollInterval = 30 * time.Second
	shutdownGracePeriod  = 10 * time.Second
)

// managedChild tracks one running worker process.
type managedChild struct {
	scraperID string
	cmd       *exec.Cmd
	exited    chan struct{}
	exitErr   error
}

// Supervisor is the only writer of container_id/container_name fields on
// a scraper record (spec.md §4.H).
type Supervisor struct {
	store   store.Store
	limiter *RestartLimiter

	mu       sync.Mutex
	children map[string]*managedChild
}

// New builds a Supervisor backed by st.
func New(st store.Store) *Supervisor {
	return &Supervisor{
		store:    st,
		limiter:  NewRestartLimiter(5),
		children: map[string]*managedChild{},
	}
}

// Start spawns a worker process for scraperID, transitioning its status
// through starting → running. It assumes credentials are already sealed
// on the scraper record; unsealing happens inside the worker process.
func (s *Supervisor) Start(ctx context.Context, scraperID string) error {
	rec, err := s.store.LoadScraper(ctx, scraperID)
	if err != nil {
		return fmt.Errorf("supervisor: load scraper %s: %w", scraperID, err)
	}

	if err := s.store.SetStatus(ctx, scraperID, models.StatusStarting, ""); err != nil {
		return fmt.Errorf("supervisor: set starting %s: %w", scraperID, err)
	}

	child, err := s.spawn(rec)
	if err != nil {
		_ = s.store.SetStatus(ctx, scraperID, models.StatusFailed, err.Error())
		return fmt.Errorf("supervisor: spawn %s: %w", scraperID, err)
	}

	s.mu.Lock()
	s.children[scraperID] = child
	s.mu.Unlock()

	// The first successful authenticated call is the worker's readiness
	// signal in the source system; here that surfaces as the process
	// simply staying alive past spawn, since the supervisor has no other
	// side channel to the child beyond the shared scraper record.
	if err := s.store.SetStatus(ctx, scraperID, models.StatusRunning, ""); err != nil {
		return fmt.Errorf("supervisor: set running %s: %w", scraperID, err)
	}
	return nil
}

func (s *Supervisor) spawn(rec *models.ScraperRecord) (*managedChild, error) {
	cmd := exec.Command(WorkerBinary, "-scraper-id="+rec.ID, "-mode="+string(rec.ScraperType))
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	child := &managedChild{
		scraperID: rec.ID,
		cmd:       cmd,
		exited:    make(chan struct{}),
	}
	go func() {
		child.exitErr = cmd.Wait()
		close(child.exited)
	}()
	return child, nil
}

// Stop gracefully stops scraperID's worker: SIGTERM, wait for the grace
// period, then force-kill.
func (s *Supervisor) Stop(ctx context.Context, scraperID string) error {
	s.mu.Lock()
	child, ok := s.children[scraperID]
	s.mu.Unlock()

	if err := s.store.SetStatus(ctx, scraperID, models.StatusStopped, ""); err != nil {
		log.Printf("supervisor: set stopped %s: %v", scraperID, err)
	}
	if !ok {
		return nil
	}

	_ = child.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-child.exited:
	case <-time.After(shutdownGracePeriod):
		_ = child.cmd.Process.Kill()
		<-child.exited
	}

	s.mu.Lock()
	delete(s.children, scraperID)
	s.mu.Unlock()
	return nil
}

// Restart stops then starts scraperID's worker.
func (s *Supervisor) Restart(ctx context.Context, scraperID string) error {
	if err := s.Stop(ctx, scraperID); err != nil {
		return err
	}
	return s.Start(ctx, scraperID)
}

// PollLiveness checks every managed child once, fanning the checks out
// concurrently since each check is an independent channel read. A child
// that has exited transitions its scraper record to failed and, if
// auto_restart is set, triggers a backoff-gated restart.
func (s *Supervisor) PollLiveness(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.children))
	for id := range s.children {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	// checkOne gets the caller's ctx, not an errgroup-derived one: the
	// restart goroutine handleExit starts outlives this call, and a derived
	// ctx is cancelled as soon as Wait returns.
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return s.checkOne(ctx, id)
		})
	}
	return g.Wait()
}

func (s *Supervisor) checkOne(ctx context.Context, scraperID string) error {
	s.mu.Lock()
	child, ok := s.children[scraperID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-child.exited:
		s.mu.Lock()
		delete(s.children, scraperID)
		s.mu.Unlock()
		return s.handleExit(ctx, scraperID, child.exitErr)
	default:
		return nil
	}
}

func (s *Supervisor) handleExit(ctx context.Context, scraperID string, exitErr error) error {
	msg := "worker exited"
	if exitErr != nil {
		msg = exitErr.Error()
	}
	if err := s.store.SetStatus(ctx, scraperID, models.StatusFailed, msg); err != nil {
		return fmt.Errorf("supervisor: set failed %s: %w", scraperID, err)
	}

	rec, err := s.store.LoadScraper(ctx, scraperID)
	if err != nil {
		return fmt.Errorf("supervisor: reload %s after exit: %w", scraperID, err)
	}
	if !rec.AutoRestart {
		return nil
	}
	if !s.limiter.Allow(scraperID) {
		log.Printf("supervisor: %s exceeded restart ceiling, leaving failed", scraperID)
		return nil
	}

	cooldown := Cooldown(rec.RestartCount)
	log.Printf("supervisor: restarting %s in %s (restart_count=%d)", scraperID, cooldown, rec.RestartCount)

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(cooldown):
		}
		if err := s.store.IncrementRestartCount(context.Background(), scraperID); err != nil {
			log.Printf("supervisor: increment restart count %s: %v", scraperID, err)
		}
		if err := s.Start(context.Background(), scraperID); err != nil {
			log.Printf("supervisor: auto-restart %s failed: %v", scraperID, err)
		}
	}()
	return nil
}

// Run polls liveness on a fixed interval until ctx is cancelled, then
// stops every managed child.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(livenessPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return ctx.Err()
		case <-ticker.C:
			if err := s.PollLiveness(ctx); err != nil {
				log.Printf("supervisor: liveness poll error: %v", err)
			}
		}
	}
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.children))
	for id := range s.children {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(context.Background(), id); err != nil {
			log.Printf("supervisor: shutdown stop %s: %v", id, err)
		}
	}
}
