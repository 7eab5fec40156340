package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers full catalog scrapes on a cron spec. The spec uses the
// six-field form with seconds, evaluated in the store timezone so the run
// lands after the retailer's overnight price updates.
type Scheduler struct {
	scraper      *Scraper
	cronSpec     string
	loc          *time.Location
	runOnStartup bool
}

func NewScheduler(scraper *Scraper, cronSpec string, loc *time.Location, runOnStartup bool) *Scheduler {
	return &Scheduler{
		scraper:      scraper,
		cronSpec:     cronSpec,
		loc:          loc,
		runOnStartup: runOnStartup,
	}
}

// Run blocks until ctx is cancelled, then waits for any in-flight scrape
// registered through cron to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.cronSpec, func() { s.runOnce(ctx, "scheduled") }); err != nil {
		return fmt.Errorf("register scrape job: %w", err)
	}
	c.Start()
	log.Printf("scheduler: scrape scheduled (%s, %s)", s.cronSpec, s.loc)

	if s.runOnStartup {
		s.runOnce(ctx, "startup")
	}

	<-ctx.Done()
	log.Println("scheduler: shutting down")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, triggeredBy string) {
	run, err := s.scraper.RunFull(ctx, triggeredBy)
	if err != nil {
		log.Printf("scheduler: %s scrape failed: %v", triggeredBy, err)
		return
	}
	log.Printf("scheduler: %s scrape run %d finished (%s)", triggeredBy, run.ID, run.Status)
}
