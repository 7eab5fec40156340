package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"pricewatch/internal/api"
	"pricewatch/internal/config"
	"pricewatch/internal/ingest"
	"pricewatch/internal/live"
	"pricewatch/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	dbPath := flag.String("db", "", "override SQLite database path")
	listen := flag.String("listen", "", "override HTTP listen address")
	once := flag.Bool("once", false, "run a full catalog scrape and exit")
	items := flag.String("items", "", "comma-separated tpncs to scrape, then exit")
	force := flag.Bool("force", false, "with -items, scrape even recently seen products")
	noScrape := flag.Bool("no-scrape", false, "disable scheduled scraping (server only, for local dev)")
	flag.Parse()

	// A .env file is optional; real deployments set the environment directly.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.SQLitePath = *dbPath
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create data dir: %v", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	// Load timezone once at startup
	loc, err := time.LoadLocation(cfg.Scrape.Timezone)
	if err != nil {
		log.Printf("Warning: could not load %s timezone, using UTC: %v", cfg.Scrape.Timezone, err)
		loc = time.UTC
	}

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	feed := ingest.NewClient(ingest.ClientConfig{
		URL:       cfg.Feed.URL,
		APIKey:    cfg.Feed.APIKey,
		Region:    cfg.Feed.Region,
		Language:  cfg.Feed.Language,
		UserAgent: cfg.Feed.UserAgent,
	})
	sitemaps := ingest.NewSitemapClient(cfg.Feed.UserAgent)
	scraper := ingest.NewScraper(st, feed, sitemaps, cfg.Sitemap.IndexURL,
		time.Duration(cfg.Scrape.FreshnessHours)*time.Hour, cfg.Scrape.Workers)

	hub := live.NewHub(st, loc)
	scraper.SetNotifier(hub)
	server := api.NewServer(st, hub, cfg.Server.Listen, loc)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *items != "" {
		var tpncs []string
		for _, raw := range strings.Split(*items, ",") {
			if tpnc := strings.TrimSpace(raw); tpnc != "" {
				tpncs = append(tpncs, tpnc)
			}
		}
		log.Printf("scraping %d requested products", len(tpncs))
		run, err := scraper.ScrapeItems(ctx, tpncs, *force, "manual")
		if err != nil {
			log.Fatalf("scrape items: %v", err)
		}
		log.Printf("done: run %d %s", run.ID, run.Status)
		return
	}

	if *once {
		log.Println("running single full scrape")
		run, err := scraper.RunFull(ctx, "manual")
		if err != nil {
			log.Fatalf("scrape: %v", err)
		}
		log.Printf("done: run %d %s", run.ID, run.Status)
		return
	}

	if !*noScrape {
		scheduler := ingest.NewScheduler(scraper, cfg.Scrape.Cron, loc, cfg.Scrape.RunOnStartup)
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				log.Printf("scheduler: %v", err)
			}
		}()
	} else {
		log.Println("scraping disabled (--no-scrape)")
	}

	log.Printf("starting server on %s", cfg.Server.Listen)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
