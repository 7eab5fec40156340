package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Feed struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		Region    string `yaml:"region"`
		Language  string `yaml:"language"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"feed"`
	Sitemap struct {
		IndexURL string `yaml:"index_url"`
	} `yaml:"sitemap"`
	Scrape struct {
		Cron           string `yaml:"cron"`
		Timezone       string `yaml:"timezone"`
		FreshnessHours int    `yaml:"freshness_hours"`
		Workers        int    `yaml:"workers"`
		RunOnStartup   bool   `yaml:"run_on_startup"`
	} `yaml:"scrape"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TESCO_API_KEY"); v != "" {
		cfg.Feed.APIKey = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("SITEMAP_INDEX_URL"); v != "" {
		cfg.Sitemap.IndexURL = v
	}
	if v := os.Getenv("SCRAPE_CRON"); v != "" {
		cfg.Scrape.Cron = v
	}
	if v := os.Getenv("SCRAPE_TIMEZONE"); v != "" {
		cfg.Scrape.Timezone = v
	}
	if v := os.Getenv("SCRAPE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scrape.Workers = n
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Listen = v
	}

	// Defaults
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = "https://xapi.tesco.com/v1/graphql"
	}
	if cfg.Feed.Region == "" {
		cfg.Feed.Region = "HU"
	}
	if cfg.Feed.Language == "" {
		cfg.Feed.Language = "hu-HU"
	}
	if cfg.Feed.UserAgent == "" {
		// The feed rejects requests without a browser user agent.
		cfg.Feed.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	}
	if cfg.Sitemap.IndexURL == "" {
		cfg.Sitemap.IndexURL = "https://bevasarlas.tesco.hu/sitemaps/hu-HU/groceries/products-index.xml"
	}
	if cfg.Scrape.Cron == "" {
		cfg.Scrape.Cron = "0 0 5 * * *" // 05:00 daily, after overnight price updates land
	}
	if cfg.Scrape.Timezone == "" {
		cfg.Scrape.Timezone = "Europe/Budapest"
	}
	if cfg.Scrape.FreshnessHours == 0 {
		cfg.Scrape.FreshnessHours = 12
	}
	if cfg.Scrape.Workers == 0 {
		cfg.Scrape.Workers = 5
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/pricewatch.db"
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Sitemap.IndexURL == "" {
		return fmt.Errorf("sitemap.index_url is required")
	}
	if c.Scrape.Workers <= 0 {
		return fmt.Errorf("scrape.workers must be positive")
	}
	if c.Scrape.FreshnessHours < 0 {
		return fmt.Errorf("scrape.freshness_hours must not be negative")
	}
	return nil
}
