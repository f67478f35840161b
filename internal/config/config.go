// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// PathsConfig locates the CSV ledgers, reference data, and the lake.
type PathsConfig struct {
	SeedsCSV          string `mapstructure:"seeds_csv"`
	MasterCSV         string `mapstructure:"master_csv"`
	StatusCSV         string `mapstructure:"status_csv"`
	LakeDir           string `mapstructure:"lake_dir"`
	MunicipalitiesCSV string `mapstructure:"municipalities_csv"`
	StatusCodesCSV    string `mapstructure:"status_codes_csv"`
	ProvinceCodesCSV  string `mapstructure:"province_codes_csv"`
}

// CrawlerConfig bounds crawl and download behavior.
type CrawlerConfig struct {
	UserAgent               string `mapstructure:"user_agent"`
	PageTimeoutSeconds      int    `mapstructure:"page_timeout_seconds"`
	DownloadTimeoutSeconds  int    `mapstructure:"download_timeout_seconds"`
	MaxPagesPerCrawl        int    `mapstructure:"max_pages_per_crawl"`
	MaxDownloadsPerRun      int    `mapstructure:"max_downloads_per_run"`
	MaxUnknownYearDownloads int    `mapstructure:"max_unknown_year_downloads"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PageTimeout returns the page fetch timeout as a duration.
func (c CrawlerConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the binary download timeout as a duration.
func (c CrawlerConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.seeds_csv", "output_municipality_urls.csv")
	v.SetDefault("paths.master_csv", "output_master_records.csv")
	v.SetDefault("paths.status_csv", "output_download_status.csv")
	v.SetDefault("paths.lake_dir", "lake")
	v.SetDefault("paths.municipalities_csv", "input_municipalities.csv")
	v.SetDefault("paths.status_codes_csv", "input_municipal_status_codes.csv")
	v.SetDefault("paths.province_codes_csv", "input_province_codes.csv")
	v.SetDefault("crawler.user_agent", "canada-spends-scraper/0.1")
	v.SetDefault("crawler.page_timeout_seconds", 30)
	v.SetDefault("crawler.download_timeout_seconds", 120)
	v.SetDefault("crawler.max_pages_per_crawl", 5)
	v.SetDefault("crawler.max_downloads_per_run", 50)
	v.SetDefault("crawler.max_unknown_year_downloads", 5)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Paths.SeedsCSV == "" {
		return fmt.Errorf("paths.seeds_csv must be set")
	}
	if c.Paths.MasterCSV == "" {
		return fmt.Errorf("paths.master_csv must be set")
	}
	if c.Paths.StatusCSV == "" {
		return fmt.Errorf("paths.status_csv must be set")
	}
	if c.Paths.LakeDir == "" {
		return fmt.Errorf("paths.lake_dir must be set")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.page_timeout_seconds must be > 0")
	}
	if c.Crawler.DownloadTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.download_timeout_seconds must be > 0")
	}
	if c.Crawler.MaxPagesPerCrawl <= 0 {
		return fmt.Errorf("crawler.max_pages_per_crawl must be > 0")
	}
	if c.Crawler.MaxDownloadsPerRun <= 0 {
		return fmt.Errorf("crawler.max_downloads_per_run must be > 0")
	}
	if c.Crawler.MaxUnknownYearDownloads <= 0 {
		return fmt.Errorf("crawler.max_unknown_year_downloads must be > 0")
	}
	return nil
}
