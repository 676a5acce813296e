package config

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/grid"
	"github.com/i474232898/smhi-opendata/internal/metobs"
	"github.com/i474232898/smhi-opendata/internal/strang"
)

type AppConfig struct {
	// Service roots. The metanalys root serves both STRÅNG and Mesan.
	MetObsURL    string
	MetanalysURL string
	MetfcstURL   string

	HTTPTimeout time.Duration
	UserAgent   string

	// Retries of transport failures; 0 disables them.
	MaxRetries       int
	RetryInitial     time.Duration
	RetryMaxInterval time.Duration

	// ProbeInterval controls how often the catalog root is checked.
	ProbeInterval time.Duration

	GeocoderAPIKey string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.MetObsURL = getenvDefault("SMHI_METOBS_URL", metobs.DefaultRootURL)
	cfg.MetanalysURL = getenvDefault("SMHI_METANALYS_URL", strang.DefaultBaseURL)
	cfg.MetfcstURL = getenvDefault("SMHI_METFCST_URL", "https://opendata-download-metfcst.smhi.se/api")
	cfg.UserAgent = getenvDefault("SMHI_USER_AGENT", "smhi-opendata/1.0")
	cfg.GeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")
	cfg.Port = getenvDefault("PORT", "8080")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("SMHI_HTTP_TIMEOUT", fetch.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = getenvDuration("SMHI_PROBE_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RetryInitial, err = getenvDuration("SMHI_RETRY_INITIAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RetryMaxInterval, err = getenvDuration("SMHI_RETRY_MAX_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	cfg.MaxRetries = getenvInt("SMHI_MAX_RETRIES", 0)
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid SMHI_MAX_RETRIES: %d", cfg.MaxRetries)
	}

	return cfg, nil
}

// MesanURL is the Mesan product root under the metanalys API.
func (c *AppConfig) MesanURL() string { return c.MetanalysURL + grid.MesanPath }

// MetfcstProductURL is the pmp3g product root under the metfcst API.
func (c *AppConfig) MetfcstProductURL() string { return c.MetfcstURL + grid.MetfcstPath }

// FetchConfig turns the HTTP settings into a fetcher configuration.
func (c *AppConfig) FetchConfig() fetch.Config {
	return fetch.Config{
		Client: &http.Client{Timeout: c.HTTPTimeout},
		Backoff: fetch.BackoffConfig{
			MaxRetries:      c.MaxRetries,
			InitialInterval: c.RetryInitial,
			MaxInterval:     c.RetryMaxInterval,
		},
		UserAgent: c.UserAgent,
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
