package config

import (
	"testing"
	"time"

	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/metobs"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SMHI_METOBS_URL", "SMHI_METANALYS_URL", "SMHI_METFCST_URL", "SMHI_HTTP_TIMEOUT", "SMHI_MAX_RETRIES", "SMHI_PROBE_INTERVAL", "PORT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetObsURL != metobs.DefaultRootURL || cfg.HTTPTimeout != fetch.DefaultTimeout {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.MaxRetries != 0 || cfg.ProbeInterval != 15*time.Minute || cfg.Port != "8080" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if got := cfg.MesanURL(); got != "https://opendata-download-metanalys.smhi.se/api/category/mesan1g/version/2" {
		t.Errorf("unexpected mesan url %s", got)
	}
	if got := cfg.MetfcstProductURL(); got != "https://opendata-download-metfcst.smhi.se/api/category/pmp3g/version/2" {
		t.Errorf("unexpected metfcst url %s", got)
	}
	if _, err := fetch.New(cfg.FetchConfig()); err != nil {
		t.Errorf("default fetch config rejected: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SMHI_HTTP_TIMEOUT", "30s")
	t.Setenv("SMHI_MAX_RETRIES", "3")
	t.Setenv("SMHI_USER_AGENT", "probe/2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fc := cfg.FetchConfig()
	if fc.Client.Timeout != 30*time.Second || fc.Backoff.MaxRetries != 3 || fc.UserAgent != "probe/2" {
		t.Errorf("overrides not applied: %+v", fc)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"SMHI_HTTP_TIMEOUT":   "soon",
		"SMHI_PROBE_INTERVAL": "15",
		"SMHI_MAX_RETRIES":    "-1",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("expected %s=%s to be rejected", key, value)
			}
		})
	}
}
