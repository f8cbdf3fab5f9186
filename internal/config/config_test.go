package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverridesFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"listen":"0.0.0.0:9000","keepalive_interval":5,"keepalive_check_period":2,"keepalive_prod":20}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := Default()
	if err := Load(&c, path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen != "0.0.0.0:9000" {
		t.Fatalf("got Listen=%q, want 0.0.0.0:9000", c.Listen)
	}
	if c.KeepAliveInterval != 5 || c.KeepAliveCheckPeriod != 2 || c.KeepAliveProd != 20 {
		t.Fatalf("unexpected config after Load: %+v", c)
	}
}

func TestLoadEmptyPathIsNoop(t *testing.T) {
	c := Default()
	want := c
	if err := Load(&c, ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c != want {
		t.Fatalf("config changed with empty path: got %+v, want %+v", c, want)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	c := Default()
	if err := Load(&c, "/nonexistent/path/config.json"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestScanIntervalAndProdDuration(t *testing.T) {
	c := Config{KeepAliveInterval: 10, KeepAliveCheckPeriod: 3, KeepAliveProd: 30, MetricsPeriod: 60}
	if got := c.ScanInterval(); got != 30*time.Second {
		t.Fatalf("ScanInterval() = %v, want 30s", got)
	}
	if got := c.ProdDuration(); got != 30*time.Second {
		t.Fatalf("ProdDuration() = %v, want 30s", got)
	}
	if got := c.MetricsInterval(); got != 60*time.Second {
		t.Fatalf("MetricsInterval() = %v, want 60s", got)
	}
}

func TestValidateFixesNonPositiveCheckPeriod(t *testing.T) {
	c := Config{KeepAliveInterval: 10, KeepAliveCheckPeriod: 0, KeepAliveProd: 30}
	c.Validate()
	if c.KeepAliveCheckPeriod != 1 {
		t.Fatalf("expected KeepAliveCheckPeriod to be fixed to 1, got %d", c.KeepAliveCheckPeriod)
	}
}

func TestValidateFixesNonPositiveInterval(t *testing.T) {
	c := Config{KeepAliveInterval: 0, KeepAliveCheckPeriod: 3, KeepAliveProd: 30}
	c.Validate()
	if c.KeepAliveInterval != 10 {
		t.Fatalf("expected KeepAliveInterval to be fixed to 10, got %d", c.KeepAliveInterval)
	}
}

func TestValidateFixesNonPositiveMetricsPeriodOnlyWhenLogSet(t *testing.T) {
	c := Config{KeepAliveInterval: 10, KeepAliveCheckPeriod: 3, KeepAliveProd: 30, MetricsPeriod: 0}
	c.Validate()
	if c.MetricsPeriod != 0 {
		t.Fatalf("expected MetricsPeriod to stay 0 with metrics disabled, got %d", c.MetricsPeriod)
	}

	c = Config{KeepAliveInterval: 10, KeepAliveCheckPeriod: 3, KeepAliveProd: 30, MetricsLog: "metrics.csv", MetricsPeriod: 0}
	c.Validate()
	if c.MetricsPeriod != 60 {
		t.Fatalf("expected MetricsPeriod to be fixed to 60, got %d", c.MetricsPeriod)
	}
}
