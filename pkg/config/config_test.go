package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.RatePerMinute != 120 {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.Fleet.LiveTimeout != time.Second || cfg.Weather.Timeout != 5*time.Second {
		t.Errorf("timeouts = %v %v", cfg.Fleet.LiveTimeout, cfg.Weather.Timeout)
	}
	if cfg.Embed.Backend != "hash" || cfg.RAG.MinSimilarity != 0.1 || cfg.RAG.TopK != 3 {
		t.Errorf("rag = %+v", cfg.RAG)
	}
	if cfg.Notify.Interval != time.Minute || cfg.Notify.Batch != 20 || cfg.Notify.Pacing != 100*time.Millisecond {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if cfg.Log.SlogLevel() != slog.LevelInfo {
		t.Errorf("level = %v", cfg.Log.SlogLevel())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transit.yaml")
	yml := `
http:
  addr: ":9090"
log:
  level: debug
notify:
  interval: 30s
  channel_backend: nats
rag:
  min_similarity: 0.2
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRANSIT_WEATHER_API_KEY", "secret")
	t.Setenv("TRANSIT_NOTIFY_BATCH", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Notify.Interval != 30*time.Second || cfg.Notify.ChannelBackend != "nats" {
		t.Errorf("file values not applied: %+v %+v", cfg.HTTP, cfg.Notify)
	}
	if cfg.Weather.APIKey != "secret" || cfg.Notify.Batch != 5 {
		t.Errorf("env values not applied: %+v %+v", cfg.Weather, cfg.Notify)
	}
	if cfg.RAG.MinSimilarity != 0.2 || cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("rag = %+v, log = %+v", cfg.RAG, cfg.Log)
	}
}

func TestMinSimilarityFollowsEmbedBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transit.yaml")
	if err := os.WriteFile(path, []byte("embed:\n  backend: ollama\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RAG.MinSimilarity != 0.35 {
		t.Errorf("ollama min_similarity = %v, want 0.35", cfg.RAG.MinSimilarity)
	}

	t.Setenv("TRANSIT_RAG_MIN_SIMILARITY", "0.5")
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RAG.MinSimilarity != 0.5 {
		t.Errorf("env min_similarity = %v, want 0.5", cfg.RAG.MinSimilarity)
	}
}

func TestLoadSearchPath(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "config"), 0o755)
	os.WriteFile(filepath.Join(dir, "config", "transit.yaml"), []byte("fleet:\n  data_dir: /srv/fleet\n"), 0o644)
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Fleet.DataDir != "/srv/fleet" {
		t.Errorf("data_dir = %s", cfg.Fleet.DataDir)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "transit.yaml")
	os.WriteFile(path, []byte("cache:\n  backend: redis\nrag:\n  top_k: 0\n"), 0o644)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "cache.backend") || !strings.Contains(err.Error(), "rag.top_k") {
		t.Errorf("err = %v", err)
	}
}
