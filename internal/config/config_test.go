package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Playback.Volume != 1.0 {
		t.Errorf("default volume = %v, want 1.0", cfg.Playback.Volume)
	}
	if cfg.Playback.LoopMode != "none" {
		t.Errorf("default loop mode = %q, want none", cfg.Playback.LoopMode)
	}
	if cfg.Queue.RepeatMode != "off" || cfg.Queue.Shuffle {
		t.Errorf("default queue config = %+v", cfg.Queue)
	}
	if !cfg.Queue.SkipMissing {
		t.Error("skip_missing should default on")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Playback.Volume = 0.7
	cfg.Playback.LoopMode = "infinite"
	cfg.Queue.RepeatMode = "queue"
	cfg.Queue.Shuffle = true

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Playback.Volume != 0.7 || got.Playback.LoopMode != "infinite" {
		t.Errorf("playback = %+v", got.Playback)
	}
	if got.Queue.RepeatMode != "queue" || !got.Queue.Shuffle {
		t.Errorf("queue = %+v", got.Queue)
	}
}

// Fields absent from the file keep their defaults instead of zeroing.
func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("queue:\n  shuffle: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Queue.Shuffle {
		t.Error("shuffle not applied")
	}
	if cfg.Playback.Volume != 1.0 || cfg.Playback.LoopMode != "none" {
		t.Errorf("defaults lost: %+v", cfg.Playback)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"volume.yaml": "playback:\n  volume: 2.5\n  loop_mode: none\n",
		"loop.yaml":   "playback:\n  volume: 0.5\n  loop_mode: sometimes\n",
		"repeat.yaml": "queue:\n  repeat_mode: all\n",
		"syntax.yaml": "playback: [not a mapping\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: accepted invalid config", name)
		}
	}
}
