package viz

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/conesim/internal/config"
)

func TestWatchConfigReloadsGains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conesim.yaml")
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := WatchConfig(ctx, path, nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	stiff := config.GetPreset("stiff")
	if err := config.Save(path, stiff); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		if msg.Err != nil {
			t.Fatalf("reload error: %v", msg.Err)
		}
		if msg.Gains != stiff.Controller.Gains {
			t.Errorf("gains = %v, want %v", msg.Gains, stiff.Controller.Gains)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// a late reload may still be buffered
			if _, ok = <-ch; ok {
				t.Error("channel not closed after cancel")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatchConfigIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conesim.yaml")
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := WatchConfig(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-ch:
		t.Errorf("unexpected reload %+v", msg)
	case <-time.After(3 * debounce):
	}
}

func TestWatchConfigReportsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conesim.yaml")
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := WatchConfig(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("integration:\n  dt: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-ch:
		if msg.Err == nil {
			t.Error("expected a validation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

func TestWatchConfigMissingDir(t *testing.T) {
	_, err := WatchConfig(context.Background(), filepath.Join(t.TempDir(), "nope", "c.yaml"), nil)
	if err == nil {
		t.Error("expected error for a missing directory")
	}
}
