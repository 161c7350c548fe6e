package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npl.toml")
	if err := os.WriteFile(path, []byte("[ftp]\nhost = \"one.example\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewConfigStore(cfg)
	hosts := make(chan string, 4)
	store.OnReload(func(c *Config) { hosts <- c.FTP.Host })

	w, err := WatchStore(path, store, nil)
	if err != nil {
		t.Fatalf("WatchStore: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[ftp]\nhost = \"two.example\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A truncated intermediate state may be seen first.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case h := <-hosts:
			if h == "two.example" {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for the reload")
		}
	}
}

func TestWatchReportsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npl.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	errs := make(chan error, 4)
	w, err := Watch(path, 10*time.Millisecond, nil, func(_ *Config, err error) { errs <- err })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := os.WriteFile(path, []byte("[ftp]\ntls = \"maybe\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case err := <-errs:
			done = err != nil
		case <-timeout:
			t.Fatal("timed out waiting for a validation error")
		}
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Expected a second Close to be a no-op, got %v", err)
	}
}
