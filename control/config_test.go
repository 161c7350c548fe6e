package control

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(`
[ftp]
host = "ftp.example.org"
user = "bob"
tls = "explicit"
protection = "private"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.FTP.Host != "ftp.example.org" || cfg.FTP.User != "bob" {
		t.Errorf("Expected ftp values to be decoded, got %+v", cfg.FTP)
	}
	if cfg.FTP.Port != 21 {
		t.Errorf("Expected default port 21, got %d", cfg.FTP.Port)
	}
	if cfg.Log.Level != "info" || cfg.Metrics.Namespace != "npl" {
		t.Errorf("Expected defaults to survive, got %+v %+v", cfg.Log, cfg.Metrics)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"tls mode":   "[ftp]\ntls = \"sometimes\"\n",
		"port":       "[ftp]\nport = 70000\n",
		"protection": "[ftp]\nprotection = \"safe\"\n",
		"log format": "[log]\nformat = \"xml\"\n",
		"listen":     "[metrics]\nlisten = \"nowhere\"\n",
		"batch":      "[dispatcher]\nbatch-size = -1\n",
		"syntax":     "[ftp\n",
	}
	for name, data := range tests {
		if _, err := Parse(data); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npl.toml")
	data := "[metrics]\nenabled = true\nlisten = \"127.0.0.1:9100\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("Expected metrics settings, got %+v", cfg.Metrics)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestConfigStoreNotifiesListeners(t *testing.T) {
	store := NewConfigStore(nil)
	var got []string
	store.OnReload(func(c *Config) { got = append(got, "a:"+c.FTP.Host) })
	store.OnReload(func(c *Config) { got = append(got, "b:"+c.FTP.Host) })

	cfg := DefaultConfig()
	cfg.FTP.Host = "example.org"
	if err := store.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if len(got) != 2 || got[0] != "a:example.org" || got[1] != "b:example.org" {
		t.Errorf("Expected listeners in order, got %v", got)
	}
	if store.Current().FTP.Host != "example.org" {
		t.Errorf("Expected the new host, got %q", store.Current().FTP.Host)
	}
	if store.GetSnapshot()["ftp.host"] != "example.org" {
		t.Errorf("Expected the snapshot to follow, got %v", store.GetSnapshot()["ftp.host"])
	}

	bad := DefaultConfig()
	bad.FTP.TLS = "bogus"
	if err := store.SetConfig(bad); err == nil {
		t.Error("Expected an invalid configuration to be rejected")
	}
	if len(got) != 2 || store.Current().FTP.TLS != "none" {
		t.Errorf("Expected the store to be unchanged, got %v %q", got, store.Current().FTP.TLS)
	}
}

func TestSnapshotOmitsPassword(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FTP.Password = "secret"
	for k, v := range NewConfigStore(cfg).GetSnapshot() {
		if v == "secret" {
			t.Errorf("Expected no secret in the snapshot, found it under %s", k)
		}
	}
}
