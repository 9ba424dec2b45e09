package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Endpoint.URL != "http://localhost:8002" || cfg.Logs.Chat != 100 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
endpoint:
  url: http://director:8002
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRequiresConfigVersionEvenWithFullFile(t *testing.T) {
	path := writeConfig(t, `
endpoint:
  url: http://director:8002
reconnect:
  base_delay_ms: 1000
  max_delay_ms: 5000
logs:
  chat: 10
`)
	cfg, err := Load(path)
	if err == nil {
		t.Fatalf("expected config_version error, loaded config_version=%d", cfg.ConfigVersion)
	}
	if !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadAcceptsExplicitConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
endpoint:
  url: http://director:8002
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion || cfg.Endpoint.URL != "http://director:8002" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 7
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("DIRECTOR_HOST", "director.local")
	path := writeConfig(t, `
config_version: 1
endpoint:
  url: https://$DIRECTOR_HOST
  namespace: /director
reconnect:
  base_delay_ms: 500
  max_delay_ms: 2000
  jitter: 0.2
logs:
  chat: 20
chat:
  mention_keywords: [otter]
http:
  addr: 127.0.0.1:9090
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Endpoint.URL != "https://director.local" || cfg.Endpoint.Namespace != "/director" {
		t.Fatalf("unexpected endpoint %+v", cfg.Endpoint)
	}
	if cfg.Reconnect.BaseDelayMS != 500 || cfg.Reconnect.MaxDelayMS != 2000 || cfg.Reconnect.Jitter != 0.2 {
		t.Fatalf("unexpected reconnect %+v", cfg.Reconnect)
	}
	if cfg.Logs.Chat != 20 || cfg.Logs.Vision != 50 {
		t.Fatalf("unexpected logs %+v", cfg.Logs)
	}
	if len(cfg.Chat.MentionKeywords) != 1 || cfg.Chat.MentionKeywords[0] != "otter" {
		t.Fatalf("unexpected keywords %v", cfg.Chat.MentionKeywords)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9090" {
		t.Fatalf("unexpected http addr %q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsInvalidSections(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{"endpoint:\n  url: director:8002", "endpoint.url"},
		{"endpoint:\n  url: ftp://director", "endpoint.url scheme"},
		{"endpoint:\n  namespace: director", "endpoint.namespace"},
		{"reconnect:\n  base_delay_ms: 5000\n  max_delay_ms: 1000", "reconnect.max_delay_ms"},
		{"reconnect:\n  jitter: 1.5", "reconnect.jitter"},
		{"collab:\n  base_url: nohost", "collab.base_url"},
		{"logs:\n  chat: -1", "logs"},
	}
	for _, tc := range cases {
		path := writeConfig(t, "config_version: 1\n"+tc.body)
		if _, err := Load(path); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%q: expected error containing %q, got %v", tc.body, tc.want, err)
		}
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("written default must load: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("unexpected config version %d", cfg.ConfigVersion)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
