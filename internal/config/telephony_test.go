package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDefaultTelephonyConfigIsValid(t *testing.T) {
	if err := DefaultTelephonyConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestTelephonyConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TelephonyConfig)
		want   string
	}{
		{"relative backup dir", func(c *TelephonyConfig) { c.BackupDir = "backups" }, "backupDir must be absolute"},
		{"relative artifact path", func(c *TelephonyConfig) { c.Artifacts[0].Path = "routing.conf" }, "path must be absolute"},
		{"duplicate name", func(c *TelephonyConfig) { c.Artifacts[1].Name = c.Artifacts[0].Name }, "duplicate name"},
		{"duplicate path", func(c *TelephonyConfig) { c.Artifacts[1].Path = c.Artifacts[0].Path }, "duplicate path"},
		{"backup inside artifact dir", func(c *TelephonyConfig) { c.BackupDir = filepath.Dir(c.Artifacts[0].Path) }, "must not be the directory"},
		{"no sections", func(c *TelephonyConfig) { c.Artifacts[0].Sections = nil }, "sections cannot be empty"},
		{"unknown mode", func(c *TelephonyConfig) { c.Reload.Mode = "ssh" }, "not supported"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultTelephonyConfig()
			cfg.Artifacts = append([]ArtifactConfig(nil), cfg.Artifacts...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestStaticHolderAppliesDefaults(t *testing.T) {
	holder, err := NewStaticTelephonyConfigHolder(TelephonyConfig{
		BackupDir: "/srv/backups",
		Reload:    ReloadConfig{Mode: " CLI "},
	})
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	got := holder.Get()
	if got.Reload.Mode != ReloadModeCLI {
		t.Fatalf("expected mode cli, got %q", got.Reload.Mode)
	}
	if got.Reload.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %s", got.Reload.Timeout)
	}
	if len(got.Artifacts) != 2 {
		t.Fatalf("expected default artifacts, got %d", len(got.Artifacts))
	}
}

func TestTelephonyConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telephony.yml")
	body := `telephony:
  backupDir: ` + filepath.Join(dir, "backups") + `
  artifacts:
    - name: routing
      path: ` + filepath.Join(dir, "etc", "routing.conf") + `
      sections: [inbound, internal, outbound]
      reload: [dialplan]
  reload:
    mode: noop
    timeout: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	holder, err := NewTelephonyConfigHolder(Config{TelephonyConfigPath: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	got := holder.Get()
	if got.Reload.Mode != ReloadModeNoop || got.Reload.Timeout != 5*time.Second {
		t.Fatalf("unexpected reload config: %+v", got.Reload)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].Reload[0] != "dialplan" {
		t.Fatalf("unexpected artifacts: %+v", got.Artifacts)
	}
}

func telephonyFile(dir, timeout, mode string) string {
	return `telephony:
  backupDir: ` + filepath.Join(dir, "backups") + `
  artifacts:
    - name: routing
      path: ` + filepath.Join(dir, "etc", "routing.conf") + `
      sections: [inbound, internal, outbound]
      reload: [dialplan]
  reload:
    mode: ` + mode + `
    timeout: ` + timeout + `
`
}

func waitForTimeout(holder *TelephonyConfigHolder, want time.Duration, within time.Duration) bool {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if holder.Get().Reload.Timeout == want {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return holder.Get().Reload.Timeout == want
}

func TestTelephonyConfigHolderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telephony.yml")
	if err := os.WriteFile(path, []byte(telephonyFile(dir, "5s", "noop")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	holder, err := NewTelephonyConfigHolder(Config{TelephonyConfigPath: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if got := holder.Get().Reload.Timeout; got != 5*time.Second {
		t.Fatalf("expected initial timeout 5s, got %s", got)
	}

	if err := os.WriteFile(path, []byte(telephonyFile(dir, "7s", "noop")), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if !waitForTimeout(holder, 7*time.Second, 5*time.Second) {
		t.Fatalf("expected reloaded timeout 7s, got %s", holder.Get().Reload.Timeout)
	}

	// An edit that fails validation keeps the last good config.
	if err := os.WriteFile(path, []byte(telephonyFile(dir, "9s", "ssh")), 0o644); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	if waitForTimeout(holder, 9*time.Second, 500*time.Millisecond) {
		t.Fatal("invalid config must not replace the current one")
	}
	got := holder.Get()
	if got.Reload.Timeout != 7*time.Second || got.Reload.Mode != ReloadModeNoop {
		t.Fatalf("expected previous config kept, got %+v", got.Reload)
	}

	// An emptied file keeps it too.
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if waitForTimeout(holder, 30*time.Second, 500*time.Millisecond) {
		t.Fatal("empty config must not fall back to defaults")
	}
}
