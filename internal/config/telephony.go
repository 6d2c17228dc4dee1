package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TelephonyConfig describes the artifacts an apply writes and how the
// telephony engine is told to pick them up.
type TelephonyConfig struct {
	BackupDir string           `mapstructure:"backupDir"`
	Artifacts []ArtifactConfig `mapstructure:"artifacts"`
	Reload    ReloadConfig     `mapstructure:"reload"`
}

type ArtifactConfig struct {
	Name     string   `mapstructure:"name"`
	Path     string   `mapstructure:"path"`
	Sections []string `mapstructure:"sections"`
	// Reload lists reload targets (e.g. "dialplan", "pjsip") run after the
	// artifact is written.
	Reload []string `mapstructure:"reload"`
}

type ReloadConfig struct {
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
	AMI     AMIConfig     `mapstructure:"ami"`
	CLI     CLIConfig     `mapstructure:"cli"`
}

type AMIConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Secret   string `mapstructure:"secret"`
}

type CLIConfig struct {
	Binary string `mapstructure:"binary"`
}

const (
	ReloadModeAMI  = "ami"
	ReloadModeCLI  = "cli"
	ReloadModeNoop = "noop"
)

func DefaultTelephonyConfig() TelephonyConfig {
	return TelephonyConfig{
		BackupDir: "/var/lib/switchboard/backups",
		Artifacts: []ArtifactConfig{
			{
				Name:     "routing",
				Path:     "/etc/asterisk/extensions.d/switchboard/generated_routing.conf",
				Sections: []string{"inbound", "internal", "outbound"},
				Reload:   []string{"dialplan"},
			},
			{
				Name:     "endpoints",
				Path:     "/etc/asterisk/pjsip.d/switchboard/generated_endpoints.conf",
				Sections: []string{"endpoints"},
				Reload:   []string{"pjsip"},
			},
		},
		Reload: ReloadConfig{
			Mode:    ReloadModeAMI,
			Timeout: 30 * time.Second,
			AMI: AMIConfig{
				Host:     "127.0.0.1",
				Port:     5038,
				Username: "admin",
			},
			CLI: CLIConfig{Binary: "asterisk"},
		},
	}
}

func (c TelephonyConfig) withDefaults() TelephonyConfig {
	defaults := DefaultTelephonyConfig()
	if strings.TrimSpace(c.BackupDir) == "" {
		c.BackupDir = defaults.BackupDir
	}
	if len(c.Artifacts) == 0 {
		c.Artifacts = defaults.Artifacts
	}
	c.Reload.Mode = strings.ToLower(strings.TrimSpace(c.Reload.Mode))
	if c.Reload.Mode == "" {
		c.Reload.Mode = defaults.Reload.Mode
	}
	if c.Reload.Timeout <= 0 {
		c.Reload.Timeout = defaults.Reload.Timeout
	}
	if strings.TrimSpace(c.Reload.AMI.Host) == "" {
		c.Reload.AMI.Host = defaults.Reload.AMI.Host
	}
	if c.Reload.AMI.Port <= 0 {
		c.Reload.AMI.Port = defaults.Reload.AMI.Port
	}
	if strings.TrimSpace(c.Reload.CLI.Binary) == "" {
		c.Reload.CLI.Binary = defaults.Reload.CLI.Binary
	}
	return c
}

// Validate rejects configurations an apply could not safely act on.
func (c TelephonyConfig) Validate() error {
	if !filepath.IsAbs(c.BackupDir) {
		return errors.New("telephony.backupDir must be absolute")
	}
	if len(c.Artifacts) == 0 {
		return errors.New("telephony.artifacts cannot be empty")
	}
	names := make(map[string]struct{}, len(c.Artifacts))
	paths := make(map[string]struct{}, len(c.Artifacts))
	backupDir := filepath.Clean(c.BackupDir)
	for _, artifact := range c.Artifacts {
		name := strings.TrimSpace(artifact.Name)
		if name == "" {
			return errors.New("telephony.artifacts[].name is required")
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("telephony.artifacts: duplicate name %q", name)
		}
		names[name] = struct{}{}

		if !filepath.IsAbs(artifact.Path) {
			return fmt.Errorf("telephony.artifacts[%s].path must be absolute", name)
		}
		path := filepath.Clean(artifact.Path)
		if _, dup := paths[path]; dup {
			return fmt.Errorf("telephony.artifacts: duplicate path %q", path)
		}
		paths[path] = struct{}{}
		if filepath.Dir(path) == backupDir {
			return fmt.Errorf("telephony.backupDir must not be the directory of artifact %q", name)
		}
		if len(artifact.Sections) == 0 {
			return fmt.Errorf("telephony.artifacts[%s].sections cannot be empty", name)
		}
	}
	switch c.Reload.Mode {
	case ReloadModeAMI, ReloadModeCLI, ReloadModeNoop:
	default:
		return fmt.Errorf("telephony.reload.mode %q is not supported", c.Reload.Mode)
	}
	return nil
}

// TelephonyConfigHolder keeps the current telephony configuration and swaps
// it when the backing file changes. Readers take one copy per apply.
type TelephonyConfigHolder struct {
	current atomic.Value // holds TelephonyConfig
}

func NewTelephonyConfigHolder(cfg Config, log *zap.Logger) (*TelephonyConfigHolder, error) {
	log = log.Named("config.telephony")

	v := viper.New()
	if cfg.TelephonyConfigPath != "" {
		v.SetConfigFile(cfg.TelephonyConfigPath)
	} else {
		v.SetConfigName("telephony")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/switchboard")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("SWITCHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Info("telephony config file not found, using defaults")
		return NewStaticTelephonyConfigHolder(DefaultTelephonyConfig())
	}

	tc, err := decodeTelephonyConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &TelephonyConfigHolder{}
	holder.current.Store(tc)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		// Editors truncate before writing; an empty read must not fall back
		// to defaults.
		if !v.IsSet("telephony") {
			log.Warn("telephony config reload rejected", zap.String("file", e.Name), zap.String("reason", "missing telephony section"))
			return
		}
		updated, err := decodeTelephonyConfig(v)
		if err != nil {
			log.Warn("telephony config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("telephony config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticTelephonyConfigHolder returns a holder that never reloads.
func NewStaticTelephonyConfigHolder(tc TelephonyConfig) (*TelephonyConfigHolder, error) {
	tc = tc.withDefaults()
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	holder := &TelephonyConfigHolder{}
	holder.current.Store(tc)
	return holder, nil
}

func (h *TelephonyConfigHolder) Get() TelephonyConfig {
	return h.current.Load().(TelephonyConfig)
}

func decodeTelephonyConfig(v *viper.Viper) (TelephonyConfig, error) {
	var tc TelephonyConfig
	if err := v.UnmarshalKey("telephony", &tc); err != nil {
		return TelephonyConfig{}, err
	}
	tc = tc.withDefaults()
	if err := tc.Validate(); err != nil {
		return TelephonyConfig{}, err
	}
	return tc, nil
}
