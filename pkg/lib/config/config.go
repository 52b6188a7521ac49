// Package config loads the wrapper configuration from struct defaults, an
// optional YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/backup"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
)

// ErrMissing is wrapped once per required key that has no value.
var ErrMissing = errors.New("required configuration is missing")

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Backup   BackupConfig   `koanf:"backup"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Control  ControlConfig  `koanf:"control"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Jar  string `koanf:"jar"`
	Dir  string `koanf:"dir"`
	Java string `koanf:"java"`
	Heap string `koanf:"heap"`
}

type BackupConfig struct {
	Dir      string `koanf:"dir"`
	NamedDir string `koanf:"named_dir"`
	Archiver string `koanf:"archiver"`
}

type ScheduleConfig struct {
	BackupDebounce time.Duration `koanf:"backup_debounce"`
	SaveInterval   time.Duration `koanf:"save_interval"`
}

// ControlConfig configures the gRPC control plane. An empty Address disables
// it; empty TLS material means plaintext.
type ControlConfig struct {
	Address string `koanf:"address"`
	TLSKey  string `koanf:"tls_key"`
	TLSCert string `koanf:"tls_cert"`
	TLSCA   string `koanf:"tls_ca"`
}

// TLSEnabled reports whether any TLS material was configured.
func (c ControlConfig) TLSEnabled() bool {
	return c.TLSKey != "" || c.TLSCert != "" || c.TLSCA != ""
}

type MetricsConfig struct {
	Address string `koanf:"address"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Java: "java",
			Heap: "5g",
		},
		Backup: BackupConfig{
			Archiver: "tar",
		},
		Schedule: ScheduleConfig{
			BackupDebounce: 5 * time.Second,
			SaveInterval:   5 * time.Minute,
		},
		Control: ControlConfig{
			Address: "localhost:50051",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks required keys, makes directories absolute and creates the
// backup directories when missing.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		key   string
		value string
	}{
		{"server.jar (SERVERJAR)", c.Server.Jar},
		{"server.dir (SERVERDIR)", c.Server.Dir},
		{"backup.dir (BACKUPDIR)", c.Backup.Dir},
		{"backup.named_dir (NAMEDBACKUPDIR)", c.Backup.NamedDir},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, r.key))
		}
	}
	if c.Schedule.BackupDebounce <= 0 {
		errs = append(errs, fmt.Errorf("schedule.backup_debounce must be positive, got %s", c.Schedule.BackupDebounce))
	}
	if c.Schedule.SaveInterval <= 0 {
		errs = append(errs, fmt.Errorf("schedule.save_interval must be positive, got %s", c.Schedule.SaveInterval))
	}
	if c.Control.TLSEnabled() && (c.Control.TLSKey == "" || c.Control.TLSCert == "" || c.Control.TLSCA == "") {
		errs = append(errs, errors.New("control TLS requires key, certificate and CA certificate"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, dir := range []*string{&c.Server.Dir, &c.Backup.Dir, &c.Backup.NamedDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *dir, err)
		}
		*dir = abs
	}
	for _, dir := range []string{c.Backup.Dir, c.Backup.NamedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create backup directory: %w", err)
		}
	}
	return nil
}

// ServerStartSpec builds the java command line for the server.
func (c *Config) ServerStartSpec() lib.ServerStartSpec {
	return lib.ServerStartSpec{
		Executable: c.Server.Java,
		Dir:        c.Server.Dir,
		Args:       []string{"-Xmx" + c.Server.Heap, "-jar", c.Server.Jar, "--nogui"},
	}
}

// BackupWorker returns the backup worker configuration.
func (c *Config) BackupWorker() backup.Config {
	return backup.Config{
		Archiver:  c.Backup.Archiver,
		ServerDir: c.Server.Dir,
		BackupDir: c.Backup.Dir,
		NamedDir:  c.Backup.NamedDir,
	}
}

// LoggerConfig returns the logging package configuration.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}
