package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the config file when no path is passed to Load.
const PathEnvVar = "MCWRAP_CONFIG"

// EnvPrefix is the prefix of the wrapper's own environment variables.
const EnvPrefix = "MCWRAP_"

// legacyEnv are the bare variable names the wrapper has always read.
var legacyEnv = map[string]string{
	"SERVERJAR":      "server.jar",
	"SERVERDIR":      "server.dir",
	"BACKUPDIR":      "backup.dir",
	"NAMEDBACKUPDIR": "backup.named_dir",
}

// prefixedEnv maps MCWRAP_* names, without the prefix, onto config paths.
var prefixedEnv = map[string]string{
	"server_jar":               "server.jar",
	"server_dir":               "server.dir",
	"server_java":              "server.java",
	"server_heap":              "server.heap",
	"backup_dir":               "backup.dir",
	"backup_named_dir":         "backup.named_dir",
	"backup_archiver":          "backup.archiver",
	"schedule_backup_debounce": "schedule.backup_debounce",
	"schedule_save_interval":   "schedule.save_interval",
	"control_address":          "control.address",
	"tls_key":                  "control.tls_key",
	"tls_cert":                 "control.tls_cert",
	"tls_ca_cert":              "control.tls_ca",
	"metrics_address":          "metrics.address",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
}

// Load reads defaults, then the YAML file at path (or $MCWRAP_CONFIG) if any,
// then SERVERJAR-style variables, then MCWRAP_* variables, and validates the
// result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", legacyTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", prefixedTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// An empty result makes koanf skip the variable.
func legacyTransform(key string) string {
	return legacyEnv[key]
}

func prefixedTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return prefixedEnv[key]
}
