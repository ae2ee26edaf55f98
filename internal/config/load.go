package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions in raw YAML.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables, parses
// it, applies defaults, then lets a few well-known environment variables
// override the file so container deployments can tune without editing YAML.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables (no default, no value).
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if hasDefault {
			return subs[2]
		}

		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	c.Port = envInt("CHATPREP_PORT", c.Port)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.DatabaseURL = envStr("DATABASE_URL", c.DatabaseURL)
	c.NatsURL = envStr("NATS_URL", c.NatsURL)
	c.NatsToken = envStr("NATS_TOKEN", c.NatsToken)
	c.FineTuningURL = envStr("FINE_TUNING_SERVICE_URL", c.FineTuningURL)
	c.Output.S3AccessKey = envStr("AWS_ACCESS_KEY_ID", c.Output.S3AccessKey)
	c.Output.S3SecretKey = envStr("AWS_SECRET_ACCESS_KEY", c.Output.S3SecretKey)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
