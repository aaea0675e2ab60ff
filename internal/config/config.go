// Package config loads orchestrator settings from contentplan.yml with
// environment-variable overrides. A .env file, if present, is loaded first.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LogConfig selects logging behaviour.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // trace..error, default info
	Format string `yaml:"format,omitempty"` // "console" or "json"
}

// Config holds process-level settings loaded from contentplan.yml.
type Config struct {
	ListenAddr   string        `yaml:"listenAddr,omitempty"`   // API server address
	MCPAddr      string        `yaml:"mcpAddr,omitempty"`      // MCP server address
	GeneratorURL string        `yaml:"generatorUrl,omitempty"` // generation service endpoint
	StagesFile   string        `yaml:"stagesFile,omitempty"`   // stage definitions YAML, empty = built-in pipeline
	RedisURL     string        `yaml:"redisUrl,omitempty"`     // empty = in-memory store
	SessionTTL   time.Duration `yaml:"sessionTtl,omitempty"`   // retention window, 0 = store default
	Log          LogConfig     `yaml:"log,omitempty"`
}

// Load attempts to read contentplan.yml or contentplan.yaml from the given
// directory. Returns a config with defaults applied (not an error) if no
// config file exists. Environment variables override file values.
func Load(dir string) (*Config, error) {
	// Missing .env is fine; only care that present ones parse.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := &Config{}
	for _, name := range []string{"contentplan.yml", "contentplan.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		break
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv overrides file values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("CONTENTPLAN_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("CONTENTPLAN_MCP_ADDR"); v != "" {
		c.MCPAddr = v
	}
	if v := os.Getenv("CONTENTPLAN_GENERATOR_URL"); v != "" {
		c.GeneratorURL = v
	}
	if v := os.Getenv("CONTENTPLAN_STAGES_FILE"); v != "" {
		c.StagesFile = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("CONTENTPLAN_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionTTL = d
		}
	}
	if v := os.Getenv("CONTENTPLAN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CONTENTPLAN_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MCPAddr == "" {
		c.MCPAddr = ":8081"
	}
	if c.GeneratorURL == "" {
		c.GeneratorURL = "http://localhost:9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
