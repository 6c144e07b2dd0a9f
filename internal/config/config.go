// Package config loads the recognized configuration surface (env, file,
// and defaults) via viper, the way the teacher's pkg/config did for its
// own flat Config struct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration. Every field except
// Encryption.Key has a default; Load fails when encryption.key is unset.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	Encryption EncryptionConfig
	Discovery  DiscoveryConfig
}

// ServerConfig controls the request-domain HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// LogConfig controls the ambient logging stack (logrus + lumberjack).
type LogConfig struct {
	Level string
	File  string // empty means stderr only
}

// DatabaseConfig controls the sqlite-backed store.
type DatabaseConfig struct {
	Path           string
	MaxConnections int
}

// EncryptionConfig carries the secret-store key material.
type EncryptionConfig struct {
	Key string // base64, standard or URL-safe
}

// DiscoveryConfig controls the discovery domain's worker pool, CIDR safety
// limits, and per-stage fan-out.
type DiscoveryConfig struct {
	Worker WorkerConfig
	CIDR   CIDRConfig
	Stage  StageConfig
	Timeouts TimeoutConfig
}

// WorkerConfig sizes the discovery-domain worker pool:
// instances * poolSize total dedicated workers.
type WorkerConfig struct {
	Instances int
	PoolSize  int
}

// CIDRConfig bounds how large a single job's scan range may be.
type CIDRConfig struct {
	MinPrefix  int
	AllowLarge bool
}

// StageConfig bounds per-stage-per-job fan-out.
type StageConfig struct {
	MaxConcurrency int
}

// TimeoutConfig holds the per-host stage timeouts (spec §5 defaults).
type TimeoutConfig struct {
	Liveness time.Duration
	Port     time.Duration
	SSH      time.Duration
}

// Load reads configuration from the given file path (if non-empty) and from
// environment variables prefixed DISCOVERY_, overlaying the defaults below.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("discovery")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Path:           v.GetString("database.path"),
			MaxConnections: v.GetInt("database.maxConnections"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("encryption.key"),
		},
		Discovery: DiscoveryConfig{
			Worker: WorkerConfig{
				Instances: v.GetInt("discovery.worker.instances"),
				PoolSize:  v.GetInt("discovery.worker.poolSize"),
			},
			CIDR: CIDRConfig{
				MinPrefix:  v.GetInt("discovery.cidr.minPrefix"),
				AllowLarge: v.GetBool("discovery.cidr.allowLarge"),
			},
			Stage: StageConfig{
				MaxConcurrency: v.GetInt("discovery.stage.maxConcurrency"),
			},
			Timeouts: TimeoutConfig{
				Liveness: v.GetDuration("discovery.timeout.liveness"),
				Port:     v.GetDuration("discovery.timeout.port"),
				SSH:      v.GetDuration("discovery.timeout.ssh"),
			},
		},
	}

	if cfg.Encryption.Key == "" {
		return Config{}, fmt.Errorf("config: encryption.key is required")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("database.path", "data/discovery.db")
	v.SetDefault("database.maxConnections", 10)

	v.SetDefault("discovery.worker.instances", 2)
	v.SetDefault("discovery.worker.poolSize", 4)

	v.SetDefault("discovery.cidr.minPrefix", 16)
	v.SetDefault("discovery.cidr.allowLarge", false)

	v.SetDefault("discovery.stage.maxConcurrency", 64)

	v.SetDefault("discovery.timeout.liveness", time.Second)
	v.SetDefault("discovery.timeout.port", 5*time.Second)
	v.SetDefault("discovery.timeout.ssh", 5*time.Second)
}

// WorkerCount returns the total number of discovery-domain workers.
func (c DiscoveryConfig) WorkerCount() int {
	if c.Worker.Instances <= 0 || c.Worker.PoolSize <= 0 {
		return 1
	}
	return c.Worker.Instances * c.Worker.PoolSize
}
