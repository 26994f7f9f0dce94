package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendLocal    = "local"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Local     LocalConfig     `yaml:"local"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Auth      AuthConfig      `yaml:"auth"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Log       LogConfig       `yaml:"log"`
}

// Transport modes of the MCP server.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Transport string `yaml:"transport"`
	// AccessKey, when set, is required as a bearer token on HTTP requests.
	AccessKey string `yaml:"access_key"`
}

// StoreConfig selects where records and documents are synchronized.
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// DBConfig is the SQLite database holding the project catalogue, and the
// records too when the sqlite backend is selected.
type DBConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PostgresConfig struct {
	DSN       string `yaml:"dsn"`
	Namespace string `yaml:"namespace"`
}

type LocalConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type UploadsConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
	MaxSize int64  `yaml:"max_size"`
}

type AuthConfig struct {
	AdminEmail string `yaml:"admin_email"`
	AdminName  string `yaml:"admin_name"`
	// DefaultEmail signs in callers that do not say who they are.
	DefaultEmail string `yaml:"default_email"`
}

// WorkspaceConfig tunes the synchronizers.
type WorkspaceConfig struct {
	// Project is used when a caller names no project.
	Project            string        `yaml:"project"`
	Optimistic         bool          `yaml:"optimistic"`
	VersionedDocuments bool          `yaml:"versioned_documents"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			Transport: TransportHTTP,
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
		},
		DB: DBConfig{
			Path:         "sitesync.db",
			PollInterval: time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "sitesync:",
		},
		Postgres: PostgresConfig{
			Namespace: "default",
		},
		Local: LocalConfig{
			Dir:   "data",
			Watch: true,
		},
		Uploads: UploadsConfig{
			Dir:     "uploads",
			BaseURL: "/files",
			MaxSize: 25 << 20,
		},
		Auth: AuthConfig{
			AdminEmail: "christo@emgroup.co.nz",
			AdminName:  "Christo",
		},
		Workspace: WorkspaceConfig{
			Project:      "south-mall",
			WriteTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("SITESYNC_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = b
		return nil
	}

	setString("SITESYNC_SERVER_HOST", &cfg.Server.Host)
	if portStr := os.Getenv("SITESYNC_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid SITESYNC_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	setString("SITESYNC_TRANSPORT", &cfg.Server.Transport)
	setString("SITESYNC_ACCESS_KEY", &cfg.Server.AccessKey)
	setString("SITESYNC_STORE_BACKEND", &cfg.Store.Backend)
	setString("SITESYNC_DB_PATH", &cfg.DB.Path)
	setString("SITESYNC_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SITESYNC_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("SITESYNC_POSTGRES_DSN", &cfg.Postgres.DSN)
	setString("SITESYNC_LOCAL_DIR", &cfg.Local.Dir)
	setString("SITESYNC_UPLOADS_DIR", &cfg.Uploads.Dir)
	setString("SITESYNC_UPLOADS_BASE_URL", &cfg.Uploads.BaseURL)
	setString("SITESYNC_ADMIN_EMAIL", &cfg.Auth.AdminEmail)
	setString("SITESYNC_USER_EMAIL", &cfg.Auth.DefaultEmail)
	setString("SITESYNC_PROJECT", &cfg.Workspace.Project)
	setString("SITESYNC_LOG_LEVEL", &cfg.Log.Level)
	if err := setBool("SITESYNC_OPTIMISTIC", &cfg.Workspace.Optimistic); err != nil {
		return err
	}
	if err := setBool("SITESYNC_VERSIONED_DOCUMENTS", &cfg.Workspace.VersionedDocuments); err != nil {
		return err
	}
	return nil
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendLocal, BackendRedis:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres backend requires postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q", c.Server.Transport)
	}
	if c.Workspace.Project == "" {
		return fmt.Errorf("workspace.project is required")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
