package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// CHATDESK_BASIC_CONFIG_SERVER_ADDRESS.
const EnvPrefix = "CHATDESK"

// Config represents runtime configuration for the client.
type Config struct {
	BasicConfig BasicConfig               `mapstructure:"basic_config" toml:"basic_config"`
	Storage     StorageConfig             `mapstructure:"storage" toml:"storage"`
	Databases   map[string]DatabaseConfig `mapstructure:"databases" toml:"databases"`
	Redis       RedisConfig               `mapstructure:"redis" toml:"redis"`
	Providers   map[string]ProviderConfig `mapstructure:"providers" toml:"providers"`
	Capture     CaptureConfig             `mapstructure:"capture" toml:"capture"`
	Log         LogConfig                 `mapstructure:"log" toml:"log"`
}

type BasicConfig struct {
	ServerAddress string `mapstructure:"server_address" toml:"server_address"`
	// APIToken guards the local API. Empty means a token is generated at start.
	APIToken string `mapstructure:"api_token" toml:"api_token"`
	// StreamTimeout bounds one send cycle, in seconds.
	StreamTimeout int    `mapstructure:"stream_timeout" toml:"stream_timeout"`
	DataDir       string `mapstructure:"data_dir" toml:"data_dir"`
}

// StorageConfig selects the durable backend of the chat state.
type StorageConfig struct {
	// Backend is one of sqlite3, sqlite, mysql, redis, file, memory.
	Backend   string `mapstructure:"backend" toml:"backend"`
	Namespace string `mapstructure:"namespace" toml:"namespace"`
	FilePath  string `mapstructure:"file_path" toml:"file_path"`
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn" toml:"dsn,omitempty"`
	Host     string `mapstructure:"host" toml:"host,omitempty"`
	Port     int    `mapstructure:"port" toml:"port,omitempty"`
	Username string `mapstructure:"username" toml:"username,omitempty"`
	Password string `mapstructure:"password" toml:"password,omitempty"`
	DBName   string `mapstructure:"dbname" toml:"dbname,omitempty"`
	Params   string `mapstructure:"params" toml:"params,omitempty"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host" toml:"host"`
	Port     int    `mapstructure:"port" toml:"port"`
	Username string `mapstructure:"username" toml:"username,omitempty"`
	Password string `mapstructure:"password" toml:"password,omitempty"`
	DB       int    `mapstructure:"db" toml:"db"`
}

// ProviderConfig overrides the built-in endpoint of a provider.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url" toml:"base_url,omitempty"`
	// Native switches gemini to the genai transport.
	Native bool `mapstructure:"native" toml:"native,omitempty"`
}

type CaptureConfig struct {
	// Command prints a PNG screenshot of the whole screen on stdout.
	Command []string `mapstructure:"command" toml:"command"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// StreamTimeout returns the send cycle timeout as a duration.
func (c *Config) StreamTimeout() time.Duration {
	if c.BasicConfig.StreamTimeout <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.BasicConfig.StreamTimeout) * time.Second
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress: "127.0.0.1:8090",
			StreamTimeout: 120,
			DataDir:       dataDir,
		},
		Storage: StorageConfig{
			Backend:   "sqlite3",
			Namespace: "chat-storage",
			FilePath:  filepath.Join(dataDir, "chat-storage.json"),
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(dataDir, "chatdesk.db")},
			"sqlite":  {DSN: filepath.Join(dataDir, "chatdesk.db")},
			"mysql": {
				Host:     "127.0.0.1",
				Port:     3306,
				Username: "chatdesk",
				DBName:   "chatdesk",
				Params:   "parseTime=true&charset=utf8mb4",
			},
		},
		Redis: RedisConfig{Host: "127.0.0.1", Port: 6379},
		Providers: map[string]ProviderConfig{
			"gemini": {},
		},
		Capture: CaptureConfig{Command: defaultCaptureCommand()},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultDataDir is the per-user directory holding local state.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(dir, "chatdesk")
}

// DefaultPath is where init writes the config file.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

func defaultCaptureCommand() []string {
	return []string{"import", "-window", "root", "png:-"}
}

// Load reads configuration from path. A missing file yields the defaults;
// environment variables override both.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDataDir())
	}
	return v
}

func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("basic_config.server_address", def.BasicConfig.ServerAddress)
	v.SetDefault("basic_config.api_token", def.BasicConfig.APIToken)
	v.SetDefault("basic_config.stream_timeout", def.BasicConfig.StreamTimeout)
	v.SetDefault("basic_config.data_dir", def.BasicConfig.DataDir)
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.namespace", def.Storage.Namespace)
	v.SetDefault("storage.file_path", def.Storage.FilePath)
	for name, db := range def.Databases {
		prefix := "databases." + name + "."
		v.SetDefault(prefix+"dsn", db.DSN)
		v.SetDefault(prefix+"host", db.Host)
		v.SetDefault(prefix+"port", db.Port)
		v.SetDefault(prefix+"username", db.Username)
		v.SetDefault(prefix+"password", db.Password)
		v.SetDefault(prefix+"dbname", db.DBName)
		v.SetDefault(prefix+"params", db.Params)
	}
	v.SetDefault("redis.host", def.Redis.Host)
	v.SetDefault("redis.port", def.Redis.Port)
	v.SetDefault("redis.db", def.Redis.DB)
	v.SetDefault("capture.command", def.Capture.Command)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if cfg.Databases == nil {
		cfg.Databases = map[string]DatabaseConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(v.ConfigFileUsed())
	return &cfg, nil
}

var backends = map[string]bool{
	"sqlite3": true,
	"sqlite":  true,
	"mysql":   true,
	"redis":   true,
	"file":    true,
	"memory":  true,
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	backend := strings.ToLower(c.Storage.Backend)
	if !backends[backend] {
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	c.Storage.Backend = backend
	if c.Storage.Namespace == "" {
		return fmt.Errorf("storage.namespace must be configured")
	}
	return nil
}

// resolvePaths makes relative file locations relative to the config file.
func (c *Config) resolvePaths(configFile string) {
	if configFile == "" {
		return
	}
	base := filepath.Dir(configFile)
	abs := func(p string) string {
		if p == "" || p == ":memory:" || filepath.IsAbs(p) || strings.HasPrefix(p, "file:") {
			return p
		}
		return filepath.Join(base, p)
	}
	c.BasicConfig.DataDir = abs(c.BasicConfig.DataDir)
	c.Storage.FilePath = abs(c.Storage.FilePath)
	for name, db := range c.Databases {
		if name == "sqlite3" || name == "sqlite" {
			db.DSN = abs(db.DSN)
			c.Databases[name] = db
		}
	}
}
