// Package config loads idmap settings with viper.
//
// Precedence, highest first: command-line flags, IDMAP_* environment
// variables, the config file, defaults. The config file is --config when
// given, otherwise idmap.yaml (or idmap.yml) found by walking up from the
// working directory to the enclosing repository root.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const maxWalkDepth = 25

// FileNames are the config file names tried during discovery, in order.
var FileNames = []string{"idmap.yaml", "idmap.yml"}

// Config is the idmap configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
	Log         LogConfig         `mapstructure:"log"`
}

// DatabaseConfig holds connection settings. URL wins over the discrete
// fields when set.
type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	Driver      string `mapstructure:"driver"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Name        string `mapstructure:"name"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	SSLMode     string `mapstructure:"sslmode"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// DefinitionsConfig locates the migration definition files.
type DefinitionsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FlagKeys maps command-line flag names onto config keys.
var FlagKeys = map[string]string{
	"db":          "database.url",
	"prefix":      "database.table_prefix",
	"definitions": "definitions.dir",
	"log-level":   "log.level",
}

// Load discovers and loads the configuration. flags may be nil; flags named
// in FlagKeys override every other source when set.
//
// Returns the config, the path of the config file used (empty if none) and
// any error.
func Load(explicitPath string, flags *pflag.FlagSet) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IDMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, "", fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("getting cwd: %w", err)
	}
	configPath, err := findConfigFile(explicitPath, cwd)
	if err != nil {
		return nil, "", err
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Relative definition dirs in a config file are relative to that file.
	if configPath != "" && !filepath.IsAbs(cfg.Definitions.Dir) && !setOutsideFile(v, flags, "definitions.dir") {
		cfg.Definitions.Dir = filepath.Join(filepath.Dir(configPath), cfg.Definitions.Dir)
	}
	return &cfg, configPath, nil
}

func setOutsideFile(v *viper.Viper, flags *pflag.FlagSet, key string) bool {
	if _, ok := os.LookupEnv("IDMAP_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); ok {
		return true
	}
	if flags == nil {
		return false
	}
	for name, k := range FlagKeys {
		if k == key {
			if f := flags.Lookup(name); f != nil && f.Changed {
				return true
			}
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "idmap.db")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.table_prefix", "")

	v.SetDefault("definitions.dir", "migrations")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// findConfigFile returns explicitPath when it exists, otherwise walks up
// from dir looking for one of FileNames, stopping at a .git entry or after
// maxWalkDepth levels. It returns "" when nothing is found.
func findConfigFile(explicitPath, dir string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// DSN returns the database URL. If database.url is set it is returned
// directly; otherwise a URL is built from the discrete fields.
func (c *Config) DSN() (string, error) {
	db := c.Database
	if db.URL != "" {
		return db.URL, nil
	}

	switch db.Driver {
	case "sqlite", "sqlite3":
		if db.Name == "" {
			return "", fmt.Errorf("database.name is required for sqlite")
		}
		return "sqlite://" + db.Name, nil
	case "mysql", "postgres", "postgresql", "pgx":
	default:
		return "", fmt.Errorf("unknown database.driver %q", db.Driver)
	}

	if db.Host == "" {
		return "", fmt.Errorf("database.host is required when database.url is not set")
	}
	if db.Name == "" {
		return "", fmt.Errorf("database.name is required when database.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("database.user is required when database.url is not set")
	}

	port := db.Port
	if port == 0 {
		port = 5432
		if db.Driver == "mysql" {
			port = 3306
		}
	}
	u := &url.URL{
		Scheme: db.Driver,
		Host:   fmt.Sprintf("%s:%d", db.Host, port),
		Path:   "/" + db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}
	if db.SSLMode != "" && db.Driver != "mysql" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// SlogLevel parses log.level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
