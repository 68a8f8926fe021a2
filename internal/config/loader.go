package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "VAULTFS"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envFile    string
	v          *viper.Viper
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
		v:          viper.New(),
	}
}

// SetEnvFile changes the dotenv file read before the environment is consulted.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// Load reads configuration from defaults, file, and environment.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDotenv(); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	l.setDefaults(DefaultConfig())

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.v.SetConfigName("vaultfs")
		for _, dir := range l.defaultDirs() {
			l.v.AddConfigPath(dir)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", l.v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// loadDotenv exports variables from the env file without overriding the
// process environment.
func (l *Loader) loadDotenv() error {
	if l.envFile == "" {
		return nil
	}
	if _, err := os.Stat(l.envFile); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(l.envFile)
}

// setDefaults registers every key so environment overrides are recognized.
func (l *Loader) setDefaults(cfg *Config) {
	l.v.SetDefault("storage.vault_root", cfg.Storage.VaultRoot)
	l.v.SetDefault("storage.db_path", cfg.Storage.DBPath)
	l.v.SetDefault("storage.driver", cfg.Storage.Driver)
	l.v.SetDefault("storage.backend", cfg.Storage.Backend)
	l.v.SetDefault("storage.max_file_size", cfg.Storage.MaxFileSize)
	l.v.SetDefault("storage.s3.bucket", cfg.Storage.S3.Bucket)
	l.v.SetDefault("storage.s3.prefix", cfg.Storage.S3.Prefix)
	l.v.SetDefault("storage.s3.region", cfg.Storage.S3.Region)
	l.v.SetDefault("crypto.kdf_iterations", cfg.Crypto.KDFIterations)
	l.v.SetDefault("crypto.blob_suffix", cfg.Crypto.BlobSuffix)
	l.v.SetDefault("log.level", cfg.Log.Level)
	l.v.SetDefault("log.format", cfg.Log.Format)
	l.v.SetDefault("log.file", cfg.Log.File)
}

// defaultDirs returns default config file locations.
func (l *Loader) defaultDirs() []string {
	dirs := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "vaultfs"),
			filepath.Join(homeDir, ".vaultfs"),
		)
	}

	return dirs
}

// SaveExample writes an example config file.
func SaveExample(path string) error {
	cfg := DefaultConfig()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
