package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml plus an optional per-environment overlay and
// applies environment variable overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries the usual .env locations so tests and the binary behave
// the same regardless of working directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// expandEnvVars resolves ${VAR} placeholders inside string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		if strVal, ok := v.Get(key).(string); ok {
			if strings.Contains(strVal, "${") {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideFromEnv fills credentials from plain environment variables when the
// config file leaves them empty. SOAP_PASSWORD_URL_ENCODE carries a URL-encoded
// password, matching how the upstream service distributes it.
func overrideFromEnv(cfg *Config) {
	if cfg.SOAP.Username == "" {
		if val := os.Getenv("SOAP_USERNAME"); val != "" {
			cfg.SOAP.Username = val
		}
	}
	if cfg.SOAP.Password == "" {
		if val := os.Getenv("SOAP_PASSWORD_URL_ENCODE"); val != "" {
			if decoded, err := url.QueryUnescape(val); err == nil {
				cfg.SOAP.Password = decoded
			} else {
				cfg.SOAP.Password = val
			}
		}
	}
	if cfg.SOAP.URL == "" {
		if val := os.Getenv("SOAP_URL"); val != "" {
			cfg.SOAP.URL = val
		}
	}
	if cfg.Webhook.URL == "" {
		if val := os.Getenv("WEBHOOK_URL"); val != "" {
			cfg.Webhook.URL = val
		}
	}
	if val := os.Getenv("ENABLE_TEST_BYPASS"); val == "true" || val == "1" {
		cfg.Bypass.Enabled = true
	}
}
