package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/tanq16/offpack/internal/utils"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingStyleURL = errors.New("missing style URL")
	ErrMissingAPIKey   = errors.New("missing API key")
)

const (
	DefaultWorkers = 4
	DefaultTimeout = 60 * time.Second
)

// Config is read from an optional YAML file, then from the environment.
// Environment values win.
type Config struct {
	StyleURL string `yaml:"style_url" envconfig:"OFFPACK_STYLE_URL"`
	APIKey   string `yaml:"api_key"   envconfig:"OFFPACK_API_KEY"`
	StoreDir string `yaml:"store_dir" envconfig:"OFFPACK_STORE_DIR"`
	Workers  int    `yaml:"workers"   envconfig:"OFFPACK_WORKERS"`
	Debug    bool   `yaml:"debug"     envconfig:"OFFPACK_DEBUG"`

	Timeout       time.Duration `yaml:"timeout"        envconfig:"OFFPACK_HTTP_TIMEOUT"`
	KATimeout     time.Duration `yaml:"keep_alive"     envconfig:"OFFPACK_HTTP_KEEP_ALIVE"`
	UserAgent     string        `yaml:"user_agent"     envconfig:"OFFPACK_HTTP_USER_AGENT"`
	ProxyURL      string        `yaml:"proxy"          envconfig:"OFFPACK_HTTP_PROXY"`
	ProxyUsername string        `yaml:"proxy_username" envconfig:"OFFPACK_HTTP_PROXY_USERNAME"`
	ProxyPassword string        `yaml:"proxy_password" envconfig:"OFFPACK_HTTP_PROXY_PASSWORD"`
	Headers       []string      `yaml:"headers"        envconfig:"OFFPACK_HTTP_HEADERS"`
}

// Load reads file (if set), loads envFile into the environment (a missing
// env file is not an error) and applies OFFPACK_* variables on top.
func Load(file, envFile string) (Config, error) {
	var cfg Config
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("error loading env file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("error reading environment: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StoreDir == "" {
		c.StoreDir = defaultStoreDir()
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.KATimeout <= 0 {
		c.KATimeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = utils.ToolUserAgent
	}
}

func defaultStoreDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".offpack"
	}
	return filepath.Join(dir, "offpack")
}

// Validate checks what a download needs: a style and the key to fetch it.
func (c Config) Validate() error {
	if strings.TrimSpace(c.StyleURL) == "" {
		return ErrMissingStyleURL
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// SourceURL appends the API key to the style URL.
func (c Config) SourceURL() string {
	sep := "?"
	if strings.Contains(c.StyleURL, "?") {
		sep = "&"
	}
	return c.StyleURL + sep + "key=" + url.QueryEscape(c.APIKey)
}

func (c Config) HTTPClientConfig() utils.HTTPClientConfig {
	proxyURL, username, password := utils.SplitProxyAuth(c.ProxyURL, c.ProxyUsername, c.ProxyPassword)
	return utils.HTTPClientConfig{
		Timeout:        c.Timeout,
		KATimeout:      c.KATimeout,
		ProxyURL:       proxyURL,
		ProxyUsername:  username,
		ProxyPassword:  password,
		UserAgent:      c.UserAgent,
		Headers:        utils.ParseHeaderArgs(c.Headers),
		HighThreadMode: utils.HighThreadMode(c.Workers),
	}
}
