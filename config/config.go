package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envconfig строит ключ как PREFIX_<секция>_<тег>:
// CLASSROOM_HTTP_ADDR, CLASSROOM_TOKEN_APP_CERTIFICATE и т.д.
type HTTP struct {
	Addr string `yaml:"addr" envconfig:"ADDR"`
}

type Relay struct {
	Addr       string `yaml:"addr" envconfig:"ADDR"`
	SendBuffer int    `yaml:"sendBuffer" envconfig:"SEND_BUFFER"`
}

type Token struct {
	AppID          string `yaml:"appId" envconfig:"APP_ID"`
	AppCertificate string `yaml:"appCertificate" envconfig:"APP_CERTIFICATE"`
	TTL            string `yaml:"ttl" envconfig:"TTL"` // например "1h"
}

type Logging struct {
	Env       string `yaml:"env" envconfig:"ENV"`             // dev|stage|prod
	Service   string `yaml:"service" envconfig:"SERVICE"`     // classroom-service
	Version   string `yaml:"version" envconfig:"VERSION"`     // v0.1.0
	Backend   string `yaml:"backend" envconfig:"BACKEND"`     // std|zap
	AddSource bool   `yaml:"addSource" envconfig:"ADDSOURCE"` // false|true
	Debug     bool   `yaml:"debug" envconfig:"DEBUG"`         // false|true
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Relay   Relay   `yaml:"relay"`
	Token   Token   `yaml:"token"`
	Logging Logging `yaml:"logging"`
}

// LoadConfig читает YAML по CONFIG_PATH, затем накатывает overrides из
// окружения (префикс CLASSROOM_).
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// конфиг-файл опционален: дефолты + env
	default:
		return nil, err
	}

	if err := envconfig.Process("classroom", &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":3000"
	}
	if c.Relay.Addr == "" {
		c.Relay.Addr = ":8081"
	}
	if c.HTTP.Addr == c.Relay.Addr {
		return errors.New("http.addr and relay.addr must differ")
	}
	if c.Relay.SendBuffer < 0 {
		return errors.New("relay.sendBuffer must be >= 0")
	}
	// установка дефолтов, если значения не указаны
	if c.Relay.SendBuffer == 0 {
		c.Relay.SendBuffer = 64
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "classroom-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Token.TTL == "" {
		c.Token.TTL = "1h"
	}
	return nil
}

// TokenTTL парсит token.ttl; на мусор отвечает дефолтным часом.
func (c *Config) TokenTTL() time.Duration {
	return parseDurationOr(time.Hour, c.Token.TTL)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
