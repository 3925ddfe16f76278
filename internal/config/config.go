package config

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TURN holds relay server credentials handed to clients that cannot get a
// direct peer connection through.
type TURN struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Config struct {
	Port           string   `yaml:"port"`
	RedisAddr      string   `yaml:"redisAddr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	STUNServers    []string `yaml:"stunServers"`
	TURN           TURN     `yaml:"turn"`
}

// Load reads the optional YAML file named by CONFIG_PATH (default
// ./config/config.yaml, missing file is fine) and then applies environment
// overrides, so container deployments can run config-file-free.
func Load() (*Config, error) {
	cfg := &Config{}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	applyEnv(cfg)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("STUN_SERVERS"); v != "" {
		cfg.STUNServers = splitList(v)
	}
	if v := os.Getenv("TURN_URL"); v != "" {
		cfg.TURN.URL = v
	}
	if v := os.Getenv("TURN_USERNAME"); v != "" {
		cfg.TURN.Username = v
	}
	if v := os.Getenv("TURN_PASSWORD"); v != "" {
		cfg.TURN.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.STUNServers) == 0 {
		c.STUNServers = []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		}
	}
}

func (c *Config) validate() error {
	if c.TURN.URL != "" && c.TURN.Username == "" {
		return errors.New("turn.username is required when turn.url is set")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
