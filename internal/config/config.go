package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
)

type MySQLConfig struct {
	Dsn             string   `mapstructure:"dsn"`
	ReplicaDsns     []string `mapstructure:"replicaDsns"`
	TablePrefix     string   `mapstructure:"tablePrefix"`
	MaxIdleConns    int      `mapstructure:"maxIdleConns"`
	MaxOpenConns    int      `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int      `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int      `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type RateLimitConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MaxPerMin int  `mapstructure:"maxPerMin"`
	UseMemory bool `mapstructure:"useMemory"`
}

type Config struct {
	Debug        bool            `mapstructure:"debug"`
	BaseURL      string          `mapstructure:"baseURL"`
	MasterKey    string          `mapstructure:"masterKey"`
	ListenAddr   string          `mapstructure:"listenAddr"`
	AllowOrigins []string        `mapstructure:"allowOrigins"`
	Redis        RedisConfig     `mapstructure:"redis"`
	MySQL        MySQLConfig     `mapstructure:"mysql"`
	RateLimit    RateLimitConfig `mapstructure:"rateLimit"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.BaseURL == "" {
		return errors.New("baseURL is required")
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.MasterKey == "" {
		return errors.New("masterKey is required")
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxPerMin == 0 {
		c.RateLimit.MaxPerMin = 120
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
