package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	// PolicyVerifyFirst defers login until the email is verified:
	// register returns no token and login rejects unverified accounts.
	PolicyVerifyFirst = "verify_first"
	// PolicyImmediateToken issues a session token right at registration
	// and login has no verification gate.
	PolicyImmediateToken = "immediate_token"
)

type Config struct {
	Env                string `yaml:"env" env-default:"local"`
	RegistrationPolicy string `yaml:"registration_policy" env-default:"verify_first"`
	HTTPServer         `yaml:"http_server"`
	Postgres           `yaml:"postgres"`
	Redis              `yaml:"redis"`
	RabbitMQ           `yaml:"rabbitmq"`
	Tokens             `yaml:"tokens"`
	Verification       `yaml:"verification"`
	SMTP               `yaml:"smtp"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Addr     string `yaml:"addr" env-default:"localhost:6379"`
	Password string `yaml:"password" env-default:""`
	DB       int    `yaml:"db" env-default:"0"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env-required:"true"`
	QueueName string `yaml:"queue_name" env-required:"true"`
}

type Tokens struct {
	TokenTTL      time.Duration `yaml:"token_ttl" env-default:"720h"`
	PruneInterval time.Duration `yaml:"prune_interval" env-default:"1h"`
}

type Verification struct {
	CodeTTL      time.Duration `yaml:"code_ttl" env-default:"60m"`
	MaxAttempts  int           `yaml:"max_attempts" env-default:"5"`
	ResendLimit  int64         `yaml:"resend_limit" env-default:"3"`
	ResendWindow time.Duration `yaml:"resend_window" env-default:"15m"`
	// ExposeCodes echoes generated codes in API responses so the SPA can be
	// exercised without a mailbox. Forced off in prod at load time.
	ExposeCodes bool `yaml:"expose_codes" env-default:"false"`
}

type SMTP struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"587"`
	Username string `yaml:"username" env-default:""`
	Password string `yaml:"password" env-default:""`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist" + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	if err := cfg.validate(); err != nil {
		panic("Invalid config: " + err.Error())
	}

	if cfg.Env == "prod" {
		cfg.Verification.ExposeCodes = false
	}

	return &cfg
}

func (c *Config) validate() error {
	switch c.RegistrationPolicy {
	case PolicyVerifyFirst, PolicyImmediateToken:
		return nil
	default:
		return fmt.Errorf("unknown registration_policy %q", c.RegistrationPolicy)
	}
}
