package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"securechat/internal/crypt"
)

type Config struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	Env             string        `envconfig:"ENV" default:"dev"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	EncryptionKey   string        `envconfig:"ENCRYPTION_KEY"`
	CipherScheme    string        `envconfig:"CIPHER_SCHEME" default:"xchacha20poly1305" validate:"oneof=xchacha20poly1305 openssl-aes"`
	StoreDriver     string        `envconfig:"STORE_DRIVER" default:"badger" validate:"oneof=badger mysql sqlite"`
	BadgerPath      string        `envconfig:"BADGER_PATH" default:"data/messages"`
	DSN             string        `envconfig:"DB_DSN" validate:"required_unless=StoreDriver badger"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"2s" validate:"gte=0"`
	MaxMessageLen   int           `envconfig:"MAX_MESSAGE_LENGTH" default:"4096" validate:"gte=0"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`

	// KeyFromFallback is set when ENCRYPTION_KEY was empty and
	// crypt.DefaultKey is in use.
	KeyFromFallback bool `ignored:"true"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if strings.TrimSpace(c.EncryptionKey) == "" {
		c.EncryptionKey = crypt.DefaultKey
		c.KeyFromFallback = true
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

func (c *Config) Addr() string { return ":" + c.Port }

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(out)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// LogSummary reports the loaded configuration without secrets.
func (c *Config) LogSummary(log logrus.FieldLogger) {
	log.WithFields(logrus.Fields{
		"env":    c.Env,
		"port":   c.Port,
		"store":  c.StoreDriver,
		"cipher": c.CipherScheme,
	}).Info("config loaded")
	if c.KeyFromFallback {
		log.Warn("ENCRYPTION_KEY is not set, using the built-in shared key; anyone with the source can read every message")
	}
}
