package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 5000
	DefaultCORSOrigin    = "http://localhost:3000"
	DefaultSessionSecret = "mysecret"
	DefaultMongoURI      = "mongodb://localhost:27017"
	DefaultDatabase      = "form_backend"
	DefaultUploadDir     = "uploads"
	DefaultLogLevel      = "info"

	UploadPrefix = "/uploads"
	AuthPrefix   = "/api/auth"
	FormPrefix   = "/api/form"

	production = "production"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port          int    `yaml:"port"`
	CORSOrigin    string `yaml:"cors_origin"`
	SessionSecret string `yaml:"session_secret"`
	Env           string `yaml:"env"`

	MongoURI string `yaml:"mongodb_uri"`
	Database string `yaml:"mongodb_database"`

	// JWTSecret signs bearer tokens. Empty means SessionSecret is used.
	JWTSecret string `yaml:"jwt_secret"`

	UploadDir      string `yaml:"upload_dir"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	Google Google `yaml:"google"`

	MetricsPort int    `yaml:"metrics_port"`
	LogLevel    string `yaml:"log_level"`
}

type Google struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

func Default() Config {
	return Config{
		Port:           DefaultPort,
		CORSOrigin:     DefaultCORSOrigin,
		SessionSecret:  DefaultSessionSecret,
		MongoURI:       DefaultMongoURI,
		Database:       DefaultDatabase,
		UploadDir:      DefaultUploadDir,
		MaxBodyBytes:   10 << 20,
		MaxUploadBytes: 5 << 20,
		Google: Google{
			RedirectURL: fmt.Sprintf("http://localhost:%d%s/google/callback", DefaultPort, AuthPrefix),
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins). A .env file in
// the working directory is loaded into the environment first when present.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	uploadSet := false

	if file == "" {
		file = os.Getenv("CONFIG_FILE")
	}
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", file, err)
		}
		var keys struct {
			MaxUploadBytes *int64 `yaml:"max_upload_bytes"`
		}
		if err := yaml.Unmarshal(b, &keys); err == nil && keys.MaxUploadBytes != nil {
			uploadSet = true
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv("MAX_UPLOAD_BYTES"); ok && v != "" {
		uploadSet = true
	}
	// A smaller body cap alone lowers the default upload cap with it.
	if !uploadSet && cfg.MaxUploadBytes > cfg.MaxBodyBytes {
		cfg.MaxUploadBytes = cfg.MaxBodyBytes
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.CORSOrigin, "CORS_ORIGIN")
	setString(&c.SessionSecret, "SESSION_SECRET")
	setString(&c.Env, "NODE_ENV")
	setString(&c.MongoURI, "MONGODB_URI")
	setString(&c.Database, "MONGODB_DATABASE")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.UploadDir, "UPLOAD_DIR")
	setString(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Google.RedirectURL, "GOOGLE_REDIRECT_URL")
	setString(&c.LogLevel, "LOG_LEVEL")

	if err := setInt(&c.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.MetricsPort, "METRICS_PORT"); err != nil {
		return err
	}
	if err := setInt64(&c.MaxBodyBytes, "MAX_BODY_BYTES"); err != nil {
		return err
	}
	return setInt64(&c.MaxUploadBytes, "MAX_UPLOAD_BYTES")
}

// Validate reports the first problem found, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("%w: metrics port %d out of range", ErrInvalid, c.MetricsPort)
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.Port {
		return fmt.Errorf("%w: metrics port must differ from port", ErrInvalid)
	}
	u, err := url.Parse(c.CORSOrigin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: cors origin %q is not an absolute URL", ErrInvalid, c.CORSOrigin)
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("%w: session secret is empty", ErrInvalid)
	}
	if c.MongoURI == "" || c.Database == "" {
		return fmt.Errorf("%w: mongodb uri and database are required", ErrInvalid)
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("%w: upload dir is empty", ErrInvalid)
	}
	if c.MaxBodyBytes <= 0 || c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: size limits must be positive", ErrInvalid)
	}
	if c.MaxUploadBytes > c.MaxBodyBytes {
		return fmt.Errorf("%w: max upload bytes exceeds max body bytes", ErrInvalid)
	}
	return nil
}

func (c *Config) Production() bool {
	return c.Env == production
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func (c *Config) TokenSecret() []byte {
	if c.JWTSecret != "" {
		return []byte(c.JWTSecret)
	}
	return []byte(c.SessionSecret)
}

func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}
