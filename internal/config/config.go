// Package config loads daemon and CLI settings. Sources are applied in
// order: built-in defaults, a YAML file, a .env file, PQPORTAL_* environment
// variables. Commands apply explicitly set flags last.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pqportal/client-go/internal/crypto"
	"github.com/pqportal/client-go/keystore"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PQPORTAL_"

// DefaultPaths are tried in order when no config path is given.
var DefaultPaths = []string{"pqportal.yaml", "configs/pqportal.yaml"}

type Config struct {
	Crypto CryptoConfig `yaml:"crypto"`
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

type CryptoConfig struct {
	SignatureScheme string `yaml:"signatureScheme"`
	KEMScheme       string `yaml:"kemScheme"`
}

type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	ChallengeTTL time.Duration `yaml:"challengeTTL"`
	SessionTTL   time.Duration `yaml:"sessionTTL"`
	RateLimit    float64       `yaml:"rateLimit"`
	RateBurst    int           `yaml:"rateBurst"`
	Metrics      *bool         `yaml:"metrics"`
	Issuer       string        `yaml:"issuer"`
}

type ClientConfig struct {
	ServiceURL          string        `yaml:"serviceURL"`
	KeyStore            string        `yaml:"keyStore"`
	KeyDir              string        `yaml:"keyDir"`
	KeyringBackends     []string      `yaml:"keyringBackends"`
	VerificationTimeout time.Duration `yaml:"verificationTimeout"`
	SessionTTL          time.Duration `yaml:"sessionTTL"`
	Timeout             time.Duration `yaml:"timeout"`
	Retries             *int          `yaml:"retries"`

	// Passphrase unlocks encrypted key stores. It is read from the
	// environment only, never from the YAML file.
	Passphrase string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	metrics := true
	retries := 3
	return Config{
		Crypto: CryptoConfig{
			SignatureScheme: crypto.DefaultSignatureScheme,
			KEMScheme:       crypto.DefaultKEMScheme,
		},
		Server: ServerConfig{
			Listen:       "127.0.0.1:8088",
			ChallengeTTL: 2 * time.Minute,
			SessionTTL:   15 * time.Minute,
			RateLimit:    1,
			RateBurst:    5,
			Metrics:      &metrics,
			Issuer:       "pqportal-identityd",
		},
		Client: ClientConfig{
			ServiceURL:          "http://127.0.0.1:8088",
			KeyStore:            "file",
			KeyDir:              defaultKeyDir(),
			VerificationTimeout: 30 * time.Second,
			SessionTTL:          15 * time.Minute,
			Timeout:             30 * time.Second,
			Retries:             &retries,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

func defaultKeyDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".pqportal/keys"
	}
	return dir + "/pqportal/keys"
}

// Load builds the configuration. An explicit path must exist; otherwise
// DefaultPaths are tried and a missing file is not an error. envFile is
// loaded with godotenv before overrides are applied; variables already set
// in the process environment win over the file.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	candidates := DefaultPaths
	if path != "" {
		candidates = []string{path}
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			continue
		}
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", p, err)
		}
		Merge(&cfg, parsed)
		break
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := ApplyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Merge copies every set field of src over dst.
func Merge(dst *Config, src Config) {
	setString(&dst.Crypto.SignatureScheme, src.Crypto.SignatureScheme)
	setString(&dst.Crypto.KEMScheme, src.Crypto.KEMScheme)

	setString(&dst.Server.Listen, src.Server.Listen)
	setDuration(&dst.Server.ChallengeTTL, src.Server.ChallengeTTL)
	setDuration(&dst.Server.SessionTTL, src.Server.SessionTTL)
	if src.Server.RateLimit != 0 {
		dst.Server.RateLimit = src.Server.RateLimit
	}
	if src.Server.RateBurst != 0 {
		dst.Server.RateBurst = src.Server.RateBurst
	}
	if src.Server.Metrics != nil {
		dst.Server.Metrics = src.Server.Metrics
	}
	setString(&dst.Server.Issuer, src.Server.Issuer)

	setString(&dst.Client.ServiceURL, src.Client.ServiceURL)
	setString(&dst.Client.KeyStore, src.Client.KeyStore)
	setString(&dst.Client.KeyDir, src.Client.KeyDir)
	if src.Client.KeyringBackends != nil {
		dst.Client.KeyringBackends = src.Client.KeyringBackends
	}
	setDuration(&dst.Client.VerificationTimeout, src.Client.VerificationTimeout)
	setDuration(&dst.Client.SessionTTL, src.Client.SessionTTL)
	setDuration(&dst.Client.Timeout, src.Client.Timeout)
	if src.Client.Retries != nil {
		dst.Client.Retries = src.Client.Retries
	}

	setString(&dst.Log.Level, src.Log.Level)
	setString(&dst.Log.Format, src.Log.Format)
}

// ApplyEnvOverrides applies PQPORTAL_* variables. Unparseable values are
// errors rather than silently ignored.
func ApplyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := envString(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := envString(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("SIGNATURE_SCHEME", &cfg.Crypto.SignatureScheme)
	str("KEM_SCHEME", &cfg.Crypto.KEMScheme)

	str("LISTEN", &cfg.Server.Listen)
	dur("CHALLENGE_TTL", &cfg.Server.ChallengeTTL)
	dur("SERVER_SESSION_TTL", &cfg.Server.SessionTTL)
	if v := envString("RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err))
		} else {
			cfg.Server.RateLimit = f
		}
	}
	if v := envString("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_BURST: %w", EnvPrefix, err))
		} else {
			cfg.Server.RateBurst = n
		}
	}
	if v := envString("METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMETRICS: %w", EnvPrefix, err))
		} else {
			cfg.Server.Metrics = &b
		}
	}
	str("ISSUER", &cfg.Server.Issuer)

	str("SERVICE_URL", &cfg.Client.ServiceURL)
	str("KEYSTORE", &cfg.Client.KeyStore)
	str("KEY_DIR", &cfg.Client.KeyDir)
	str("KEY_PASSPHRASE", &cfg.Client.Passphrase)
	if v := envString("KEYRING_BACKENDS"); v != "" {
		cfg.Client.KeyringBackends = splitCSV(v)
	}
	dur("VERIFICATION_TIMEOUT", &cfg.Client.VerificationTimeout)
	dur("SESSION_TTL", &cfg.Client.SessionTTL)
	dur("TIMEOUT", &cfg.Client.Timeout)
	if v := envString("RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRETRIES: %w", EnvPrefix, err))
		} else {
			cfg.Client.Retries = &n
		}
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	return errors.Join(errs...)
}

// Validate reports settings no component could run with.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(crypto.SupportedSignatureSchemes(), c.Crypto.SignatureScheme) {
		errs = append(errs, fmt.Errorf("unsupported signature scheme %q", c.Crypto.SignatureScheme))
	}
	if !slices.Contains(crypto.SupportedKEMSchemes(), c.Crypto.KEMScheme) {
		errs = append(errs, fmt.Errorf("unsupported KEM scheme %q", c.Crypto.KEMScheme))
	}
	if !slices.Contains(keystore.Backends(), c.Client.KeyStore) {
		errs = append(errs, fmt.Errorf("unknown key store %q (have %s)", c.Client.KeyStore, strings.Join(keystore.Backends(), ", ")))
	}
	if c.Server.ChallengeTTL <= 0 || c.Server.SessionTTL <= 0 {
		errs = append(errs, errors.New("server TTLs must be positive"))
	}
	if c.Client.VerificationTimeout <= 0 {
		errs = append(errs, errors.New("verification timeout must be positive"))
	}
	if c.Client.Retries != nil && *c.Client.Retries < 0 {
		errs = append(errs, errors.New("retries must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// KeyStoreConfig returns the settings for keystore.OpenBackend.
func (c ClientConfig) KeyStoreConfig() keystore.Config {
	return keystore.Config{
		Dir:             c.KeyDir,
		Passphrase:      c.Passphrase,
		KeyringBackends: c.KeyringBackends,
	}
}

// MetricsEnabled reports whether /metrics is served.
func (s ServerConfig) MetricsEnabled() bool {
	return s.Metrics == nil || *s.Metrics
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
