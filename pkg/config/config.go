// Package config loads the agent configuration from environment variables.
//
// All settings are read once at startup. Validation failures (unknown
// database scheme, malformed URLs, out-of-range port) are fatal: the process
// logs and exits rather than running half-configured.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the full agent configuration.
type Config struct {
	// Bind address of the HTTP server.
	Host string `mapstructure:"NSI_AURA_HOST" validate:"required"`
	Port int    `mapstructure:"NSI_AURA_PORT" validate:"gte=1,lte=65535"`

	// Client TLS material used to authenticate against the NSI control plane.
	Certificate string `mapstructure:"NSI_AURA_CERTIFICATE" validate:"required"`
	PrivateKey  string `mapstructure:"NSI_AURA_PRIVATE_KEY" validate:"required"`

	// Optional CA trust store override: a certificate bundle file or a
	// directory of certificates. Empty means the system pool.
	CACertificates string `mapstructure:"CA_CERTIFICATES"`

	// VerifyRequests disables server certificate verification when false.
	// Only meant for debugging.
	VerifyRequests bool `mapstructure:"VERIFY_REQUESTS"`

	// DatabaseURI selects the persistence backend: sqlite:// or postgresql://.
	DatabaseURI string `mapstructure:"DATABASE_URI" validate:"required"`

	// StaticDirectory holds the SOAP XML message templates.
	StaticDirectory string `mapstructure:"STATIC_DIRECTORY" validate:"required"`

	// Components of the externally reachable callback URL.
	NSAScheme     string `mapstructure:"NSA_SCHEME" validate:"oneof=http https"`
	NSAHost       string `mapstructure:"NSA_HOST" validate:"required"`
	NSAPort       string `mapstructure:"NSA_PORT" validate:"required"`
	NSAPathPrefix string `mapstructure:"NSA_PATH_PREFIX"`

	// NSI peer endpoints.
	ProviderURL string `mapstructure:"NSI_PROVIDER_URL" validate:"required,url"`
	ProviderID  string `mapstructure:"NSI_PROVIDER_ID" validate:"required"`
	DDSURL      string `mapstructure:"NSI_DDS_URL" validate:"required,url"`

	// Logging.
	SQLLogging bool   `mapstructure:"SQL_LOGGING"`
	LogLevel   string `mapstructure:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// envKeys lists the environment variables read at startup; they double as
// viper keys.
var envKeys = []string{
	"NSI_AURA_HOST",
	"NSI_AURA_PORT",
	"NSI_AURA_CERTIFICATE",
	"NSI_AURA_PRIVATE_KEY",
	"CA_CERTIFICATES",
	"VERIFY_REQUESTS",
	"DATABASE_URI",
	"STATIC_DIRECTORY",
	"NSA_SCHEME",
	"NSA_HOST",
	"NSA_PORT",
	"NSA_PATH_PREFIX",
	"NSI_PROVIDER_URL",
	"NSI_PROVIDER_ID",
	"NSI_DDS_URL",
	"SQL_LOGGING",
	"LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("NSI_AURA_HOST", "127.0.0.1")
	v.SetDefault("NSI_AURA_PORT", 8000)
	v.SetDefault("NSI_AURA_CERTIFICATE", "aura-certificate.pem")
	v.SetDefault("NSI_AURA_PRIVATE_KEY", "aura-private-key.pem")
	v.SetDefault("VERIFY_REQUESTS", true)
	v.SetDefault("DATABASE_URI", "sqlite://db/aura.db")
	v.SetDefault("STATIC_DIRECTORY", "static")
	v.SetDefault("NSA_SCHEME", "http")
	v.SetDefault("NSA_HOST", "localhost")
	v.SetDefault("NSA_PORT", "8000")
	v.SetDefault("NSA_PATH_PREFIX", "")
	v.SetDefault("NSI_PROVIDER_URL", "http://127.0.0.1:9000/nsi-v2/ConnectionServiceProvider")
	v.SetDefault("NSI_PROVIDER_ID", "urn:ogf:network:domain.example:2024:nsa")
	v.SetDefault("NSI_DDS_URL", "http://dds.domain.example/dds/")
	v.SetDefault("SQL_LOGGING", false)
	v.SetDefault("LOG_LEVEL", "INFO")
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for _, key := range envKeys {
		// BindEnv never fails with a non-empty key.
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints plus the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	parsed, err := url.Parse(c.DatabaseURI)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URI: %w", err)
	}
	switch parsed.Scheme {
	case "sqlite", "postgresql", "postgres":
	default:
		return fmt.Errorf("database engine not supported: %s", parsed.Scheme)
	}
	return nil
}

// NSABaseURL is the externally reachable base URL of this agent, built from
// the NSA_* parts. It always carries a trailing slash.
func (c *Config) NSABaseURL() string {
	base := fmt.Sprintf("%s://%s:%s%s", c.NSAScheme, c.NSAHost, c.NSAPort, c.NSAPathPrefix)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// CallbackURL is the reply-to address placed in every outbound NSI message.
func (c *Config) CallbackURL() string {
	return c.NSABaseURL() + "api/nsi/callback/"
}
