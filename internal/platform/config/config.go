package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile       = ".env"
	defaultPort          = "8080"
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 30 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	defaultEnvironment   = "local"
	defaultCurrency      = "EUR"
	defaultLocale        = "de-DE"
	defaultPayPalSandbox = true
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	PSP      PSPConfig
	Commerce CommerceConfig
	Features FeatureFlags
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PSPConfig collects credentials for payment providers.
type PSPConfig struct {
	StripeAPIKey    string
	StripeAccountID string
	PayPalClientID  string
	PayPalSandbox   bool
}

// CommerceConfig groups storefront pricing parameters.
type CommerceConfig struct {
	Currency            string
	Locale              string
	SupportedCurrencies []string
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnableCarrierProbe bool
	EnableKlarna       bool
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies explicit values taking precedence over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment, for tests.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load builds the Config with precedence: explicit env map > OS env > dotenv.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			Environment:  strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		PSP: PSPConfig{
			StripeAPIKey:    stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeAccountID: stringWithDefault(lookup, "API_PSP_STRIPE_ACCOUNT_ID", ""),
			PayPalClientID:  stringWithDefault(lookup, "API_PSP_PAYPAL_CLIENT_ID", ""),
			PayPalSandbox:   boolWithDefault(lookup, "API_PSP_PAYPAL_SANDBOX", defaultPayPalSandbox),
		},
		Commerce: CommerceConfig{
			Currency:            strings.ToUpper(stringWithDefault(lookup, "API_COMMERCE_CURRENCY", defaultCurrency)),
			Locale:              stringWithDefault(lookup, "API_COMMERCE_LOCALE", defaultLocale),
			SupportedCurrencies: csvWithDefault(lookup, "API_COMMERCE_SUPPORTED_CURRENCIES"),
		},
		Features: FeatureFlags{
			EnableCarrierProbe: boolWithDefault(lookup, "API_FEATURE_CARRIER_PROBE", false),
			EnableKlarna:       boolWithDefault(lookup, "API_FEATURE_KLARNA", true),
		},
	}

	if len(cfg.Commerce.SupportedCurrencies) == 0 {
		cfg.Commerce.SupportedCurrencies = []string{"EUR", "USD", "GBP", "CHF"}
	}
	for i, code := range cfg.Commerce.SupportedCurrencies {
		cfg.Commerce.SupportedCurrencies[i] = strings.ToUpper(strings.TrimSpace(code))
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var fields []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		fields = append(fields, "Server.Port")
	} else if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		fields = append(fields, "Server.Port")
	}
	if cfg.Server.ReadTimeout <= 0 {
		fields = append(fields, "Server.ReadTimeout")
	}
	if cfg.Server.WriteTimeout <= 0 {
		fields = append(fields, "Server.WriteTimeout")
	}
	if len(cfg.Commerce.Currency) != 3 {
		fields = append(fields, "Commerce.Currency")
	}
	supported := false
	for _, code := range cfg.Commerce.SupportedCurrencies {
		if code == cfg.Commerce.Currency {
			supported = true
			break
		}
	}
	if !supported {
		fields = append(fields, "Commerce.SupportedCurrencies")
	}

	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	value, ok := lookup(key)
	if !ok {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
