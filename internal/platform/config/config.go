package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 45 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultEnvironment     = "local"

	defaultDBMaxConns = 10
	defaultDBMinConns = 1

	defaultSessionCartTTL = 7 * 24 * time.Hour
	defaultVoucherSlotTTL = 30 * time.Minute

	defaultGatewayTimeout        = 30 * time.Second
	defaultGatewayBreakerFailure = 5
	defaultGatewayBreakerOpen    = 30 * time.Second
	defaultCurrency              = "PHP"

	defaultShippingBaseRate  = "50.00"
	defaultShippingPerKmRate = "5.00"
	defaultShippingPriority  = "100.00"
	defaultWarehouseLat      = 14.5995
	defaultWarehouseLng      = 120.9842

	defaultEventsDriver = "log"

	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultWebhookClockSkew  = 5 * time.Minute
	defaultVoucherApplyLimit = 10
	defaultSecretsFallback   = ".secrets.local"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Log         LogConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Gateway     GatewayConfig
	Shipping    ShippingConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
	Webhooks    WebhookConfig
	RateLimits  RateLimitConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	PublicBaseURL   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig configures the base zap logger.
type LogConfig struct {
	Level       string
	Development bool
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
}

// RedisConfig configures the Redis client and the lifetime of keys it holds.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	SessionCartTTL time.Duration
	VoucherSlotTTL time.Duration
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// GatewayConfig configures the hosted payment page provider.
type GatewayConfig struct {
	Provider           string
	StripeAPIKey       string
	Currency           string
	Timeout            time.Duration
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
	RedirectMethods    []string
}

// Enabled reports whether a redirect gateway is configured.
func (g GatewayConfig) Enabled() bool {
	return strings.TrimSpace(g.Provider) != ""
}

// ShippingConfig holds shipping tariffs in minor currency units and the warehouse origin.
type ShippingConfig struct {
	BaseRate          int64
	PerKmRate         int64
	PrioritySurcharge int64
	WarehouseLat      float64
	WarehouseLng      float64
}

// EventsConfig selects and configures the domain event sink.
type EventsConfig struct {
	Driver          string
	PubSubProjectID string
	PubSubTopic     string
	KafkaBrokers    []string
	KafkaTopic      string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// WebhookConfig contains payment webhook verification parameters.
type WebhookConfig struct {
	SigningSecret string
	ClockSkew     time.Duration
}

// RateLimitConfig controls per-account throttling of sensitive endpoints.
type RateLimitConfig struct {
	VoucherApplyPerMinute int
}

// SecretsConfig configures secret:// resolution.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
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

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", redactSecretName(e.Ref), e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		if resolver != nil {
			o.secret = resolver
		}
	}
}

// Lookup returns a single raw value using the same precedence as Load. It is used to bootstrap
// the secret fetcher before the full configuration can be resolved.
func Lookup(key string, opts ...Option) (string, bool, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := newLookup(options)
	if err != nil {
		return "", false, err
	}
	value, ok := lookup(key)
	return value, ok, nil
}

// Load reads configuration with precedence dotenv < OS env < explicit env map, resolves secret
// references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}

	var invalid []string
	money := func(key, fallback string) int64 {
		value, err := moneyWithDefault(lookup, key, fallback)
		if err != nil {
			invalid = append(invalid, key)
		}
		return value
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "APP_ENV", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "SERVER_PORT", defaultPort),
			PublicBaseURL:   strings.TrimRight(stringWithDefault(lookup, "SERVER_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			ReadTimeout:     durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Log: LogConfig{
			Level:       stringWithDefault(lookup, "LOG_LEVEL", "info"),
			Development: boolWithDefault(lookup, "LOG_DEVELOPMENT", false),
		},
		Database: DatabaseConfig{
			URL:         stringWithDefault(lookup, "DATABASE_URL", ""),
			MaxConns:    intWithDefault(lookup, "DATABASE_MAX_CONNS", defaultDBMaxConns),
			MinConns:    intWithDefault(lookup, "DATABASE_MIN_CONNS", defaultDBMinConns),
			AutoMigrate: boolWithDefault(lookup, "DATABASE_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:           stringWithDefault(lookup, "REDIS_ADDR", "localhost:6379"),
			Password:       stringWithDefault(lookup, "REDIS_PASSWORD", ""),
			DB:             intWithDefault(lookup, "REDIS_DB", 0),
			SessionCartTTL: durationWithDefault(lookup, "REDIS_SESSION_CART_TTL", defaultSessionCartTTL),
			VoucherSlotTTL: durationWithDefault(lookup, "REDIS_VOUCHER_SLOT_TTL", defaultVoucherSlotTTL),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, "AUTH_JWT_SECRET", ""),
			Issuer:    stringWithDefault(lookup, "AUTH_JWT_ISSUER", ""),
			Audience:  stringWithDefault(lookup, "AUTH_JWT_AUDIENCE", ""),
		},
		Gateway: GatewayConfig{
			Provider:           strings.ToLower(stringWithDefault(lookup, "PAYMENT_GATEWAY_PROVIDER", "")),
			StripeAPIKey:       stringWithDefault(lookup, "PAYMENT_STRIPE_API_KEY", ""),
			Currency:           strings.ToUpper(stringWithDefault(lookup, "PAYMENT_CURRENCY", defaultCurrency)),
			Timeout:            durationWithDefault(lookup, "PAYMENT_GATEWAY_TIMEOUT", defaultGatewayTimeout),
			BreakerMaxFailures: intWithDefault(lookup, "PAYMENT_BREAKER_MAX_FAILURES", defaultGatewayBreakerFailure),
			BreakerOpenTimeout: durationWithDefault(lookup, "PAYMENT_BREAKER_OPEN_TIMEOUT", defaultGatewayBreakerOpen),
			RedirectMethods:    csvWithDefault(lookup, "PAYMENT_REDIRECT_METHODS", []string{"Maya", "Credit/Debit Card"}),
		},
		Shipping: ShippingConfig{
			BaseRate:          money("SHIPPING_BASE_RATE", defaultShippingBaseRate),
			PerKmRate:         money("SHIPPING_PER_KM_RATE", defaultShippingPerKmRate),
			PrioritySurcharge: money("SHIPPING_PRIORITY_SURCHARGE", defaultShippingPriority),
			WarehouseLat:      floatWithDefault(lookup, "SHIPPING_WAREHOUSE_LAT", defaultWarehouseLat),
			WarehouseLng:      floatWithDefault(lookup, "SHIPPING_WAREHOUSE_LNG", defaultWarehouseLng),
		},
		Events: EventsConfig{
			Driver:          strings.ToLower(stringWithDefault(lookup, "EVENTS_DRIVER", defaultEventsDriver)),
			PubSubProjectID: stringWithDefault(lookup, "EVENTS_PUBSUB_PROJECT_ID", ""),
			PubSubTopic:     stringWithDefault(lookup, "EVENTS_PUBSUB_TOPIC", "order-events"),
			KafkaBrokers:    csvWithDefault(lookup, "EVENTS_KAFKA_BROKERS", nil),
			KafkaTopic:      stringWithDefault(lookup, "EVENTS_KAFKA_TOPIC", "order-events"),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Webhooks: WebhookConfig{
			SigningSecret: stringWithDefault(lookup, "WEBHOOK_SIGNING_SECRET", ""),
			ClockSkew:     durationWithDefault(lookup, "WEBHOOK_CLOCK_SKEW", defaultWebhookClockSkew),
		},
		RateLimits: RateLimitConfig{
			VoucherApplyPerMinute: intWithDefault(lookup, "RATELIMIT_VOUCHER_APPLY_PER_MIN", defaultVoucherApplyLimit),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
	}

	secretFields := []*string{
		&cfg.Database.URL,
		&cfg.Redis.Password,
		&cfg.Auth.JWTSecret,
		&cfg.Gateway.StripeAPIKey,
		&cfg.Webhooks.SigningSecret,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLookup(options loaderOptions) (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
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
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config, invalid []string) error {
	fields := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		fields = append(fields, "Server.Port")
	}
	if cfg.Database.URL == "" {
		fields = append(fields, "Database.URL")
	}
	if cfg.Database.MaxConns <= 0 || cfg.Database.MinConns < 0 || cfg.Database.MinConns > cfg.Database.MaxConns {
		fields = append(fields, "Database.MaxConns")
	}
	if cfg.Redis.Addr == "" {
		fields = append(fields, "Redis.Addr")
	}
	if cfg.Redis.VoucherSlotTTL <= 0 {
		fields = append(fields, "Redis.VoucherSlotTTL")
	}
	if cfg.Auth.JWTSecret == "" {
		fields = append(fields, "Auth.JWTSecret")
	}
	switch cfg.Gateway.Provider {
	case "":
	case "stripe":
		if cfg.Gateway.StripeAPIKey == "" {
			fields = append(fields, "Gateway.StripeAPIKey")
		}
		if cfg.Webhooks.SigningSecret == "" {
			fields = append(fields, "Webhooks.SigningSecret")
		}
	default:
		fields = append(fields, "Gateway.Provider")
	}
	if cfg.Gateway.Timeout <= 0 {
		fields = append(fields, "Gateway.Timeout")
	}
	if cfg.Shipping.BaseRate < 0 || cfg.Shipping.PerKmRate < 0 || cfg.Shipping.PrioritySurcharge < 0 {
		fields = append(fields, "Shipping")
	}
	switch cfg.Events.Driver {
	case "log", "none":
	case "pubsub":
		if cfg.Events.PubSubProjectID == "" || cfg.Events.PubSubTopic == "" {
			fields = append(fields, "Events.PubSub")
		}
	case "kafka":
		if len(cfg.Events.KafkaBrokers) == 0 || cfg.Events.KafkaTopic == "" {
			fields = append(fields, "Events.Kafka")
		}
	default:
		fields = append(fields, "Events.Driver")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" || cfg.Idempotency.TTL <= 0 {
		fields = append(fields, "Idempotency")
	}

	if len(fields) > 0 {
		sort.Strings(fields)
		return &ValidationError{fields: fields}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
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
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// moneyWithDefault parses a decimal amount such as "50.00" into minor units (centavos).
func moneyWithDefault(lookup func(string) (string, bool), key, fallback string) (int64, error) {
	raw := stringWithDefault(lookup, key, fallback)
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}
