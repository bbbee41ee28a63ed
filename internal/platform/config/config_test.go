package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":    "postgres://localhost/tindahan",
		"AUTH_JWT_SECRET": "dev-secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Shipping.BaseRate != 5000 || cfg.Shipping.PerKmRate != 500 || cfg.Shipping.PrioritySurcharge != 10000 {
		t.Errorf("unexpected shipping tariffs: %+v", cfg.Shipping)
	}
	if cfg.Shipping.WarehouseLat != 14.5995 || cfg.Shipping.WarehouseLng != 120.9842 {
		t.Errorf("unexpected warehouse origin: %+v", cfg.Shipping)
	}
	if cfg.Redis.VoucherSlotTTL != 30*time.Minute {
		t.Errorf("unexpected voucher slot ttl: %s", cfg.Redis.VoucherSlotTTL)
	}
	if cfg.Gateway.Enabled() {
		t.Errorf("expected gateway disabled by default")
	}
	if cfg.Gateway.Timeout != 30*time.Second {
		t.Errorf("unexpected gateway timeout: %s", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.Currency != "PHP" {
		t.Errorf("unexpected currency %s", cfg.Gateway.Currency)
	}
	if cfg.Events.Driver != "log" {
		t.Errorf("expected log events driver, got %s", cfg.Events.Driver)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
	if cfg.RateLimits.VoucherApplyPerMinute != defaultVoucherApplyLimit {
		t.Errorf("unexpected voucher rate limit: %d", cfg.RateLimits.VoucherApplyPerMinute)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"APP_ENV":                  "PROD",
		"SERVER_PORT":              "9090",
		"SERVER_READ_TIMEOUT":      "20s",
		"DATABASE_URL":             "secret://db/url",
		"DATABASE_MAX_CONNS":       "25",
		"AUTH_JWT_SECRET":          "sm://auth/jwt",
		"PAYMENT_GATEWAY_PROVIDER": "Stripe",
		"PAYMENT_STRIPE_API_KEY":   "secret://stripe/api",
		"WEBHOOK_SIGNING_SECRET":   "secret://webhooks/payments",
		"SHIPPING_BASE_RATE":       "75.5",
		"EVENTS_DRIVER":            "kafka",
		"EVENTS_KAFKA_BROKERS":     "k1:9092, k2:9092",
	}

	resolved := map[string]string{}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		resolved[ref] = "value-for-" + ref
		return " value-for-" + ref + " ", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected lowercased environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Database.URL != "value-for-secret://db/url" {
		t.Errorf("expected resolved database url, got %s", cfg.Database.URL)
	}
	if cfg.Database.MaxConns != 25 {
		t.Errorf("unexpected max conns %d", cfg.Database.MaxConns)
	}
	if cfg.Auth.JWTSecret != "value-for-secret://auth/jwt" {
		t.Errorf("expected sm:// to be normalised, got %s", cfg.Auth.JWTSecret)
	}
	if !cfg.Gateway.Enabled() || cfg.Gateway.Provider != "stripe" {
		t.Errorf("expected stripe gateway, got %+v", cfg.Gateway)
	}
	if cfg.Shipping.BaseRate != 7550 {
		t.Errorf("expected base rate 7550 centavos, got %d", cfg.Shipping.BaseRate)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Events.KafkaBrokers)
	}
	if len(resolved) != 4 {
		t.Errorf("expected 4 secrets resolved, got %v", resolved)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"PAYMENT_GATEWAY_PROVIDER": "stripe",
		"EVENTS_DRIVER":            "carrier-pigeon",
		"SHIPPING_PER_KM_RATE":     "five",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{
		"Auth.JWTSecret":         true,
		"Database.URL":           true,
		"Events.Driver":          true,
		"Gateway.StripeAPIKey":   true,
		"SHIPPING_PER_KM_RATE":   true,
		"Webhooks.SigningSecret": true,
	}
	fields := validationErr.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for _, field := range fields {
		if !want[field] {
			t.Errorf("unexpected field %s", field)
		}
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := baseEnv()
	env["AUTH_JWT_SECRET"] = "secret://auth/jwt"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
	if secretErr.Error() == "" || secretErr.Ref != "secret://auth/jwt" {
		t.Fatalf("unexpected secret error %+v", secretErr)
	}
}

func TestLoadPrecedenceWithDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport SERVER_PORT=7000\nDATABASE_URL=\"postgres://dotenv/db\"\nAUTH_JWT_SECRET=dotenv\nREDIS_DB=3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"SERVER_PORT": "7100"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7100" {
		t.Errorf("expected env map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://dotenv/db" {
		t.Errorf("expected quoted dotenv value to be unwrapped, got %s", cfg.Database.URL)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("expected redis db 3, got %d", cfg.Redis.DB)
	}

	value, ok, err := Lookup("AUTH_JWT_SECRET", WithEnvFile(path), WithoutSystemEnv())
	if err != nil || !ok || value != "dotenv" {
		t.Errorf("Lookup returned %q %v %v", value, ok, err)
	}
}
