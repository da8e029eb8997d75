package billing

import (
	"context"
	"strings"
	"time"

	"github.com/farhadimrf/spotify-clone/internal/pkg/env"
	"github.com/go-playground/validator/v10"
)

const (
	defaultSiteURL         = "http://localhost:3000/"
	defaultProviderTimeout = 10 * time.Second
	defaultStoreTimeout    = 5 * time.Second
	defaultApplyTimeout    = 30 * time.Second
	defaultLockTTL         = 15 * time.Second

	LockBackendRedis  = "redis"
	LockBackendMemory = "memory"
)

// Config holds the runtime settings of the billing core.
type Config struct {
	StripeSecretKey   string        `validate:"required"`
	WebhookSecret     string        `validate:"required"`
	SiteURL           string        `validate:"required,url"`
	ProviderTimeout   time.Duration `validate:"gt=0"`
	StoreTimeout      time.Duration `validate:"gt=0"`
	ApplyTimeout      time.Duration `validate:"gt=0"`
	LockTTL           time.Duration `validate:"gt=0"`
	LockBackend       string        `validate:"oneof=redis memory"`
	RejectStaleEvents bool
}

// DefaultConfig returns a config with every timeout set. Secrets stay empty.
func DefaultConfig() Config {
	return Config{
		SiteURL:         defaultSiteURL,
		ProviderTimeout: defaultProviderTimeout,
		StoreTimeout:    defaultStoreTimeout,
		ApplyTimeout:    defaultApplyTimeout,
		LockTTL:         defaultLockTTL,
		LockBackend:     LockBackendRedis,
	}
}

// ConfigFromEnv reads the billing settings from the environment and validates them.
func ConfigFromEnv() (Config, error) {
	webhookSecret := strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET_LIVE", ""))
	if webhookSecret == "" {
		webhookSecret = strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	}

	cfg := Config{
		StripeSecretKey:   strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret:     webhookSecret,
		SiteURL:           NormalizeSiteURL(env.GetEnv("SITE_URL", "")),
		ProviderTimeout:   env.GetDuration("BILLING_PROVIDER_TIMEOUT", defaultProviderTimeout),
		StoreTimeout:      env.GetDuration("BILLING_STORE_TIMEOUT", defaultStoreTimeout),
		ApplyTimeout:      env.GetDuration("BILLING_APPLY_TIMEOUT", defaultApplyTimeout),
		LockTTL:           env.GetDuration("BILLING_LOCK_TTL", defaultLockTTL),
		LockBackend:       strings.ToLower(strings.TrimSpace(env.GetEnv("BILLING_LOCK_BACKEND", LockBackendRedis))),
		RejectStaleEvents: env.GetBool("BILLING_REJECT_STALE_EVENTS", false),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	v := validator.New()

	return v.Struct(c)
}

// NormalizeSiteURL forces a scheme and a trailing slash. Hosts without a
// scheme are assumed to be served over https.
func NormalizeSiteURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return defaultSiteURL
	}
	if !strings.Contains(url, "http") {
		url = "https://" + url
	}
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return url
}

// AccountURL is where users land after checkout and portal sessions.
func (c Config) AccountURL() string {
	return c.SiteURL + "account"
}

func (c Config) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundedContext(ctx, c.ProviderTimeout)
}

func (c Config) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundedContext(ctx, c.StoreTimeout)
}

func boundedContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
