package config

import (
	"errors"
	"os"
	"strings"
	"time"

	pstrings "heimdall/pkg/platform/strings"
)

// ErrMissingAdminKey rejects startup without an admin token key. An empty
// HS256 key would verify tokens anyone can forge, and the admin API binds
// and revokes tags on a door.
var ErrMissingAdminKey = errors.New("HEIMDALL_ADMIN_JWT_KEY must be set")

// Config captures everything the controller needs from its environment.
// Zero values fall back to defaults suitable for a single-board controller
// with a local store and no shared cache.
type Config struct {
	// Addr is the admin/metrics HTTP listen address.
	Addr string
	// AdminJWTKey signs and verifies admin API bearer tokens.
	AdminJWTKey string

	// PostgresDSN selects the durable identity store. Empty means the
	// in-memory store (development and tests only; bindings do not survive
	// a restart).
	PostgresDSN string
	// RedisURL selects the shared resolve cache. Empty means the per-process
	// memory cache.
	RedisURL string

	// KafkaBrokers and KafkaTopic configure the audit event stream. Empty
	// brokers means audit events go to the store sink only.
	KafkaBrokers []string
	KafkaTopic   string

	// MembershipURL is the base URL of the membership-truth source. Empty
	// disables the background refresher; statuses then age until the grace
	// window closes the door.
	MembershipURL string

	// GraceWindow is how long a previously verified active status stays
	// usable when the membership-truth source is unreachable. Past the
	// window the controller fails closed.
	GraceWindow time.Duration
	// CacheFreshness is the local freshness window; cache entries older than
	// this are reloaded from the store on the next resolution.
	CacheFreshness time.Duration
	// StatusFreshness is how long an authoritative member status counts as
	// freshly verified before cached copies are served as cached-stale.
	StatusFreshness time.Duration
	// ResolveTimeout bounds a single access resolution end to end.
	ResolveTimeout time.Duration
	// RefreshInterval paces the background membership status refresher.
	RefreshInterval time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("HEIMDALL_ADDR", ":8080"),
		AdminJWTKey:     os.Getenv("HEIMDALL_ADMIN_JWT_KEY"),
		PostgresDSN:     os.Getenv("HEIMDALL_POSTGRES_DSN"),
		RedisURL:        os.Getenv("HEIMDALL_REDIS_URL"),
		KafkaTopic:      envOr("HEIMDALL_KAFKA_TOPIC", "heimdall.access-events"),
		MembershipURL:   os.Getenv("HEIMDALL_MEMBERSHIP_URL"),
		GraceWindow:     durationOr("HEIMDALL_GRACE_WINDOW", 24*time.Hour),
		CacheFreshness:  durationOr("HEIMDALL_CACHE_FRESHNESS", 5*time.Second),
		StatusFreshness: durationOr("HEIMDALL_STATUS_FRESHNESS", 30*time.Minute),
		ResolveTimeout:  durationOr("HEIMDALL_RESOLVE_TIMEOUT", 250*time.Millisecond),
		RefreshInterval: durationOr("HEIMDALL_REFRESH_INTERVAL", 15*time.Minute),
	}
	if brokers := os.Getenv("HEIMDALL_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = pstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

// Validate rejects configurations the controller must not start with.
func (c Config) Validate() error {
	if c.AdminJWTKey == "" {
		return ErrMissingAdminKey
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
