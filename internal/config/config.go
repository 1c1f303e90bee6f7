// Package config loads gateway configuration from the process environment,
// following the teacher's convention of small typed option structs built
// from os.Getenv at startup rather than a configuration framework.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-driven setting named in spec.md §6, plus
// the shutdown grace period and retry ceiling from §5/§4.10.
type Config struct {
	// MaxStreamingBufferBytes bounds the Streaming Parser's reassembly
	// buffer (spec.md §4.9, MAX_BUFFER_SIZE). Default 50 MiB.
	MaxStreamingBufferBytes int64

	// ForceDebugMode overrides per-request debug_mode when set.
	ForceDebugMode bool
	// NodeEnv holds NODE_ENV (default "production"). No component reads
	// it; error bodies are the same in every environment.
	NodeEnv string

	ImageSizeLimitFreeBytes int64
	ImageSizeLimitProBytes  int64

	// ShouldBillCancelledRequests toggles the global cancellation billing
	// policy (spec.md §4.11/§8 scenario 5).
	ShouldBillCancelledRequests bool

	// ShutdownGracePeriod bounds graceful drain before force-close
	// (spec.md §5, default 120s).
	ShutdownGracePeriod time.Duration

	// MaxRetries bounds C10's retry loop (spec.md §4.10, "small constant,
	// e.g. 3").
	MaxRetries int

	// UnaryTimeout / StreamingTimeout are the two deadline tiers from
	// spec.md §5 ("two tiers -- streaming deadline (longer) and unary
	// deadline (shorter)").
	UnaryTimeout     time.Duration
	StreamingTimeout time.Duration

	// KeepaliveInterval is loaded from KEEPALIVE_INTERVAL_SECONDS (default
	// 15s). The SSE writer does not read it: its `: ping` cadence is the
	// fixed keepaliveInterval constant (15s) in internal/httpapi/sse.go.
	KeepaliveInterval time.Duration

	// ProviderTokenPools maps provider id to its ordered environment
	// variable pool (spec.md §6: "<PROVIDER>_API_KEY, optionally suffixed
	// for round-robin").
	ProviderTokenPools map[string][]string
}

// Load reads Config from the process environment, applying the documented
// defaults for anything unset.
func Load() Config {
	c := Config{
		MaxStreamingBufferBytes:     envInt64("MAX_STREAMING_BUFFER_MB", 50) * 1024 * 1024,
		ForceDebugMode:              envBool("FORCE_DEBUG_MODE", false),
		NodeEnv:                     envString("NODE_ENV", "production"),
		ImageSizeLimitFreeBytes:     envInt64("IMAGE_SIZE_LIMIT_FREE_MB", 10) * 1024 * 1024,
		ImageSizeLimitProBytes:      envInt64("IMAGE_SIZE_LIMIT_PRO_MB", 100) * 1024 * 1024,
		ShouldBillCancelledRequests: envBool("SHOULD_BILL_CANCELLED_REQUESTS", false),
		ShutdownGracePeriod:         envDuration("SHUTDOWN_GRACE_PERIOD_SECONDS", 120*time.Second),
		MaxRetries:                  int(envInt64("MAX_RETRIES", 3)),
		UnaryTimeout:                envDuration("UNARY_TIMEOUT_SECONDS", 60*time.Second),
		StreamingTimeout:            envDuration("STREAMING_TIMEOUT_SECONDS", 300*time.Second),
		KeepaliveInterval:           envDuration("KEEPALIVE_INTERVAL_SECONDS", 15*time.Second),
	}
	c.ProviderTokenPools = loadTokenPools()
	return c
}

// loadTokenPools scans the environment for <PROVIDER>_API_KEY[_N] variables
// and groups them into ordered round-robin pools per provider.
func loadTokenPools() map[string][]string {
	pools := map[string][]string{}
	for _, kv := range os.Environ() {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		key, val := kv[:idx], kv[idx+1:]
		if val == "" || !strings.HasSuffix(key, "_API_KEY") && !containsAPIKeySuffix(key) {
			continue
		}
		provider := providerFromEnvKey(key)
		if provider == "" {
			continue
		}
		pools[provider] = append(pools[provider], val)
	}
	return pools
}

func containsAPIKeySuffix(key string) bool {
	// matches <PROVIDER>_API_KEY_<N> round-robin suffix variants.
	i := strings.Index(key, "_API_KEY_")
	return i > 0
}

func providerFromEnvKey(key string) string {
	for _, marker := range []string{"_API_KEY_", "_API_KEY"} {
		if i := strings.Index(key, marker); i > 0 {
			return strings.ToLower(key[:i])
		}
	}
	return ""
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt64(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}
