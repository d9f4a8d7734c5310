package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/portal-pricing/internal/common"
)

// ErrDisabled marks an optional dependency that is not configured. It does not fail readiness.
var ErrDisabled = errors.New("disabled")

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness, e.g. to drain traffic during shutdown.
func SetReady(v bool) { ready.Store(v) }

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingPortal(ctx context.Context, timeout time.Duration) error
}

// Probes checks the Redis cache and the portal API circuit.
type Probes struct {
	Redis  *redis.Client
	Portal interface{ Available() error }
}

// PingRedis pings the cache. A missing client reports ErrDisabled.
func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}

// PingPortal reports whether the portal circuit breaker lets calls through.
func (p Probes) PingPortal(_ context.Context, _ time.Duration) error {
	if p.Portal == nil {
		return ErrDisabled
	}
	return p.Portal.Available()
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker       Checker
	RedisTimeout  time.Duration
	PortalTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSONError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is draining", nil)
		return
	}
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "no readiness checker", nil)
		return
	}
	ctx := r.Context()
	redisStatus, redisOK := probeStatus(h.Checker.PingRedis(ctx, timeoutOr(h.RedisTimeout, 300*time.Millisecond)))
	portalStatus, portalOK := probeStatus(h.Checker.PingPortal(ctx, timeoutOr(h.PortalTimeout, 300*time.Millisecond)))
	status := map[string]string{
		"redis":  redisStatus,
		"portal": portalStatus,
	}
	code := http.StatusOK
	if !redisOK || !portalOK {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func probeStatus(err error) (string, bool) {
	switch {
	case err == nil:
		return "ok", true
	case errors.Is(err, ErrDisabled):
		return "disabled", true
	default:
		return err.Error(), false
	}
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
