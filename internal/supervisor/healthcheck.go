package supervisor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"iris-predict/internal/backend"
)

// HealthChecker periodically pings the prediction service's /api/healthz and
// refreshes its /api/version.
type HealthChecker struct {
	client        *backend.Client
	versions      *backend.VersionCache
	checkInterval time.Duration
	timeout       time.Duration
	healthy       atomic.Bool
	lastCheck     atomic.Value // time.Time
	lastError     atomic.Value // string
	version       atomic.Value // string
	metrics       *Metrics
	logger        *slog.Logger
	stopCh        chan struct{}
}

// NewHealthChecker creates a health checker and starts its background loop.
// versions may be nil, in which case the version is fetched on every check.
func NewHealthChecker(client *backend.Client, versions *backend.VersionCache, checkInterval, timeout time.Duration, metrics *Metrics, logger *slog.Logger) *HealthChecker {
	hc := &HealthChecker{
		client:        client,
		versions:      versions,
		checkInterval: checkInterval,
		timeout:       timeout,
		metrics:       metrics,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}

	// Unhealthy until the first check completes.
	hc.healthy.Store(false)

	go hc.run()

	return hc
}

// run performs periodic health checks.
func (hc *HealthChecker) run() {
	hc.check()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.check()
		case <-hc.stopCh:
			return
		}
	}
}

// check performs a single liveness ping followed by a version lookup.
func (hc *HealthChecker) check() {
	ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
	defer cancel()

	if err := hc.client.Healthz(ctx); err != nil {
		hc.updateHealth(false, err.Error())
		// A service coming back may be a new release.
		if hc.versions != nil {
			hc.versions.Invalidate(hc.client)
		}
		return
	}
	hc.updateHealth(true, "")

	var v string
	var err error
	if hc.versions != nil {
		v, err = hc.versions.Get(ctx, hc.client)
	} else {
		v, err = hc.client.Version(ctx)
	}
	if err != nil {
		if hc.logger != nil {
			hc.logger.Debug("version lookup failed", "err", err)
		}
		return
	}
	hc.version.Store(v)
}

// updateHealth updates the health status and metrics.
func (hc *HealthChecker) updateHealth(healthy bool, errMsg string) {
	hc.healthy.Store(healthy)
	hc.lastCheck.Store(time.Now())
	hc.lastError.Store(errMsg)
	if errMsg != "" && hc.logger != nil {
		hc.logger.Debug("backend health check failed", "error", errMsg)
	}

	if hc.metrics != nil {
		hc.metrics.UpdateBackendHealth(healthy)
	}
}

// Healthy returns whether the backend answered the last ping.
func (hc *HealthChecker) Healthy() bool {
	return hc.healthy.Load()
}

// LastCheck returns the time of the last health check.
func (hc *HealthChecker) LastCheck() time.Time {
	if v := hc.lastCheck.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}

// LastError returns the last error message, if any.
func (hc *HealthChecker) LastError() string {
	if v := hc.lastError.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Version returns the last version reported by the backend.
func (hc *HealthChecker) Version() string {
	if v := hc.version.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Shutdown stops the health checker.
func (hc *HealthChecker) Shutdown() {
	close(hc.stopCh)
}
