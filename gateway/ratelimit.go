package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"
)

// limiter hands out token buckets, either one global bucket or one per client.
type limiter struct {
	cfg     RateLimitConfig
	global  *rate.Limiter
	clients *xsync.Map[string, *rate.Limiter]
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.RPS <= 0 {
		return nil
	}

	l := &limiter{cfg: cfg}
	if cfg.PerClient {
		l.clients = xsync.NewMap[string, *rate.Limiter]()
	} else {
		l.global = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}

	return l
}

func (l *limiter) allow(r *http.Request) bool {
	if l.global != nil {
		return l.global.Allow()
	}

	bucket, _ := l.clients.LoadOrCompute(clientKey(r), func() (*rate.Limiter, bool) {
		return rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst), false
	})

	return bucket.Allow()
}

// clientKey is the first X-Forwarded-For hop, else the remote host.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
