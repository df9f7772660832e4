package hooks

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Validator is the entry point the RPC surface calls for hook.pre_tool,
// hook.post_tool, hook.user_prompt, and hook.todo_write, composing the
// policy registry, the validation cache, per-session rate limiting
// (spec.md §4.7: "rate-limited per session"), and the audit trail.
type Validator struct {
	reg     *Registry
	cache   *Cache
	auditor *Auditor

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	limit      rate.Limit
	burst      int
}

// NewValidator returns a Validator backed by reg, caching decisions for
// cacheTTL, auditing via auditor, and limiting each session to limit
// events/sec with the given burst.
func NewValidator(reg *Registry, cacheTTL time.Duration, auditor *Auditor, limit float64, burst int) *Validator {
	return &Validator{
		reg:      reg,
		cache:    NewCache(cacheTTL),
		auditor:  auditor,
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(limit),
		burst:    burst,
	}
}

func (v *Validator) limiterFor(sessionID string) *rate.Limiter {
	v.limitersMu.Lock()
	defer v.limitersMu.Unlock()
	l, ok := v.limiters[sessionID]
	if !ok {
		l = rate.NewLimiter(v.limit, v.burst)
		v.limiters[sessionID] = l
	}
	return l
}

// ErrRateLimited is returned when a session exceeds its hook-call budget.
var ErrRateLimited = &rateLimitError{}

type rateLimitError struct{}

func (*rateLimitError) Error() string { return "hook validation rate limit exceeded" }

// Check evaluates c, consulting the cache first. A cache hit increments
// the hit counter and skips both policy evaluation and the audit write
// (the decision was already audited on the miss that populated it).
func (v *Validator) Check(ctx context.Context, c Call) (Decision, error) {
	if !v.limiterFor(c.SessionID).Allow() {
		return Decision{}, ErrRateLimited
	}

	key := CacheKey(c.Tool, c.Params)
	if d, ok := v.cache.Get(key); ok {
		return d, nil
	}

	if c.RawCmd == "" {
		c.RawCmd = flattenParams(c.Params)
	}

	d := Evaluate(v.reg, c)
	v.cache.Set(key, d)

	if v.auditor != nil {
		if err := v.auditor.Record(ctx, c, d); err != nil {
			return d, err
		}
	}

	return d, nil
}

// flattenParams renders a command-like string out of common param shapes
// ("command", "cmd", "path") so deny-list policies can pattern-match
// without each policy reimplementing param inspection.
func flattenParams(params map[string]any) string {
	var parts []string
	for _, field := range []string{"command", "cmd", "path", "file_path"} {
		if s, ok := params[field].(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
