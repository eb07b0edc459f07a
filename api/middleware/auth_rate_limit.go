package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/licensor-backend/api/responses"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// AuthRateLimitPolicy is a coarse fixed window in front of an auth endpoint.
// Every attempt counts, successful or not; the per-account lockout lives in
// internal/loginlimit.
type AuthRateLimitPolicy struct {
	name   string
	window time.Duration
	rules  []rateRule
}

// rateRule counts requests that share a subject, such as the client ip.
type rateRule struct {
	scope   string
	limit   int64
	subject func(r *http.Request, body []byte) string
	// needsBody makes the middleware buffer the request body.
	needsBody bool
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, identLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	p := AuthRateLimitPolicy{name: name, window: window}
	if ipLimit > 0 {
		p.rules = append(p.rules, rateRule{
			scope:   "ip",
			limit:   int64(ipLimit),
			subject: func(r *http.Request, _ []byte) string { return ClientIP(r) },
		})
	}
	if identLimit > 0 {
		p.rules = append(p.rules, rateRule{
			scope:     "ident",
			limit:     int64(identLimit),
			subject:   func(_ *http.Request, body []byte) string { return identHash(body) },
			needsBody: true,
		})
	}
	return p
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && len(p.rules) > 0
}

func (p AuthRateLimitPolicy) key(scope, subject string) string {
	return "rl:" + scope + ":" + p.name + ":" + subject
}

func (p AuthRateLimitPolicy) needsBody() bool {
	for _, rule := range p.rules {
		if rule.needsBody {
			return true
		}
	}
	return false
}

// AuthRateLimit rejects requests over any rule of policy with 429. A store
// error fails closed with 503.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if policy.needsBody() {
				var err error
				if body, err = io.ReadAll(r.Body); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, rule := range policy.rules {
				subject := rule.subject(r, body)
				if subject == "" {
					continue
				}
				count, err := store.IncrWithTTL(ctx, policy.key(rule.scope, subject), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > rule.limit {
					rejectRateLimited(ctx, logg, w, policy, rule, subject, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, rule rateRule, subject string, count int64) {
	retryAfter := int(policy.window.Seconds())
	if logg != nil {
		// ident subjects are already hashed; ip subjects are logged as is.
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":         policy.name,
			"scope":          rule.scope,
			"subject":        subject,
			"attempts":       count,
			"limit":          rule.limit,
			"window_seconds": retryAfter,
		}), "auth rate limit exceeded")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
		WithDetails(map[string]any{"retry_after_seconds": retryAfter}))
}

// identHash hashes the normalized login identifier (username or email) so raw
// identifiers never reach redis keys or logs.
func identHash(body []byte) string {
	var payload struct {
		Username string `json:"username"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	ident := strings.ToLower(strings.TrimSpace(payload.Username))
	if ident == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ident))
	return hex.EncodeToString(sum[:])
}
