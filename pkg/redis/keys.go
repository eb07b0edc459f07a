package redis

import "strings"

const (
	defaultNamespace  = "lic"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	sessionPrefix     = "session"
	lockPrefix        = "lock"
)

// keyspace joins key parts under a namespace: "<ns>:<part>:<part>".
type keyspace string

func (k keyspace) key(parts ...string) string {
	ns := strings.TrimSpace(string(k))
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey namespaces a stored idempotent response.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keys.key(idempotencyPrefix, scope, id)
}

// RateLimitKey namespaces a fixed-window counter.
func (c *Client) RateLimitKey(scope string) string {
	return c.keys.key(rateLimitPrefix, scope)
}

// AccessSessionKey holds the refresh token bound to an access token id.
func (c *Client) AccessSessionKey(accessID string) string {
	return c.keys.key(sessionPrefix, "access", accessID)
}

func (c *Client) LockKey(name string) string {
	return c.keys.key(lockPrefix, name)
}
