package redis

import "strings"

const keyNamespace = "festpos"

// IdempotencyKey returns festpos:idempotency:{scope}:{id}.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

// RateLimitKey returns festpos:rate_limit:{scope}.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey("rate_limit", scope)
}

// buildKey joins the non-blank parts under the namespace.
func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
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
