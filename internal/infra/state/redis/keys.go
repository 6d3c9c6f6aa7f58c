// Package redisstate holds the redis backed pieces shared between service
// instances: game locks, the realtime pub/sub bus and request rate limits.
package redisstate

import "strings"

const defaultKeyPrefix = "tc:"

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return defaultKeyPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}
