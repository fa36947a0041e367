// Package ratelimit implements a fixed-capacity sliding-window limiter keyed
// by an arbitrary string. Pruning of expired timestamps happens lazily on
// access; there is no background sweeper.
package ratelimit

import (
	"sync"
	"time"
)

// Scope selects how the limiter key is derived from a request's identity.
type Scope string

const (
	// ScopeUser keys on the user id.
	ScopeUser Scope = "user"
	// ScopeConversation keys on the conversation id.
	ScopeConversation Scope = "conversation"
	// ScopeUserOrConversation prefers the user id and falls back to the
	// conversation id when no user is present.
	ScopeUserOrConversation Scope = "user-or-conversation"
)

// Config tunes the sliding window.
type Config struct {
	// Window is the sliding window length.
	Window time.Duration `yaml:"window"`
	// MaxRequests is the number of requests admitted per key per window.
	MaxRequests int `yaml:"max_requests"`
	// Scope selects the key derivation. Defaults to user-or-conversation.
	Scope Scope `yaml:"scope"`
}

// DefaultConfig returns the runtime's default limiter settings.
func DefaultConfig() Config {
	return Config{Window: time.Minute, MaxRequests: 60, Scope: ScopeUserOrConversation}
}

// Limiter is a keyed sliding-window rate limiter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	config  Config
	now     func() time.Time
}

// New creates a limiter from config.
func New(config Config) *Limiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 60
	}
	if config.Scope == "" {
		config.Scope = ScopeUserOrConversation
	}
	return &Limiter{windows: make(map[string][]time.Time), config: config, now: time.Now}
}

// KeyFor derives the limiter key for the configured scope.
func (l *Limiter) KeyFor(userID, conversationID string) string {
	switch l.config.Scope {
	case ScopeUser:
		return "user:" + userID
	case ScopeConversation:
		return "conv:" + conversationID
	default:
		if userID != "" {
			return "user:" + userID
		}
		return "conv:" + conversationID
	}
}

// Allow records one request for key if the window has room. On rejection it
// reports how long the caller must wait until the oldest in-window request
// expires.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.config.Window)

	window := l.windows[key]
	// Drop timestamps that fell out of the window.
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.config.MaxRequests {
		l.windows[key] = kept
		retryAfter = l.config.Window - now.Sub(kept[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	l.windows[key] = append(kept, now)
	return true, 0
}

// Reset forgets all recorded requests for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}
