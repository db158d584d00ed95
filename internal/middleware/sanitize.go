package middleware

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/sirupsen/logrus"
)

// Sanitizer validates and normalizes inbound text.
type Sanitizer struct {
	maxChars int
}

// NewSanitizer creates an input sanitizer with the configured ceiling.
func NewSanitizer(cfg *config.PipelineConfig) *Sanitizer {
	return &Sanitizer{maxChars: cfg.MaxInputChars}
}

// Sanitize trims, truncates to the ceiling and drops every rune that is
// neither printable nor newline/carriage-return. It returns the cleaned text
// and false when nothing usable remains.
func (s *Sanitizer) Sanitize(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}

	runes := []rune(text)
	if len(runes) > s.maxChars {
		runes = runes[:s.maxChars]
	}

	var b strings.Builder
	b.Grow(len(runes))
	for _, r := range runes {
		if r == '\n' || r == '\r' || unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return "", false
	}
	return cleaned, true
}

// RateLimiter interface for per-user flood control.
type RateLimiter interface {
	Allow(userID int64) bool
	Reset(userID int64)
}

// WindowRateLimiter keeps a ring of request timestamps per user and admits a
// request only while fewer than the quota fall inside the sliding window.
// Overflow is a silent drop; the caller must not reply.
type WindowRateLimiter struct {
	enabled  bool
	window   time.Duration
	requests int
	rings    map[int64][]time.Time
	mu       sync.Mutex
	logger   *logrus.Logger
	now      func() time.Time

	cleanupInterval time.Duration
}

// NewRateLimiter creates a sliding-window rate limiter.
func NewRateLimiter(cfg *config.Config, logger *logrus.Logger) RateLimiter {
	if !cfg.RateLimit.Enabled {
		return &WindowRateLimiter{enabled: false}
	}

	rl := &WindowRateLimiter{
		enabled:         true,
		window:          cfg.RateLimit.Window,
		requests:        cfg.RateLimit.Requests,
		rings:           make(map[int64][]time.Time),
		logger:          logger,
		now:             time.Now,
		cleanupInterval: time.Hour,
	}

	go rl.cleanup()

	return rl
}

// Allow records the request and reports whether it fits the window.
func (r *WindowRateLimiter) Allow(userID int64) bool {
	if !r.enabled {
		return true
	}

	now := r.now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	ring := r.rings[userID]
	kept := ring[:0]
	for _, ts := range ring {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= r.requests {
		r.rings[userID] = kept
		r.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"window":  r.window,
		}).Warn("Rate limit exceeded, dropping message")
		return false
	}

	r.rings[userID] = append(kept, now)
	return true
}

// Reset clears the ring for a user.
func (r *WindowRateLimiter) Reset(userID int64) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.rings, userID)
	r.mu.Unlock()
}

// cleanup drops rings whose entries all expired.
func (r *WindowRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := r.now().Add(-r.window)
		r.mu.Lock()
		for id, ring := range r.rings {
			live := false
			for _, ts := range ring {
				if ts.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				delete(r.rings, id)
			}
		}
		r.mu.Unlock()
	}
}
