// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ratelimit provides sliding-window admission control gating
// expensive operations per (owner, action) pair.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// Rule is the (limit, window) configuration for one action.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules gate the pipeline's actions. The inference-calling submit
// action carries the tightest limit; cheaper actions are looser. Each
// action is counted independently.
var DefaultRules = map[string]Rule{
	"submit": {Limit: 20, Window: time.Hour},
	"status": {Limit: 600, Window: time.Hour},
	"search": {Limit: 120, Window: time.Hour},
}

// Limiter performs sliding-window admission checks backed by a
// RateLimitRepository. The repository's atomic slide operation is the
// only coordination used; the limiter itself holds no locks.
//
// The limiter fails open: if the counting store is unreachable the check
// allows the request rather than blocking legitimate traffic. Reliability
// over strictness.
type Limiter struct {
	repo   storage.RateLimitRepository
	rules  map[string]Rule
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithRules replaces the default per-action rules.
func WithRules(rules map[string]Rule) Option {
	return func(l *Limiter) {
		if rules != nil {
			l.rules = rules
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLimiter creates a limiter over the given counting store.
func NewLimiter(repo storage.RateLimitRepository, opts ...Option) *Limiter {
	l := &Limiter{
		repo:   repo,
		rules:  DefaultRules,
		logger: slog.Default().With("component", "ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check admits or rejects one attempt for (ownerID, action).
// Returns nil when admitted, or a *core.RateLimitedError carrying the
// time until the oldest recorded attempt leaves the window. Actions with
// no configured rule are always admitted.
func (l *Limiter) Check(ctx context.Context, ownerID, action string) error {
	rule, ok := l.rules[action]
	if !ok || rule.Limit <= 0 {
		return nil
	}

	key := ownerID + ":" + action
	decision, err := l.repo.Slide(ctx, key, time.Now().UTC(), rule.Window, rule.Limit)
	if err != nil {
		// Fail open: an unreachable counting store must not block traffic.
		l.logger.Warn("rate limit store unavailable, admitting request",
			"owner", ownerID, "action", action, "err", err)
		return nil
	}

	if !decision.Allowed {
		l.logger.Debug("rate limited",
			"owner", ownerID, "action", action,
			"count", decision.Count, "retryAfter", decision.RetryAfter)
		return &core.RateLimitedError{
			OwnerID:    ownerID,
			Action:     action,
			RetryAfter: decision.RetryAfter,
		}
	}
	return nil
}
