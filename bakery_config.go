package bakery

import (
	"fmt"
	"strings"
)

// ============================================================================
// Configuration
// ============================================================================

// Backoff selects how a waiting process spends the time between two polls
// of a peer's registry slot. It changes the polling interval only; the
// condition being polled is always the one the algorithm prescribes.
type Backoff uint8

const (
	// BackoffAdaptive spins on the CPU while the runtime allows it and then
	// sleeps briefly. It is the default.
	BackoffAdaptive Backoff = iota
	// BackoffYield hands the processor back to the Go scheduler between polls.
	BackoffYield
	// BackoffSpin is a pure busy-wait: every poll follows the previous one
	// immediately.
	BackoffSpin
)

var backoffNames = [...]string{
	BackoffAdaptive: "adaptive",
	BackoffYield:    "yield",
	BackoffSpin:     "spin",
}

func (b Backoff) String() string {
	if int(b) < len(backoffNames) {
		return backoffNames[b]
	}
	return fmt.Sprintf("Backoff(%d)", uint8(b))
}

// ParseBackoff returns the Backoff whose String form is s (case-insensitive).
func ParseBackoff(s string) (Backoff, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range backoffNames {
		if name == s {
			return Backoff(i), nil
		}
	}
	return BackoffAdaptive, fmt.Errorf("bakery: unknown backoff %q", s)
}

func (b Backoff) wait(spins *int) {
	switch b {
	case BackoffYield:
		yield(spins)
	case BackoffSpin:
		*spins++
	default:
		delay(spins)
	}
}

// Config defines configurable options for Lock initialization.
type Config struct {
	// backoff is the polling policy used while waiting on peers.
	backoff Backoff

	// strictUnlock makes Unlock panic when the process does not hold the
	// lock. When false, such an Unlock is a no-op.
	strictUnlock bool
}

func defaultConfig() Config {
	return Config{
		backoff:      BackoffAdaptive,
		strictUnlock: true,
	}
}

// WithBackoff configures the polling policy of a new Lock.
func WithBackoff(b Backoff) func(*Config) {
	return func(c *Config) {
		c.backoff = b
	}
}

// WithStrictUnlock controls what Unlock does for a process that does not
// hold the lock: panic (strict, the default) or nothing.
func WithStrictUnlock(strict bool) func(*Config) {
	return func(c *Config) {
		c.strictUnlock = strict
	}
}
