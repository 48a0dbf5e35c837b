package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for the anti-brute-force delay applied to
// failed authentication outcomes.
type TimingConfig struct {
	BaseDelay time.Duration // fixed delay before every error response
	Jitter    time.Duration // additional random delay range
}

// TimingDelay applies a blocking delay on failure paths so that distinct
// failure causes are indistinguishable by response time. The delay is a
// plain sleep on purpose: it must elapse fully even if the client
// disconnects, so it takes no context.
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandDuration returns a secure random duration in [0, max).
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return time.Duration(randomValue % uint64(max))
}

// Wait blocks for the configured base delay plus jitter.
func (td *TimingDelay) Wait() {
	time.Sleep(td.config.BaseDelay + cryptoRandDuration(td.config.Jitter))
}

// WaitFrom blocks until at least the configured delay has elapsed since
// start, accounting for time already consumed by validation work.
func (td *TimingDelay) WaitFrom(start time.Time) {
	target := td.config.BaseDelay + cryptoRandDuration(td.config.Jitter)
	if elapsed := time.Since(start); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
