package realtime

import "time"

const (
	DefaultBaseDelay    = 5 * time.Second
	DefaultMaxAttempts  = 5
	DefaultPingInterval = 25 * time.Second

	// delays stop growing at this multiple of BaseDelay
	maxDelayFactor = 3
)

// Policy controls liveness probing and automatic reconnection.
// Zero fields fall back to the defaults.
type Policy struct {
	BaseDelay    time.Duration
	MaxAttempts  uint
	PingInterval time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:    DefaultBaseDelay,
		MaxAttempts:  DefaultMaxAttempts,
		PingInterval: DefaultPingInterval,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.PingInterval <= 0 {
		p.PingInterval = d.PingInterval
	}
	return p
}

// Delay is the wait before the retry that follows attempts earlier retries.
func (p Policy) Delay(attempts uint) time.Duration {
	return p.BaseDelay * time.Duration(min(attempts+1, maxDelayFactor))
}

func (p Policy) ShouldRetry(attempts uint) bool {
	return attempts < p.MaxAttempts
}
