package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrHostOpen is returned when a host has failed too often and is cooling down.
var ErrHostOpen = errors.New("resilience: host breaker open")

// BreakerConfig controls per-host failure breaking.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// host. Zero disables breaking.
	FailureThreshold int
	// Cooldown is how long an open host rejects calls before one probe is let through.
	Cooldown time.Duration
	// ShouldTrip decides which errors count as failures. Default: any error.
	ShouldTrip func(err error) bool
	// OnOpen is called when a host transitions to open.
	OnOpen func(host string, failures int)
}

type hostState struct {
	failures int
	openedAt time.Time
	open     bool
	probing  bool
}

// HostBreakers tracks consecutive failures per host and short-circuits calls
// to hosts that keep failing. It is safe for concurrent use.
type HostBreakers struct {
	cfg   BreakerConfig
	mu    sync.Mutex
	hosts map[string]*hostState
	now   func() time.Time
}

// NewHostBreakers creates a registry of per-host breakers.
func NewHostBreakers(cfg BreakerConfig) *HostBreakers {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = func(err error) bool { return err != nil }
	}
	return &HostBreakers{cfg: cfg, hosts: make(map[string]*hostState), now: time.Now}
}

// Allow returns ErrHostOpen when calls to host should be skipped.
func (b *HostBreakers) Allow(host string) error {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.hosts[host]
	if !ok || !st.open {
		return nil
	}
	if b.now().Sub(st.openedAt) < b.cfg.Cooldown || st.probing {
		return ErrHostOpen
	}
	st.probing = true
	return nil
}

// Record feeds the result of a call to host back into its breaker.
func (b *HostBreakers) Record(host string, err error) {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.hosts[host]
	if !ok {
		st = &hostState{}
		b.hosts[host] = st
	}
	st.probing = false

	if err == nil || !b.cfg.ShouldTrip(err) {
		st.failures = 0
		st.open = false
		return
	}

	st.failures++
	if st.open {
		// A failed probe restarts the cooldown.
		st.openedAt = b.now()
		return
	}
	if st.failures >= b.cfg.FailureThreshold {
		st.open = true
		st.openedAt = b.now()
		if b.cfg.OnOpen != nil {
			b.cfg.OnOpen(host, st.failures)
		}
	}
}

// Open lists the hosts currently rejecting calls.
func (b *HostBreakers) Open() []string {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for h, st := range b.hosts {
		if st.open {
			out = append(out, h)
		}
	}
	return out
}
