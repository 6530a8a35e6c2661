package extraction

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum spacing between two extraction starts.
const DefaultCooldown = 1500 * time.Millisecond

// Limiter is a single-permit rate limiter. The permit becomes available again
// once the holder released it and the cooldown, measured from the moment it
// was taken, has elapsed. Each trigger owns its own limiter.
type Limiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	held     bool
	next     time.Time
}

func NewLimiter(cooldown time.Duration) *Limiter {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Limiter{cooldown: cooldown, now: time.Now}
}

// TryAcquire takes the permit if it is free. The returned release function
// must be called once the guarded work finishes; calling it more than once is
// harmless.
func (l *Limiter) TryAcquire() (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.held || now.Before(l.next) {
		return nil, false
	}
	l.held = true
	l.next = now.Add(l.cooldown)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.held = false
			l.mu.Unlock()
		})
	}, true
}

// Busy reports whether TryAcquire would currently fail.
func (l *Limiter) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held || l.now().Before(l.next)
}

// AvailableAt returns the earliest time the permit can be taken, ignoring
// whether it is still held.
func (l *Limiter) AvailableAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}
