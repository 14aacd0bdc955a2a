// Package flood limits how often a single creator may submit sets.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the sliding window submissions are counted over.
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle creators are forgotten.
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a creator may stay quiet before its entry is dropped.
	idleTimeout = 10 * time.Minute
)

// Floodgate applies a per-creator, per-action sliding window limit.
type Floodgate struct {
	limitPerMinute int
	entries        map[string]*creatorEntry // Key: "action:creatorID"
	mutex          sync.Mutex
	now            func() time.Time
	stopCleanup    chan struct{}
	stopOnce       sync.Once
}

// creatorEntry tracks accepted submission times for one creator and action.
type creatorEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool
	// RetryAfter is set when Allowed is false: the time until the oldest
	// counted submission leaves the window.
	RetryAfter time.Duration
}

// New creates a Floodgate. A limit of zero or less disables limiting.
func New(limitPerMinute int) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*creatorEntry),
		now:            time.Now,
		stopCleanup:    make(chan struct{}),
	}

	go fg.cleanup()

	return fg
}

// Stop ends the background cleanup goroutine. It is safe to call more than once.
func (fg *Floodgate) Stop() {
	fg.stopOnce.Do(func() { close(fg.stopCleanup) })
}

// Check records a submission attempt by creatorID for action and reports whether it may proceed.
// Rejected attempts are not counted.
func (fg *Floodgate) Check(action, creatorID string) Decision {
	if fg.limitPerMinute <= 0 {
		return Decision{Allowed: true}
	}

	key := action + ":" + creatorID

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	now := fg.now()

	entry, exists := fg.entries[key]
	if !exists {
		entry = &creatorEntry{
			timestamps: make([]time.Time, 0, fg.limitPerMinute+1),
		}
		fg.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-windowDuration)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= fg.limitPerMinute {
		return Decision{RetryAfter: entry.timestamps[0].Add(windowDuration).Sub(now)}
	}

	entry.timestamps = append(entry.timestamps, now)
	return Decision{Allowed: true}
}

func (fg *Floodgate) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-fg.stopCleanup:
			return
		}
	}
}

// performCleanup removes entries that have been idle for too long.
func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-idleTimeout)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// Stats returns a snapshot for the readiness endpoint.
func (fg *Floodgate) Stats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveCreators: len(fg.entries),
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}

// Stats contains floodgate statistics.
type Stats struct {
	ActiveCreators int `json:"activeCreators"`
	LimitPerMinute int `json:"limitPerMinute"`
	WindowSeconds  int `json:"windowSeconds"`
}
