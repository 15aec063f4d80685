package threatanalyzer

import (
	"context"
	"sync"
	"time"

	"github.com/pathlearn/authguard/pkg/types"
)

// EventSink receives a copy of every recorded event. Persistence is
// optional; the in-memory indices alone satisfy the analyzer.
type EventSink interface {
	SaveEvent(ctx context.Context, event *types.ThreatEvent) error
}

// eventStore holds the rolling event history, indexed by email and by
// IP. Both indices are bounded: entries older than the retention
// window are swept, and each IP's history is capped so one noisy
// source cannot grow memory without bound.
type eventStore struct {
	mu             sync.RWMutex
	byEmail        map[string][]types.ThreatEvent
	byIP           map[string][]types.ThreatEvent
	retention      time.Duration
	maxEventsPerIP int
}

func newEventStore(retention time.Duration, maxEventsPerIP int) *eventStore {
	return &eventStore{
		byEmail:        make(map[string][]types.ThreatEvent),
		byIP:           make(map[string][]types.ThreatEvent),
		retention:      retention,
		maxEventsPerIP: maxEventsPerIP,
	}
}

func (s *eventStore) append(event types.ThreatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Email != "" {
		s.byEmail[event.Email] = append(s.byEmail[event.Email], event)
	}

	ipEvents := append(s.byIP[event.IP], event)
	if len(ipEvents) > s.maxEventsPerIP {
		ipEvents = ipEvents[len(ipEvents)-s.maxEventsPerIP:]
	}
	s.byIP[event.IP] = ipEvents
}

// eventsSince returns copies of the events for the key recorded at or
// after cutoff. Copy-on-read keeps sweeps and appends from racing
// with analysis.
func eventsSince(index map[string][]types.ThreatEvent, key string, cutoff time.Time) []types.ThreatEvent {
	events := index[key]
	var recent []types.ThreatEvent
	for _, e := range events {
		if !e.Timestamp.Before(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent
}

func (s *eventStore) recentByIP(ip string, cutoff time.Time) []types.ThreatEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return eventsSince(s.byIP, ip, cutoff)
}

func (s *eventStore) recentByEmail(email string, cutoff time.Time) []types.ThreatEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return eventsSince(s.byEmail, email, cutoff)
}

// sweep drops events older than the retention window from both
// indices and deletes emptied keys. Returns the number of events
// removed.
func (s *eventStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.retention)
	removed := 0
	for _, index := range []map[string][]types.ThreatEvent{s.byEmail, s.byIP} {
		for key, events := range index {
			kept := events[:0]
			for _, e := range events {
				if e.Timestamp.Before(cutoff) {
					removed++
					continue
				}
				kept = append(kept, e)
			}
			if len(kept) == 0 {
				delete(index, key)
				continue
			}
			index[key] = kept
		}
	}
	return removed
}
