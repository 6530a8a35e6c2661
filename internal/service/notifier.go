package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrSubscriberExists   = errors.New("subscriber id already exists")
	ErrSubscriberNotFound = errors.New("subscriber id not found")
)

type ChangeReason string

const (
	ChangeAppended ChangeReason = "appended"
	ChangeUpdated  ChangeReason = "updated"
)

// ChangeEvent tells observers the fine list changed. It carries no diff;
// observers re-read the list.
type ChangeEvent struct {
	Reason ChangeReason `json:"reason"`
	ID     string       `json:"id"`
	At     time.Time    `json:"at"`
}

type NotifierStats struct {
	Subscribers int    `json:"subscribers"`
	Sent        uint64 `json:"sent"`
	Dropped     uint64 `json:"dropped"`
}

// Notifier fans change events out to subscriber channels without blocking.
// A subscriber whose channel is full misses that event; since every event
// only means "re-read the list", a pending one already covers it.
type Notifier struct {
	mu      sync.RWMutex
	subs    map[string]chan<- ChangeEvent
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]chan<- ChangeEvent)}
}

func (n *Notifier) Subscribe(id string, ch chan<- ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[id]; ok {
		return ErrSubscriberExists
	}
	n.subs[id] = ch
	return nil
}

func (n *Notifier) Unsubscribe(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(n.subs, id)
	return nil
}

func (n *Notifier) Publish(ev ChangeEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
			n.sent.Add(1)
		default:
			n.dropped.Add(1)
		}
	}
}

func (n *Notifier) Stats() NotifierStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return NotifierStats{
		Subscribers: len(n.subs),
		Sent:        n.sent.Load(),
		Dropped:     n.dropped.Load(),
	}
}
