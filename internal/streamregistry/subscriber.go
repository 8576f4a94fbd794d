package streamregistry

import (
	"sync/atomic"

	"github.com/nullwave/polystep/pkg/api"
)

// subscriberBuffer bounds how many pending notifications a slow
// subscriber can accumulate; once it is full, further notifications to
// that subscriber are dropped rather than blocking
// the mutating handler (per the source's stream-propagation design)
const subscriberBuffer = 32

// Subscriber is a live external observer of a stream scope. A group
// subscriber (ID == "") receives every item mutation within the group; an
// item subscriber only receives mutations to that exact (groupID, id)
type Subscriber struct {
	StreamName string
	GroupID    string
	ID         string

	ch     chan api.StreamItem
	closed atomic.Bool
}

func newSubscriber(streamName, groupID, id string) *Subscriber {
	return &Subscriber{
		StreamName: streamName,
		GroupID:    groupID,
		ID:         id,
		ch:         make(chan api.StreamItem, subscriberBuffer),
	}
}

// Receive returns the channel of pushed mutations
func (s *Subscriber) Receive() <-chan api.StreamItem {
	return s.ch
}

// Close marks the subscriber inactive. Safe to call more than once
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

func (s *Subscriber) matches(item api.StreamItem) bool {
	if s.GroupID != item.Key.GroupID {
		return false
	}
	if s.ID == "" {
		return true
	}
	return s.ID == item.Key.ID
}

// notify delivers item if it matches and the subscriber isn't full or
// closed; a full buffer drops the notification rather than blocking
func (s *Subscriber) notify(item api.StreamItem) {
	if s.closed.Load() || !s.matches(item) {
		return
	}
	select {
	case s.ch <- item:
	default:
	}
}
