// Package queue implements the bounded, priority-laned outbound message
// queue described in spec.md §4.3: FIFO within a lane, high priority
// drained before normal, bounded by MAX_QUEUE_SIZE with an
// evict-the-lowest-priority-head-or-reject overflow policy.
//
// No pack example implements a priority outbound queue directly; the
// lane/eviction bookkeeping below is written straight from spec.md's
// rule, using container/list for O(1) head/tail operations per lane the
// way a bounded ring buffer would be used in the teacher's process
// supervision code, and github.com/google/uuid for message ids the way
// webitel-im-delivery-service and gabrielmiguelok-golivekit mint entity
// ids.
package queue

import (
	"container/list"
	"time"

	"github.com/google/uuid"
)

// Priority is the lane a message is queued in. Ordered low to high so
// callers can range over allPriorities() when looking for an evictable
// lane.
type Priority int

const (
	Normal Priority = iota
	High
)

// Message is spec.md's QueuedMessage.
type Message struct {
	ID          string
	Payload     []byte
	EnqueueTime time.Time
	Attempts    int
	Priority    Priority
	TimeoutAt   *time.Time
}

// NewMessage builds a Message ready for Push, generating an id if the
// caller didn't supply one.
func NewMessage(id string, payload []byte, priority Priority, enqueueTime time.Time, timeoutAt *time.Time) Message {
	if id == "" {
		id = uuid.NewString()
	}
	return Message{
		ID:          id,
		Payload:     payload,
		EnqueueTime: enqueueTime,
		Priority:    priority,
		TimeoutAt:   timeoutAt,
	}
}

// DropReason classifies why a message left the queue without being
// delivered.
type DropReason string

const (
	DropQueueOverflow DropReason = "queue_overflow"
	DropExhausted     DropReason = "exhausted"
	DropTimeout       DropReason = "timeout"
	DropTerminated    DropReason = "terminated"
)

// Dropped records a discarded message and why.
type Dropped struct {
	Message Message
	Reason  DropReason
}

// Queue is the bounded priority FIFO. The zero value is not usable; use
// New.
type Queue struct {
	maxSize int
	lanes   map[Priority]*list.List
}

// New returns an empty Queue bounded at maxSize total messages across
// all lanes.
func New(maxSize int) *Queue {
	return &Queue{
		maxSize: maxSize,
		lanes: map[Priority]*list.List{
			Normal: list.New(),
			High:   list.New(),
		},
	}
}

// allPriorities lists lanes from lowest to highest priority.
func allPriorities() []Priority { return []Priority{Normal, High} }

// Clone returns a deep copy of q: independent lanes holding copies of
// every queued Message, safe for a caller to hold and read while the
// original continues to be mutated by Push/Pop/Requeue/Drain elsewhere.
// Used by Machine.Snapshot to hand observers an immutable view instead
// of the live queue (spec.md §5 "observers receive immutable
// snapshots").
func (q *Queue) Clone() *Queue {
	clone := &Queue{
		maxSize: q.maxSize,
		lanes:   make(map[Priority]*list.List, len(q.lanes)),
	}
	for _, p := range allPriorities() {
		lane := list.New()
		for e := q.lanes[p].Front(); e != nil; e = e.Next() {
			lane.PushBack(e.Value.(Message))
		}
		clone.lanes[p] = lane
	}
	return clone
}

// Len returns the total number of messages across all lanes.
func (q *Queue) Len() int {
	n := 0
	for _, p := range allPriorities() {
		n += q.lanes[p].Len()
	}
	return n
}

// PushResult is the outcome of a Push.
type PushResult struct {
	Accepted bool
	Evicted  *Dropped
}

// Push admits msg per spec.md §4.3's overflow policy. When the queue is
// below maxSize, msg is appended to its lane's tail. When full, Push
// looks for the lowest-priority non-empty lane at or below msg's
// priority: if that lane's priority is strictly lower than msg's, its
// head is evicted to make room for msg; if it is the same priority (no
// strictly-lower lane has room to give), msg itself is rejected.
func (q *Queue) Push(msg Message) PushResult {
	if q.Len() < q.maxSize {
		q.lanes[msg.Priority].PushBack(msg)
		return PushResult{Accepted: true}
	}

	for _, p := range allPriorities() {
		if p > msg.Priority {
			break
		}
		lane := q.lanes[p]
		if lane.Len() == 0 {
			continue
		}
		if p < msg.Priority {
			front := lane.Front()
			evicted := lane.Remove(front).(Message)
			q.lanes[msg.Priority].PushBack(msg)
			return PushResult{
				Accepted: true,
				Evicted:  &Dropped{Message: evicted, Reason: DropQueueOverflow},
			}
		}
		// Equal priority: nothing strictly lower to sacrifice.
		return PushResult{Accepted: false}
	}
	return PushResult{Accepted: false}
}

// CanAdmit reports, without mutating the queue, whether Push(msg) would
// accept a message of the given priority right now: either there is
// spare capacity, or a strictly-lower-priority lane has a head that
// would be evicted to make room. Used by the canQueue guard, which must
// decide admissibility before any action runs.
func (q *Queue) CanAdmit(priority Priority) bool {
	if q.Len() < q.maxSize {
		return true
	}
	for _, p := range allPriorities() {
		if p >= priority {
			break
		}
		if q.lanes[p].Len() > 0 {
			return true
		}
	}
	return false
}

// AtCapacity reports whether the queue currently holds maxSize messages.
func (q *Queue) AtCapacity() bool { return q.Len() >= q.maxSize }

// Pop removes and returns the next message ready for delivery: the
// highest-priority lane's head, skipping (and reporting as dropped) any
// head messages whose TimeoutAt has already passed. Returns ok=false
// when the queue has nothing left to deliver.
func (q *Queue) Pop(now time.Time) (msg Message, dropped []Dropped, ok bool) {
	for {
		lane, found := q.highestNonEmptyLane()
		if !found {
			return Message{}, dropped, false
		}
		front := lane.Front()
		m := front.Value.(Message)
		if m.TimeoutAt != nil && now.After(*m.TimeoutAt) {
			lane.Remove(front)
			dropped = append(dropped, Dropped{Message: m, Reason: DropTimeout})
			continue
		}
		lane.Remove(front)
		return m, dropped, true
	}
}

func (q *Queue) highestNonEmptyLane() (*list.List, bool) {
	priorities := allPriorities()
	for i := len(priorities) - 1; i >= 0; i-- {
		lane := q.lanes[priorities[i]]
		if lane.Len() > 0 {
			return lane, true
		}
	}
	return nil, false
}

// Requeue reinserts msg at the head of its lane after a failed delivery
// attempt, per spec.md §4.3: attempts is incremented first, and beyond
// maxRetries the message is dropped with DropExhausted instead of
// requeued.
func (q *Queue) Requeue(msg Message, maxRetries int) (dropped *Dropped) {
	msg.Attempts++
	if msg.Attempts > maxRetries {
		return &Dropped{Message: msg, Reason: DropExhausted}
	}
	q.lanes[msg.Priority].PushFront(msg)
	return nil
}

// Drain empties the queue, returning every message it held tagged with
// reason (used by forceTerminate, spec.md §4.7).
func (q *Queue) Drain(reason DropReason) []Dropped {
	var out []Dropped
	for _, p := range allPriorities() {
		lane := q.lanes[p]
		for e := lane.Front(); e != nil; e = e.Next() {
			out = append(out, Dropped{Message: e.Value.(Message), Reason: reason})
		}
		lane.Init()
	}
	return out
}
