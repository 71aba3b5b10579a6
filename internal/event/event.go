// Package event implements the intra-process event bus used to coordinate
// power transitions (sleep/wake) across independently developed
// subsystems, ported from Event.c. Listeners are stored in a fixed-capacity
// slice (design value 10, matching MAX_NR_LISTENERS); registration order is
// delivery order and delivery is synchronous.
package event

import "github.com/sillycat/sensornet/internal/failstop"

// Kind identifies an event type. The core's own kinds are SLEEP and WAKEUP
// (§4.I); application layers extend this with their own values, e.g. the
// node's "reading sent" notification (§9, Open Questions).
type Kind uint8

const (
	// Sleep is triggered immediately before the MCU enters its deep-sleep
	// state; listeners must quiesce any in-flight work synchronously.
	Sleep Kind = iota
	// Wakeup is triggered immediately after the MCU resumes from sleep.
	Wakeup
	// All is a distinguished listener id that matches every event kind.
	// It is never used as an event's own Kind.
	All
	// FirstApplicationKind is the first value application layers may use
	// for their own event kinds (e.g. a node's send-completed event).
	FirstApplicationKind
)

// MaxListeners bounds the fixed-capacity listener pool, matching the
// firmware's MAX_NR_LISTENERS.
const MaxListeners = 10

// Event is a single published occurrence: a millisecond timestamp and a
// kind tag.
type Event struct {
	Timestamp uint32
	ID        Kind
}

// Callback handles one delivered event.
type Callback func(e Event)

type listener struct {
	id       Kind
	callback Callback
}

// Bus is the fixed-capacity listener registry and dispatcher. The zero
// value is not ready to use; construct with New.
type Bus struct {
	listeners  [MaxListeners]listener
	count      int
	triggering bool
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// AddListener registers callback for events matching id (or every event, if
// id is All). Registration order is delivery order. There is no unregister
// in the core — listeners are wired once at startup.
func (b *Bus) AddListener(id Kind, callback Callback) {
	failstop.Assert(callback != nil, "event: nil listener callback")
	failstop.Assert(b.count < MaxListeners, "event: listener pool exhausted")

	b.listeners[b.count] = listener{id: id, callback: callback}
	b.count++
}

// Trigger delivers e to every matching listener, in registration order,
// synchronously. Triggering an event from inside a listener callback is a
// precondition violation — the core never re-enters Trigger.
func (b *Bus) Trigger(e Event) {
	failstop.Assert(!b.triggering, "event: re-entrant Trigger")

	b.triggering = true
	defer func() { b.triggering = false }()

	for i := 0; i < b.count; i++ {
		l := b.listeners[i]
		if l.id == e.ID || l.id == All {
			failstop.Assert(l.callback != nil, "event: nil listener callback")
			l.callback(e)
		}
	}
}
