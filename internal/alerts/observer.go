package alerts

import (
	"slices"
	"sync"
)

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventToggled   EventKind = "toggled"
	EventReset     EventKind = "reset"
	EventRemoved   EventKind = "removed"
	EventTriggered EventKind = "triggered"
)

// Event is published to subscribers after a transition commits.
type Event struct {
	Kind  EventKind
	Alert Alert
}

// Listener receives engine events.
type Listener func(Event)

type observers struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Listener
}

func (o *observers) subscribe(fn Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]Listener)
	}
	id := o.nextID
	o.nextID++
	o.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, o.subs[id])
	}
	o.mu.Unlock()

	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}
