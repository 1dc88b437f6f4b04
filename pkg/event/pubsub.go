package event

import (
	"sort"
	"sync"
)

// Subscriber receives clock change events.
type Subscriber interface {
	Notify(e ClockEvent)
	ID() string
}

// Notifier fans clock events out to its subscribers.
type Notifier interface {
	Register(s Subscriber)
	Unregister(s Subscriber)
	Publish(events ...ClockEvent)
}

// ChangeNotifier is the in-process Notifier. Subscribers are called synchronously
// in ID order, so every subscriber sees events in publication order.
type ChangeNotifier struct {
	sync.Mutex
	Subscribers map[string]Subscriber
}

func NewChangeNotifier() *ChangeNotifier {
	return &ChangeNotifier{
		Subscribers: make(map[string]Subscriber),
	}
}

func (n *ChangeNotifier) Register(s Subscriber) {
	n.Lock()
	defer n.Unlock()
	n.Subscribers[s.ID()] = s
}

func (n *ChangeNotifier) Unregister(s Subscriber) {
	n.Lock()
	defer n.Unlock()
	delete(n.Subscribers, s.ID())
}

// Publish delivers events to every subscriber registered at the time of the call.
func (n *ChangeNotifier) Publish(events ...ClockEvent) {
	if len(events) == 0 {
		return
	}
	for _, s := range n.snapshot() {
		for _, e := range events {
			s.Notify(e)
		}
	}
}

func (n *ChangeNotifier) snapshot() []Subscriber {
	n.Lock()
	defer n.Unlock()
	ids := make([]string, 0, len(n.Subscribers))
	for id := range n.Subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, n.Subscribers[id])
	}
	return subs
}
