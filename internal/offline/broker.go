package offline

import "sync"

const subscriptionBuffer = 256

// Subscription delivers storage events on C until Unsubscribe is called.
// C is never closed.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	done   chan struct{}
	once   sync.Once
	broker *Broker
	id     int
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.broker.remove(s.id)
	})
}

// Broker fans storage events out to subscriptions.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*Subscription)}
}

func (b *Broker) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{
		C:      ch,
		ch:     ch,
		done:   make(chan struct{}),
		broker: b,
		id:     b.nextID,
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Broker) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish delivers ev to every live subscription. It blocks while a
// subscriber's buffer is full, unless that subscriber unsubscribes.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}
