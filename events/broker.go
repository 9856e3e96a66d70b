package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultBufferSize is the per-subscriber channel size
const DefaultBufferSize = 64

type subscriber struct {
	id     string
	events chan Event
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full is disconnected.
type Broker struct {
	mutex       sync.RWMutex
	subscribers map[string]*subscriber
	log         *logrus.Logger
}

var _ Publisher = (*Broker)(nil)

// NewBroker creates a new broker
func NewBroker(log *logrus.Logger) *Broker {
	return &Broker{
		subscribers: make(map[string]*subscriber),
		log:         log,
	}
}

// Publish sends the event to every subscriber
func (b *Broker) Publish(event Event) {
	b.mutex.RLock()
	var slow []string
	for id, s := range b.subscribers {
		select {
		case s.events <- event:
		default:
			slow = append(slow, id)
		}
	}
	b.mutex.RUnlock()

	for _, id := range slow {
		b.log.WithFields(logrus.Fields{
			"subscriber": id,
			"event_type": event.Type,
		}).Warn("Subscriber buffer full, disconnecting")
		b.remove(id)
	}
}

// Subscribe registers a new subscriber. The returned channel is closed when
// cancel is called or the subscriber is dropped for being slow.
func (b *Broker) Subscribe(bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	s := &subscriber{
		id:     uuid.NewString(),
		events: make(chan Event, bufferSize),
	}

	b.mutex.Lock()
	b.subscribers[s.id] = s
	count := len(b.subscribers)
	b.mutex.Unlock()

	b.log.WithFields(logrus.Fields{
		"subscriber":  s.id,
		"subscribers": count,
	}).Debug("Subscriber added")

	return s.events, func() { b.remove(s.id) }
}

// SubscriberCount returns the number of live subscribers
func (b *Broker) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// Close disconnects every subscriber
func (b *Broker) Close() {
	b.mutex.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*subscriber)
	b.mutex.Unlock()

	for _, s := range subs {
		s.close()
	}
}

func (b *Broker) remove(id string) {
	b.mutex.Lock()
	s, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mutex.Unlock()

	if ok {
		s.close()
	}
}
