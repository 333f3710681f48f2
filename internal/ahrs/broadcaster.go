package ahrs

import "sync"

// Broadcaster fans snapshots out to any listeners (websocket clients, UDP).
// It keeps the most recent value so new subscribers get an immediate sample.
// Slow subscribers miss snapshots rather than block the publisher.
type Broadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan Snapshot
	nextID   int
	last     Snapshot
	haveLast bool
	closed   bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]chan Snapshot),
	}
}

// Subscribe registers a listener. After the broadcaster is closed the
// returned channel holds at most the last snapshot and is already closed.
func (b *Broadcaster) Subscribe(buffer int) (int, <-chan Snapshot) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan Snapshot, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.haveLast {
		ch <- b.last
	}
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of open subscriptions.
func (b *Broadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Publish(snap Snapshot) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	b.last = snap
	b.haveLast = true
}

// closeAll ends every subscription.
func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
