package store

import "sync"

// Change describes a mutation of the members table. The address is either the
// collection address ("members", for bulk operations and import completions)
// or an item address ("members/{code}"). Consumers are expected to re-query,
// there is no diff.
type Change struct {
	Address string
}

// Notifier broadcasts change notifications to in-process subscribers.
type Notifier struct {
	mu   sync.Mutex
	subs []chan Change
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a new subscriber and returns its channel. The buffer
// size bounds how far a subscriber may lag: notifications to a full channel
// are dropped, never blocked on.
func (n *Notifier) Subscribe(buffer int) <-chan Change {
	ch := make(chan Change, buffer)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

// Notify broadcasts a change for the given address. A nil Notifier is valid
// and notifies nobody.
func (n *Notifier) Notify(address string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- Change{Address: address}:
		default:
		}
	}
}
