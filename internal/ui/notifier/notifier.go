// Package notifier fans out figure changes to page and socket clients.
package notifier

import "sync"

// Notifier broadcasts change pings to subscribed listeners. Listeners
// receive an empty struct and re-read the current figure themselves.
// Shutdown closes Done so listeners can say goodbye to their clients.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan struct{}]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan struct{}]struct{}),
		done:      make(chan struct{}),
	}
}

// Subscribe returns a channel that receives pings when the figure changes.
// The caller must call Unsubscribe when done.
func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Broadcast sends a ping to all listeners without blocking. A listener
// whose channel is full already has a ping pending.
func (n *Notifier) Broadcast() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Shutdown closes Done. It is safe to call more than once.
func (n *Notifier) Shutdown() {
	n.closeOnce.Do(func() { close(n.done) })
}

// Done is closed when the application is shutting down.
func (n *Notifier) Done() <-chan struct{} {
	return n.done
}
