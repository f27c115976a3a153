// ABOUTME: Sliding window of recently seen webhook message ids
// ABOUTME: The gateway drops platform redeliveries that fall inside the window

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type seenID struct {
	id string
	at time.Time
}

// Window remembers message ids for a fixed TTL, bounded by capacity.
// Ids are kept in arrival order, so expiry and eviction both pop from the
// front.
type Window struct {
	mu       sync.Mutex
	ids      map[string]*list.Element
	order    *list.List // of *seenID, oldest at front
	ttl      time.Duration
	capacity int
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWindow creates a window and starts a background sweep that runs every
// sweepEvery. A zero sweepEvery disables the sweep; expired ids are then
// dropped lazily by Seen.
func NewWindow(ttl time.Duration, capacity int, sweepEvery time.Duration) *Window {
	w := &Window{
		ids:      make(map[string]*list.Element),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if sweepEvery > 0 {
		go w.sweepLoop(sweepEvery)
	}
	return w
}

// Seen reports whether id arrived within the window, recording it if not.
// The check and the record are one atomic step.
func (w *Window) Seen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expireLocked(now)

	if _, ok := w.ids[id]; ok {
		return true
	}

	for w.capacity > 0 && w.order.Len() >= w.capacity {
		w.removeLocked(w.order.Front())
	}
	w.ids[id] = w.order.PushBack(&seenID{id: id, at: now})
	return false
}

// Forget drops id so a redelivery is processed again, e.g. after the
// first attempt failed before replying.
func (w *Window) Forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.ids[id]; ok {
		w.removeLocked(el)
	}
}

// Len returns the number of ids currently remembered.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked(w.now())
	return w.order.Len()
}

// expireLocked pops ids older than the TTL. Caller holds mu.
func (w *Window) expireLocked(now time.Time) {
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		if now.Sub(el.Value.(*seenID).at) < w.ttl {
			return
		}
		w.removeLocked(el)
	}
}

func (w *Window) removeLocked(el *list.Element) {
	entry := w.order.Remove(el).(*seenID)
	delete(w.ids, entry.id)
}

func (w *Window) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			w.expireLocked(w.now())
			w.mu.Unlock()
		case <-w.stop:
			return
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (w *Window) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
}
