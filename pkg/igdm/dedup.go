package igdm

import "sync"

// dedupWindow is a capacity-bounded set of recently-seen message ids.
// Eviction is strict FIFO by insertion: re-seeing an id does not refresh its
// position, so memory stays bounded under sustained traffic without needing
// timestamps.
type dedupWindow struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

func newDedupWindow(capacity int) *dedupWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &dedupWindow{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// isNew reports whether id has not been seen within the window, inserting it
// if so. An empty id is treated as new without insertion so malformed input
// never pollutes the window; the caller is expected to log that case.
func (w *dedupWindow) isNew(id string) bool {
	if id == "" {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[id]; ok {
		return false
	}
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)
	if len(w.order) > w.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
	return true
}

func (w *dedupWindow) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
