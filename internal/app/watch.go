package app

import (
	"sync"

	"toohak-session-service/internal/domain"
)

// watchHub fans state updates out to per-session subscriber channels. The
// websocket transport uses it to push live session state to players.
type watchHub struct {
	mu       sync.Mutex
	watchers map[int]map[chan domain.StateUpdate]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{watchers: make(map[int]map[chan domain.StateUpdate]struct{})}
}

func (h *watchHub) subscribe(sessionID int) (<-chan domain.StateUpdate, func()) {
	ch := make(chan domain.StateUpdate, 8)

	h.mu.Lock()
	set, ok := h.watchers[sessionID]
	if !ok {
		set = make(map[chan domain.StateUpdate]struct{})
		h.watchers[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.watchers[sessionID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.watchers, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// publish delivers the update to every watcher, dropping the stalest queued
// update when a subscriber's buffer is full so slow clients never block a
// transition.
func (h *watchHub) publish(update domain.StateUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.watchers[update.SessionID] {
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.watchers {
		for ch := range set {
			close(ch)
		}
		delete(h.watchers, id)
	}
}
