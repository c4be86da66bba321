package service

import (
	"sync"

	"contestjudge/internal/standings/model"
)

const subscriberBuffer = 4

type subscriber struct {
	ch chan model.Update
	// version of the newest update queued to ch
	version uint64
}

// hub fans board updates out to live subscribers of each contest.
type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*subscriber
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[uint64]*subscriber)}
}

// subscribe registers a subscriber whose channel already holds initial.
func (h *hub) subscribe(contestID string, initial model.Update) (<-chan model.Update, func()) {
	ch := make(chan model.Update, subscriberBuffer)
	ch <- initial
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[contestID] == nil {
		h.subs[contestID] = make(map[uint64]*subscriber)
	}
	h.subs[contestID][id] = &subscriber{ch: ch, version: initial.Version}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subs[contestID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subs, contestID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// broadcast never blocks. Updates not newer than what a subscriber already
// holds are dropped, and a subscriber whose buffer is full loses its oldest
// pending update, so it always ends on the latest board.
func (h *hub) broadcast(update model.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[update.ContestID] {
		if update.Version <= sub.version {
			continue
		}
		sub.version = update.Version
		select {
		case sub.ch <- update:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- update:
		default:
		}
	}
}

func (h *hub) count(contestID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[contestID])
}
