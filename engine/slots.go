package engine

import (
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// slotTable accounts for stream slots: a global cap across all
// conversations and a per-conversation cap (default 1, making conversations
// mutually exclusive). Acquisition never queues; a caller over either cap
// fails fast with a coded error.
type slotTable struct {
	mu        sync.Mutex
	active    int
	perConv   map[string]int
	globalCap int
	convCap   int
}

func newSlotTable(globalCap, convCap int) *slotTable {
	return &slotTable{
		perConv:   make(map[string]int),
		globalCap: globalCap,
		convCap:   convCap,
	}
}

// acquire reserves a slot for conversationID. The returned release function
// is idempotent: calling it more than once decrements the counters exactly
// once.
func (s *slotTable) acquire(conversationID string) (func(), *core.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active >= s.globalCap {
		return nil, core.Errorf(core.CodeMaxActiveStreamsExceeded,
			"maximum of %d concurrent streams reached", s.globalCap)
	}
	if s.perConv[conversationID] >= s.convCap {
		return nil, core.Errorf(core.CodeConversationBusy,
			"conversation %s already has an active stream", conversationID)
	}

	s.active++
	s.perConv[conversationID]++

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.active--
			if s.perConv[conversationID] <= 1 {
				delete(s.perConv, conversationID)
			} else {
				s.perConv[conversationID]--
			}
		})
	}
	return release, nil
}

// activeStreams reports the number of in-flight turns.
func (s *slotTable) activeStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
