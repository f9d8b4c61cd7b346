package service

import (
	"hash/fnv"
	"sync"
)

const sequencerStripes = 64

// sequencer serializes persist-then-notify per conversation, so every
// connection sees one conversation's events in commit order. Unrelated
// conversations may share a stripe; they only wait on each other briefly.
type sequencer struct {
	stripes [sequencerStripes]sync.Mutex
}

func (s *sequencer) lock(conversationID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	mu := &s.stripes[h.Sum32()%sequencerStripes]
	mu.Lock()
	return mu.Unlock
}
