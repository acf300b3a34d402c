package conversation

import (
	"context"
	"sync"
	"time"
)

// Store maps sender identities to transcripts. Implementations never fail.
type Store interface {
	GetOrCreate(ctx context.Context, sender string) Transcript
	Append(ctx context.Context, sender, role, text string)
	// Lock grants exclusive access to one sender's exchange until unlock is called.
	Lock(sender string) (unlock func())
	Len() int
}

// MemoryStore is a process-local Store. Transcripts are capped at maxTurns
// and dropped after idleTTL without activity; zero disables either bound.
type MemoryStore struct {
	mu       sync.Mutex
	senders  map[string]*senderState
	maxTurns int
	idleTTL  time.Duration
	now      func() time.Time
}

type senderState struct {
	exchange   sync.Mutex
	turns      Transcript
	lastActive time.Time
	holders    int
}

// StoreOption customizes a MemoryStore.
type StoreOption func(*MemoryStore)

// WithMaxTurns caps each transcript; the oldest turns are trimmed first.
func WithMaxTurns(n int) StoreOption {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.maxTurns = n
		}
	}
}

// WithIdleTTL evicts transcripts that have been idle for longer than ttl.
func WithIdleTTL(ttl time.Duration) StoreOption {
	return func(s *MemoryStore) {
		if ttl >= 0 {
			s.idleTTL = ttl
		}
	}
}

func withClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore returns an unbounded store unless options say otherwise.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		senders: make(map[string]*senderState),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns a copy of the sender's transcript, creating an empty one
// on first contact.
func (s *MemoryStore) GetOrCreate(_ context.Context, sender string) Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(sender)
	out := make(Transcript, len(st.turns))
	copy(out, st.turns)
	return out
}

// Append adds a turn to the sender's transcript, creating it if absent.
func (s *MemoryStore) Append(_ context.Context, sender, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(sender)
	st.turns = append(st.turns, Turn{Role: role, Content: text})
	st.lastActive = s.now()
	if s.maxTurns > 0 && len(st.turns) > s.maxTurns {
		st.turns = trimTurns(st.turns, s.maxTurns)
	}
}

// Lock serializes exchanges for one sender. The sweeper skips locked senders.
func (s *MemoryStore) Lock(sender string) func() {
	s.mu.Lock()
	st := s.stateLocked(sender)
	st.holders++
	s.mu.Unlock()

	st.exchange.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			st.exchange.Unlock()
			s.mu.Lock()
			st.holders--
			s.mu.Unlock()
		})
	}
}

// Len reports how many senders currently hold a transcript.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.senders)
}

// Sweep drops idle, unlocked transcripts and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for sender, st := range s.senders {
		if s.expiredLocked(st, now) {
			delete(s.senders, sender)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps on every tick until ctx is done. onSweep, when set,
// receives the removed count and the remaining sender count.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, onSweep func(removed, remaining int)) {
	if interval <= 0 || s.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep()
			if onSweep != nil {
				onSweep(removed, s.Len())
			}
		}
	}
}

func (s *MemoryStore) stateLocked(sender string) *senderState {
	now := s.now()
	st, ok := s.senders[sender]
	if ok && s.expiredLocked(st, now) {
		st.turns = nil
	}
	if !ok {
		st = &senderState{}
		s.senders[sender] = st
	}
	if st.lastActive.IsZero() || st.turns == nil {
		st.lastActive = now
	}
	return st
}

func (s *MemoryStore) expiredLocked(st *senderState, now time.Time) bool {
	if s.idleTTL <= 0 || st.holders > 0 {
		return false
	}
	return now.Sub(st.lastActive) > s.idleTTL
}

// trimTurns keeps the newest max turns and never leaves an assistant turn at
// the head, so the window always opens on a user message.
func trimTurns(turns Transcript, max int) Transcript {
	drop := len(turns) - max
	for drop < len(turns) && turns[drop].Role == ChatRoleAssistant {
		drop++
	}
	out := make(Transcript, len(turns)-drop)
	copy(out, turns[drop:])
	return out
}
