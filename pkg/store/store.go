// Package store implements bebo's sequence-numbered, content-addressed
// message store: dedup by content key, triple-limit eviction (count,
// bytes, age), and per-listener poll cursors.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

// Default limits, matching the original's (deliberately low, for
// testability) defaults.
const (
	DefaultMaxCount = 100000
	DefaultMaxSize  = 100000000
	DefaultMaxAge   = 300 * time.Second
)

// State is the externally-visible store identity and sequence bounds,
// returned by State() and embedded in the /message GET response.
type State struct {
	UUID     string `json:"uuid"`
	Least    uint64 `json:"least,omitempty"`
	Greatest uint64 `json:"greatest,omitempty"`
	HasRange bool   `json:"-"`
}

// Store holds the most recent RelayMessages seen by this node, bounded
// by count, total byte size, and age. All methods are safe for
// concurrent use; a single coarse mutex is sufficient given the cost of
// each operation (spec §5).
type Store struct {
	maxCount uint64
	maxSize  uint64
	maxAge   time.Duration

	mu             sync.Mutex
	uuid           string
	leastSeq       uint64
	nextSeq        uint64
	size           uint64
	byKey          map[string]*wire.RelayMessage
	bySeq          map[uint64]*wire.RelayMessage
	seenByListener map[string]map[string]struct{}

	now func() time.Time
}

// Option configures a Store at construction.
type Option func(*Store)

// WithMaxCount overrides the maximum number of live messages.
func WithMaxCount(n uint64) Option { return func(s *Store) { s.maxCount = n } }

// WithMaxSize overrides the maximum total payload bytes.
func WithMaxSize(n uint64) Option { return func(s *Store) { s.maxSize = n } }

// WithMaxAge overrides the maximum message age.
func WithMaxAge(d time.Duration) Option { return func(s *Store) { s.maxAge = d } }

// New returns an empty Store with the given limits.
func New(opts ...Option) *Store {
	s := &Store{
		maxCount: DefaultMaxCount,
		maxSize:  DefaultMaxSize,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.flushLocked()
	return s
}

// Add inserts msg if its content key is new, or returns the existing
// record if it was already present. On insertion, purge runs
// immediately afterward to enforce the triple limits.
//
// Returns (existing, seq): existing is nil iff the message was newly
// inserted, in which case seq is its freshly assigned sequence number;
// otherwise seq is the existing record's sequence number.
func (s *Store) Add(msg *wire.RelayMessage, now ...time.Time) (*wire.RelayMessage, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := msg.Key()
	if existing, ok := s.byKey[key]; ok {
		return existing, existing.SequenceNumber
	}

	seq := s.nextSeq
	s.nextSeq++
	if s.leastSeq == 0 {
		s.leastSeq = seq
	}
	msg.SequenceNumber = seq
	ts := s.resolveNow(now...)
	msg.Timestamp = ts.Unix()

	s.byKey[key] = msg
	s.bySeq[seq] = msg
	s.size += uint64(msg.Size())

	s.purgeLocked(ts)
	return nil, seq
}

func (s *Store) resolveNow(now ...time.Time) time.Time {
	if len(now) > 0 {
		return now[0]
	}
	return s.now()
}

// GetBySeq returns the record with the given sequence number, if live.
func (s *Store) GetBySeq(seq uint64) (*wire.RelayMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.bySeq[seq]
	return m, ok
}

// GetByKey returns the record with the given content key, if live.
func (s *Store) GetByKey(key string) (*wire.RelayMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byKey[key]
	return m, ok
}

// Contains reports whether msg's content key is currently live.
func (s *Store) Contains(msg *wire.RelayMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byKey[msg.Key()]
	return ok
}

// MessagesForListener returns every live message not yet returned to
// listenerID, and marks them as seen. The first call for a new
// listener ID returns everything currently in the store.
func (s *Store) MessagesForListener(listenerID string) []*wire.RelayMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.seenByListener[listenerID]
	if !ok {
		seen = make(map[string]struct{})
		s.seenByListener[listenerID] = seen
	}
	var out []*wire.RelayMessage
	for key, msg := range s.byKey {
		if _, already := seen[key]; already {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, msg)
	}
	return out
}

// GetRange returns up to count live (seq, message) pairs starting at
// first (or at the least live sequence number, if first == 0), skipping
// any sequence numbers already evicted.
func (s *Store) GetRange(first uint64, count uint64) []RangeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if first == 0 {
		first = s.leastSeq
	}
	end := first + count
	if end > s.nextSeq {
		end = s.nextSeq
	}
	var out []RangeEntry
	for i := first; i < end; i++ {
		if m, ok := s.bySeq[i]; ok {
			out = append(out, RangeEntry{Seq: i, Message: m})
		}
	}
	return out
}

// RangeEntry pairs a sequence number with its message, as returned by
// GetRange.
type RangeEntry struct {
	Seq     uint64
	Message *wire.RelayMessage
}

// Flush regenerates the store's identity UUID and clears every
// message, every listener cursor, and the size/sequence counters.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Store) flushLocked() {
	s.uuid = uuid.NewString()
	s.leastSeq = 0
	s.nextSeq = 1
	s.size = 0
	s.byKey = make(map[string]*wire.RelayMessage)
	s.bySeq = make(map[uint64]*wire.RelayMessage)
	s.seenByListener = make(map[string]map[string]struct{})
}

// State returns the store's identity and, if non-empty, its live
// sequence bounds.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{UUID: s.uuid}
	if s.leastSeq > 0 {
		st.Least = s.leastSeq
		st.Greatest = s.nextSeq - 1
		st.HasRange = true
	}
	return st
}

// NextSequence returns the sequence number that will be assigned to the
// next newly-added message.
func (s *Store) NextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

// Purge evicts the oldest live message, repeatedly, while any of the
// count/size/age limits is exceeded. Eviction is strictly FIFO by
// sequence number regardless of which limit triggered it.
func (s *Store) Purge(now ...time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.resolveNow(now...))
}

func (s *Store) purgeLocked(now time.Time) {
	for {
		msg := s.nextToPurgeLocked(now)
		if msg == nil {
			break
		}
		delete(s.bySeq, msg.SequenceNumber)
		s.leastSeq = msg.SequenceNumber + 1
		if s.leastSeq == s.nextSeq {
			s.leastSeq = 0
		}
		key := msg.Key()
		delete(s.byKey, key)
		for _, seen := range s.seenByListener {
			delete(seen, key)
		}
		sz := uint64(msg.Size())
		if sz > s.size {
			s.size = 0
		} else {
			s.size -= sz
		}
	}
}

func (s *Store) nextToPurgeLocked(now time.Time) *wire.RelayMessage {
	if s.leastSeq == 0 {
		return nil
	}
	msg := s.bySeq[s.leastSeq]
	if msg == nil {
		return nil
	}
	age := now.Sub(time.Unix(msg.Timestamp, 0))
	if age < 0 {
		age = 0
	}
	count := uint64(len(s.bySeq))
	if count > s.maxCount || s.size > s.maxSize || age > s.maxAge {
		return msg
	}
	return nil
}
