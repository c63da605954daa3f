package gate

import (
	"container/list"
	"sync"
	"time"

	"verify-gate/internal/bucketing"
)

// AttemptRecord is the throttle state of one client identity.
type AttemptRecord struct {
	Attempts      int
	LastAttemptAt time.Time
}

type ledgerEntry struct {
	identity string
	record   AttemptRecord
}

type shard struct {
	mu       sync.Mutex
	records  map[string]*list.Element
	lru      *list.List // front is most recently attempted
	capacity int        // 0 means unbounded
}

// Ledger stores AttemptRecords per client identity.
//
// Records are spread over shards by identity hash. Every read-modify-write for
// an identity happens under its shard lock, so two requests from the same
// identity never observe each other half way. A shard evicts its least
// recently attempted record when it reaches capacity, and Sweep drops records
// whose session timeout has already elapsed.
type Ledger struct {
	timeout time.Duration
	buckets *bucketing.BucketingManager
	shards  []*shard
}

// NewLedger creates a ledger. capacity is the total number of records kept
// across all shards; zero or less disables eviction. With fewer capacity slots
// than shards the shard count shrinks to capacity so every shard holds at
// least one record.
func NewLedger(timeout time.Duration, shards, capacity int) *Ledger {
	if capacity > 0 && capacity < shards {
		shards = capacity
	}
	buckets := bucketing.NewBucketingManager(shards)
	n := buckets.GetBuckets()

	l := &Ledger{
		timeout: timeout,
		buckets: buckets,
		shards:  make([]*shard, n),
	}
	for i := range l.shards {
		l.shards[i] = &shard{
			records:  make(map[string]*list.Element),
			lru:      list.New(),
			capacity: shardCapacity(capacity, n, i),
		}
	}
	return l
}

// shardCapacity splits total over n shards, the first total%n shards taking
// one extra slot, so the shard capacities sum to total exactly.
func shardCapacity(total, n, i int) int {
	if total <= 0 {
		return 0
	}
	c := total / n
	if i < total%n {
		c++
	}
	return c
}

// Timeout returns the session timeout used for lazy resets.
func (l *Ledger) Timeout() time.Duration {
	return l.timeout
}

// Txn is a view of one identity's record, valid only inside Update.
type Txn struct {
	shard    *shard
	identity string
	timeout  time.Duration
}

// Update runs fn while holding the lock that guards identity.
func (l *Ledger) Update(identity string, fn func(tx *Txn)) {
	s := l.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&Txn{shard: s, identity: identity, timeout: l.timeout})
}

// Get returns the stored record or a zero record. It never inserts.
func (l *Ledger) Get(identity string) AttemptRecord {
	var rec AttemptRecord
	l.Update(identity, func(tx *Txn) {
		rec = tx.Get()
	})
	return rec
}

// RecordAttempt applies the lazy reset, counts one attempt at now and stores
// the result.
func (l *Ledger) RecordAttempt(identity string, now time.Time) AttemptRecord {
	var rec AttemptRecord
	l.Update(identity, func(tx *Txn) {
		rec = tx.RecordAttempt(now)
	})
	return rec
}

// Clear removes the identity's record.
func (l *Ledger) Clear(identity string) {
	l.Update(identity, func(tx *Txn) {
		tx.Clear()
	})
}

// Sweep removes every record whose session timeout elapsed before now and
// returns how many were removed.
func (l *Ledger) Sweep(now time.Time) int {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for id, elem := range s.records {
			if now.Sub(elem.Value.(*ledgerEntry).record.LastAttemptAt) > l.timeout {
				s.lru.Remove(elem)
				delete(s.records, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored records.
func (l *Ledger) Len() int {
	total := 0
	for _, s := range l.shards {
		s.mu.Lock()
		total += len(s.records)
		s.mu.Unlock()
	}
	return total
}

func (l *Ledger) shardFor(identity string) *shard {
	return l.shards[l.buckets.GetBucket(identity)]
}

// Get returns the identity's record or a zero record without inserting.
func (tx *Txn) Get() AttemptRecord {
	if elem, ok := tx.shard.records[tx.identity]; ok {
		return elem.Value.(*ledgerEntry).record
	}
	return AttemptRecord{}
}

// RecordAttempt applies the lazy reset and counts one attempt at now,
// evicting the shard's least recent record when the shard is full.
func (tx *Txn) RecordAttempt(now time.Time) AttemptRecord {
	s := tx.shard

	elem, ok := s.records[tx.identity]
	if !ok {
		if s.capacity > 0 && s.lru.Len() >= s.capacity {
			s.evictOldest()
		}
		elem = s.lru.PushFront(&ledgerEntry{identity: tx.identity})
		s.records[tx.identity] = elem
	} else {
		s.lru.MoveToFront(elem)
	}

	entry := elem.Value.(*ledgerEntry)
	if now.Sub(entry.record.LastAttemptAt) > tx.timeout {
		entry.record.Attempts = 0
	}
	entry.record.Attempts++
	entry.record.LastAttemptAt = now
	return entry.record
}

// Clear removes the identity's record.
func (tx *Txn) Clear() {
	s := tx.shard
	if elem, ok := s.records[tx.identity]; ok {
		s.lru.Remove(elem)
		delete(s.records, tx.identity)
	}
}

func (s *shard) evictOldest() {
	elem := s.lru.Back()
	if elem == nil {
		return
	}
	s.lru.Remove(elem)
	delete(s.records, elem.Value.(*ledgerEntry).identity)
}
