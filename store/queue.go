package store

import (
	"sort"
	"time"

	"github.com/asdine/storm"
	bolt "go.etcd.io/bbolt"

	"github.com/convictiond/oracled/types"
)

// Enqueue is idempotent on key; a duplicate Enqueue raises priority to the
// max of the existing and requested priority (single-flight coalescing,
// spec.md §4.5).
func (s *StormStore) Enqueue(kind types.QueueKind, key string, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.queueNode(kind)
	var existing types.QueueEntry
	err := node.One("Key", key, &existing)
	switch {
	case err == storm.ErrNotFound:
		return wrapErr("Enqueue", KindTransient, node.Save(&types.QueueEntry{
			Key:       key,
			Priority:  priority,
			CreatedAt: time.Now().UTC(),
		}))
	case err != nil:
		return wrapErr("Enqueue", KindTransient, err)
	}
	if priority > existing.Priority {
		existing.Priority = priority
		return wrapErr("Enqueue", KindTransient, node.Update(&existing))
	}
	return nil
}

// Dequeue atomically selects the oldest entry (by priority desc, then
// CreatedAt asc) whose lease has expired, and marks it leased until
// now+leaseDuration. Running inside one bbolt write transaction is what
// guarantees no two workers can lease the same key, per spec.md §4.1's
// queue concurrency rule.
func (s *StormStore) Dequeue(kind types.QueueKind, leaseDuration time.Duration) (*types.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodeName := nodeWalletQueue
	if kind == types.QueueToken {
		nodeName = nodeTokenQueue
	}

	var picked *types.QueueEntry
	err := s.db.Bolt.Update(func(tx *bolt.Tx) error {
		node := s.db.WithTransaction(tx).From(nodeName)
		var all []types.QueueEntry
		if err := node.All(&all); err != nil && err != storm.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		var candidates []types.QueueEntry
		for _, e := range all {
			if e.LockedUntil == nil || e.LockedUntil.Before(now) {
				candidates = append(candidates, e)
			}
		}
		if len(candidates) == 0 {
			return nil
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Priority != candidates[j].Priority {
				return candidates[i].Priority > candidates[j].Priority
			}
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})
		chosen := candidates[0]
		lease := now.Add(leaseDuration)
		chosen.LockedUntil = &lease
		if err := node.Update(&chosen); err != nil {
			return err
		}
		picked = &chosen
		return nil
	})
	if err != nil {
		return nil, wrapErr("Dequeue", KindTransient, err)
	}
	return picked, nil
}

// CompleteQueueEntry removes the entry, ending its lease successfully.
func (s *StormStore) CompleteQueueEntry(kind types.QueueKind, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.queueNode(kind)
	err := node.DeleteStruct(&types.QueueEntry{Key: key})
	if err != nil && err != storm.ErrNotFound {
		return wrapErr("CompleteQueueEntry", KindTransient, err)
	}
	return nil
}

// FailQueueEntry increments attempts, records the cause, and clears the
// lease so another worker can retry after backoff, per spec.md §4.5.
func (s *StormStore) FailQueueEntry(kind types.QueueKind, key string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.queueNode(kind)
	var e types.QueueEntry
	if err := node.One("Key", key, &e); err != nil {
		return wrapErr("FailQueueEntry", KindTransient, err)
	}
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	e.LockedUntil = nil
	return wrapErr("FailQueueEntry", KindTransient, node.Update(&e))
}

// CleanupQueue drops entries with Attempts >= maxAttempts, per the
// background cleaner in spec.md §4.5.
func (s *StormStore) CleanupQueue(kind types.QueueKind, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.queueNode(kind)
	var all []types.QueueEntry
	if err := node.All(&all); err != nil && err != storm.ErrNotFound {
		return 0, wrapErr("CleanupQueue", KindTransient, err)
	}
	removed := 0
	for _, e := range all {
		if e.Attempts >= maxAttempts {
			if err := node.DeleteStruct(&e); err != nil && err != storm.ErrNotFound {
				return removed, wrapErr("CleanupQueue", KindTransient, err)
			}
			removed++
		}
	}
	return removed, nil
}
