package store

import (
	"time"

	"github.com/asdine/storm"
	"github.com/asdine/storm/q"

	"github.com/convictiond/oracled/types"
)

func (s *StormStore) GetSyncState(key string) (string, bool, error) {
	var entry types.SyncStateEntry
	err := s.syncState().One("Key", key, &entry)
	if err == storm.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("GetSyncState", KindTransient, err)
	}
	return entry.Value, true, nil
}

func (s *StormStore) SetSyncState(key, value string) error {
	return wrapErr("SetSyncState", KindTransient, s.syncState().Save(&types.SyncStateEntry{Key: key, Value: value}))
}

func (s *StormStore) SaveSnapshot(snap types.Snapshot) error {
	return wrapErr("SaveSnapshot", KindTransient, s.snapshots().Save(&snap))
}

func (s *StormStore) ListSnapshots(since time.Time, limit int) ([]types.Snapshot, error) {
	var all []types.Snapshot
	query := s.snapshots().Select(q.Gte("CreatedAt", since)).OrderBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&all); err != nil && err != storm.ErrNotFound {
		return nil, wrapErr("ListSnapshots", KindTransient, err)
	}
	return all, nil
}
