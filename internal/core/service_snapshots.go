package core

// service_snapshots.go provides the snapshot listing and retention
// operations. Snapshots are append-only; nothing here ever edits one.
// Retention is policy, not correctness: rolled-back snapshots are kept
// until an operator (or the retention sweep) deletes them.

import (
	"context"
	"fmt"
	"time"
)

// ListSnapshots returns all snapshots, newest first, including their
// frozen change previews.
func (s *Service) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	return s.store.ListSnapshots(ctx)
}

// GetSnapshot returns a single snapshot by id.
func (s *Service) GetSnapshot(ctx context.Context, id string) (Snapshot, error) {
	snap, ok, err := s.store.GetSnapshot(ctx, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return snap, nil
}

// DeleteSnapshot removes one snapshot. Deleting a snapshot forfeits the
// ability to roll its batch back.
func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteSnapshot(ctx, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if !deleted {
		return ErrSnapshotNotFound
	}
	return nil
}

// DeleteAllSnapshots removes snapshots older than the given number of
// days; olderThanDays <= 0 removes every snapshot. Returns the count
// deleted.
func (s *Service) DeleteAllSnapshots(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC()
	if olderThanDays > 0 {
		cutoff = cutoff.AddDate(0, 0, -olderThanDays)
	}
	n, err := s.store.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return n, nil
}
