package core

// service_rollback.go implements the rollback executor. A rollback
// reverses exactly one prior batch using its snapshot: inserted rows are
// deleted, mutated rows are restored to their backed-up field values, and
// the snapshot is marked rolled back, all in one atomic transaction.
//
// Rollback does not detect overlapping edits made by intervening batches;
// it restores the backed-up values unconditionally. Rolled-back snapshots
// are retained for audit and can never be rolled back a second time.

import (
	"context"
	"errors"
	"fmt"
)

// Rollback reverses the batch recorded in the given snapshot.
// Returns ErrSnapshotNotFound or ErrAlreadyRolledBack when the
// preconditions fail, and a TransactionError when the store aborts.
// Rows that have since been deleted by other means are skipped:
// inserted ids silently, backup entries with a non-fatal warning.
func (s *Service) Rollback(ctx context.Context, snapshotID string) (RollbackResult, error) {
	result := RollbackResult{SnapshotID: snapshotID}

	snap, ok, err := s.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return result, fmt.Errorf("get snapshot: %w", err)
	}
	if !ok {
		return result, ErrSnapshotNotFound
	}
	if snap.RolledBack {
		return result, ErrAlreadyRolledBack
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		// Re-check inside the transaction so two concurrent rollbacks of
		// the same snapshot cannot both proceed.
		current, ok, err := tx.GetSnapshot(ctx, snapshotID)
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		if !ok {
			return ErrSnapshotNotFound
		}
		if current.RolledBack {
			return ErrAlreadyRolledBack
		}

		for _, id := range current.UpdateDetails.InsertedRecordIDs {
			deleted, err := tx.DeleteContact(ctx, id)
			if err != nil {
				return fmt.Errorf("delete inserted contact %d: %w", id, err)
			}
			if deleted {
				result.DeletedCount++
			}
		}

		for _, backup := range current.RecordsBackup {
			_, exists, err := tx.GetContactByID(ctx, backup.ID)
			if err != nil {
				return fmt.Errorf("load contact %d: %w", backup.ID, err)
			}
			if !exists {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("record %d no longer exists, skipped", backup.ID))
				continue
			}
			restored := backup
			if err := tx.UpdateContact(ctx, &restored); err != nil {
				return fmt.Errorf("restore contact %d: %w", backup.ID, err)
			}
			result.RestoredCount++
		}

		if err := tx.MarkSnapshotRolledBack(ctx, snapshotID); err != nil {
			return fmt.Errorf("mark rolled back: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) || errors.Is(err, ErrAlreadyRolledBack) {
			return RollbackResult{SnapshotID: snapshotID}, err
		}
		return RollbackResult{SnapshotID: snapshotID}, &TransactionError{Op: "rollback", Err: err}
	}

	return result, nil
}
