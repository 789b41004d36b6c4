package core

// service_apply.go implements the apply/commit engine. A commit is one
// atomic transaction: snapshot first, then updates, then inserts, then the
// deferred inserted-id fill-in on the snapshot. Any failure at any step
// aborts the whole transaction; nothing partially persists.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Apply executes the selected mutations of a classified batch. A nil
// selection applies every classified target; a non-nil empty selection
// applies nothing (and creates no snapshot).
//
// Replace mode never deletes or touches rows outside the selected set:
// unmatched rows are simply never written.
func (s *Service) Apply(ctx context.Context, batch *Batch, sel *Selection) (ApplyResult, error) {
	var result ApplyResult

	if batch == nil {
		return result, fmt.Errorf("nil batch")
	}
	if !batch.Mode.Valid() {
		return result, fmt.Errorf("%w: %q", ErrInvalidMode, batch.Mode)
	}

	selectedUpdates := make([]UpdateTarget, 0, len(batch.Updates))
	for _, u := range batch.Updates {
		if sel.WantsUpdate(u.ID) {
			selectedUpdates = append(selectedUpdates, u)
		}
	}
	selectedInserts := make([]NewRecord, 0, len(batch.NewRecords))
	for i, n := range batch.NewRecords {
		if sel.WantsInsert(i) {
			selectedInserts = append(selectedInserts, n)
		}
	}

	if len(selectedUpdates) == 0 && len(selectedInserts) == 0 {
		return result, nil
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		snap, err := createSnapshot(ctx, tx, batch, selectedUpdates, selectedInserts)
		if err != nil {
			return err
		}

		for _, target := range selectedUpdates {
			if err := applyUpdate(ctx, tx, target); err != nil {
				return err
			}
			result.UpdatedCount++
		}

		insertedIDs := make([]int64, 0, len(selectedInserts))
		for _, n := range selectedInserts {
			c := contactFromIncoming(n.Record)
			if err := tx.InsertContact(ctx, &c); err != nil {
				return fmt.Errorf("insert contact: %w", err)
			}
			insertedIDs = append(insertedIDs, c.ID)
			result.InsertedCount++
		}

		if len(insertedIDs) > 0 {
			if err := tx.SetInsertedRecordIDs(ctx, snap.ID, insertedIDs); err != nil {
				return fmt.Errorf("record inserted ids: %w", err)
			}
		}

		result.SnapshotID = snap.ID
		return nil
	})
	if err != nil {
		return ApplyResult{}, &TransactionError{Op: "apply", Err: err}
	}

	return result, nil
}

// createSnapshot captures the full current field set of every selected
// update target plus the filtered change preview, before any mutation.
// Each mutated row is backed up exactly once, even when a batch posted
// over the wire carries the same target id more than once.
func createSnapshot(ctx context.Context, tx Store, batch *Batch, updates []UpdateTarget, inserts []NewRecord) (*Snapshot, error) {
	backup := make([]Contact, 0, len(updates))
	backedUp := make(map[int64]struct{}, len(updates))
	for _, target := range updates {
		if _, done := backedUp[target.ID]; done {
			continue
		}
		current, ok, err := tx.GetContactByID(ctx, target.ID)
		if err != nil {
			return nil, fmt.Errorf("backup contact %d: %w", target.ID, err)
		}
		if !ok {
			return nil, fmt.Errorf("update target %d no longer exists", target.ID)
		}
		backedUp[target.ID] = struct{}{}
		backup = append(backup, current)
	}

	now := time.Now().UTC()
	snap := &Snapshot{
		ID:            uuid.New().String(),
		Name:          fmt.Sprintf("Bulk Update - %s", now.Format("2006-01-02 15:04:05")),
		Timestamp:     now,
		RecordsBackup: backup,
		ChangePreview: ChangePreview{
			Updates:    updates,
			NewRecords: inserts,
			Summary:    batch.Summary,
		},
		UpdateDetails: UpdateDetails{
			EstimatedUpdatedCount:  len(updates),
			EstimatedInsertedCount: len(inserts),
			InsertedRecordIDs:      []int64{},
		},
	}

	if err := tx.InsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return snap, nil
}

// applyUpdate overwrites every mapped field of the target row with the
// incoming values and refreshes updated_at. Identity fields whose
// normalized value is unchanged keep their stored display form, so a
// cosmetic reformat of the same address or number does not churn the row.
// The store recomputes the normalized columns from the final values.
func applyUpdate(ctx context.Context, tx Store, target UpdateTarget) error {
	current, ok, err := tx.GetContactByID(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("load contact %d: %w", target.ID, err)
	}
	if !ok {
		return fmt.Errorf("update target %d no longer exists", target.ID)
	}

	in := target.NewRecord
	current.Company = in.Company
	current.Name = in.Name
	current.Surname = in.Surname
	current.Position = in.Position
	if current.EmailNormalized != NormalizeEmail(in.Email) {
		current.Email = in.Email
	}
	if current.PhoneNormalized != NormalizePhone(in.Phone) {
		current.Phone = in.Phone
	}
	current.UpdatedAt = time.Now().UTC()

	if err := tx.UpdateContact(ctx, &current); err != nil {
		return fmt.Errorf("update contact %d: %w", target.ID, err)
	}
	return nil
}

// contactFromIncoming builds a fresh contact row from its mapped values.
// The store assigns the id, the normalized columns, and created_at.
func contactFromIncoming(in IncomingRecord) Contact {
	return Contact{
		Company:  in.Company,
		Name:     in.Name,
		Surname:  in.Surname,
		Email:    in.Email,
		Position: in.Position,
		Phone:    in.Phone,
	}
}
