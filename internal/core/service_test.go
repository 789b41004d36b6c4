package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alphaops/contactsync/internal/core"
	"github.com/alphaops/contactsync/internal/store"
)

func newTestService(t *testing.T) (*core.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc, err := core.NewService(mem)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, mem
}

func johnSmith() core.Contact {
	return core.Contact{
		Company:  "Acme",
		Name:     "John",
		Surname:  "Smith",
		Email:    "john@x.com",
		Position: "Engineer",
		Phone:    "555-1234",
	}
}

// ----------------------------------------------------------------------------
// Reconcile Tests
// ----------------------------------------------------------------------------

func TestReconcileCosmeticReformatMatchesBoth(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(johnSmith())

	batch, err := svc.Reconcile(context.Background(), []core.IncomingRecord{{
		Company: "Acme", Name: "John", Surname: "Smith",
		Email: " JOHN@X.com ", Position: "Engineer", Phone: "(555) 1234",
	}}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(batch.Updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(batch.Updates))
	}
	u := batch.Updates[0]
	if u.ID != ids[0] {
		t.Errorf("update target id = %d, want %d", u.ID, ids[0])
	}
	if u.MatchType != core.MatchBoth {
		t.Errorf("match type = %q, want %q", u.MatchType, core.MatchBoth)
	}
	if u.IdentityConflict {
		t.Error("unexpected identity conflict")
	}
	if len(u.Changes) != 0 {
		t.Errorf("changes = %v, want empty (cosmetic reformat only)", u.Changes)
	}
	if batch.Summary.UpdatedCount != 1 || batch.Summary.NewCount != 0 {
		t.Errorf("summary = %+v, want 1 update, 0 new", batch.Summary)
	}
}

func TestReconcileNewRecord(t *testing.T) {
	svc, _ := newTestService(t)

	batch, err := svc.Reconcile(context.Background(), []core.IncomingRecord{{
		Name: "Jane", Email: "jane@y.com",
	}}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(batch.NewRecords) != 1 {
		t.Fatalf("got %d new records, want 1", len(batch.NewRecords))
	}
	if batch.NewRecords[0].MatchType != core.MatchNew {
		t.Errorf("match type = %q, want %q", batch.NewRecords[0].MatchType, core.MatchNew)
	}
	if batch.Summary.NewCount != 1 {
		t.Errorf("NewCount = %d, want 1", batch.Summary.NewCount)
	}
}

func TestReconcileSingleKeyMatches(t *testing.T) {
	svc, mem := newTestService(t)
	mem.Seed(johnSmith())

	tests := []struct {
		name         string
		record       core.IncomingRecord
		wantType     core.MatchType
		wantConflict bool
	}{
		{
			name:     "email only",
			record:   core.IncomingRecord{Name: "John", Email: "john@x.com"},
			wantType: core.MatchEmail,
		},
		{
			name:     "phone only",
			record:   core.IncomingRecord{Name: "John", Phone: "5551234"},
			wantType: core.MatchPhone,
		},
		{
			name:         "email match with different phone",
			record:       core.IncomingRecord{Email: "john@x.com", Phone: "999-0000"},
			wantType:     core.MatchEmail,
			wantConflict: true,
		},
		{
			name:         "phone match with different email",
			record:       core.IncomingRecord{Email: "other@z.com", Phone: "555-1234"},
			wantType:     core.MatchPhone,
			wantConflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := svc.Reconcile(context.Background(),
				[]core.IncomingRecord{tt.record}, core.ModeReplace)
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			if len(batch.Updates) != 1 {
				t.Fatalf("got %d updates, want 1", len(batch.Updates))
			}
			u := batch.Updates[0]
			if u.MatchType != tt.wantType {
				t.Errorf("match type = %q, want %q", u.MatchType, tt.wantType)
			}
			if u.IdentityConflict != tt.wantConflict {
				t.Errorf("identity conflict = %v, want %v", u.IdentityConflict, tt.wantConflict)
			}
			wantConflicts := 0
			if tt.wantConflict {
				wantConflicts = 1
			}
			if batch.Summary.IdentityConflictsCount != wantConflicts {
				t.Errorf("IdentityConflictsCount = %d, want %d",
					batch.Summary.IdentityConflictsCount, wantConflicts)
			}
		})
	}
}

func TestReconcileCrossMatchEmailWinsTieBreak(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(
		core.Contact{Name: "Alice", Email: "alice@x.com", Phone: "111-1111"},
		core.Contact{Name: "Bob", Email: "bob@x.com", Phone: "222-2222"},
	)

	// Email points at Alice, phone points at Bob: two distinct rows claim
	// this identity. Email wins; Bob is surfaced as the conflicting row.
	batch, err := svc.Reconcile(context.Background(), []core.IncomingRecord{{
		Name: "Mixed", Email: "alice@x.com", Phone: "222-2222",
	}}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(batch.Updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(batch.Updates))
	}
	u := batch.Updates[0]
	if u.ID != ids[0] {
		t.Errorf("target id = %d, want email match %d", u.ID, ids[0])
	}
	if u.MatchType != core.MatchEmail {
		t.Errorf("match type = %q, want %q", u.MatchType, core.MatchEmail)
	}
	if !u.IdentityConflict {
		t.Error("want identity conflict for cross-match")
	}
	if u.ConflictingID != ids[1] {
		t.Errorf("conflicting id = %d, want %d", u.ConflictingID, ids[1])
	}
}

func TestReconcileAppendModeProjection(t *testing.T) {
	svc, mem := newTestService(t)
	mem.Seed(johnSmith())

	batch, err := svc.Reconcile(context.Background(), []core.IncomingRecord{
		{Name: "John", Email: "john@x.com", Position: "CTO"},
		{Name: "Jane", Email: "jane@y.com"},
	}, core.ModeAppend)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(batch.Updates) != 0 {
		t.Errorf("append mode produced %d updates, want 0", len(batch.Updates))
	}
	if len(batch.Duplicates) != 1 {
		t.Fatalf("got %d duplicates, want 1", len(batch.Duplicates))
	}
	if batch.Duplicates[0].Existing.Email != "john@x.com" {
		t.Errorf("duplicate existing = %+v, want john@x.com row", batch.Duplicates[0].Existing)
	}
	if len(batch.NewRecords) != 1 || batch.NewRecords[0].Record.Name != "Jane" {
		t.Fatalf("new records = %+v, want only Jane", batch.NewRecords)
	}
	if batch.Summary.DuplicatesCount != 1 || batch.Summary.NewCount != 1 {
		t.Errorf("summary = %+v, want 1 duplicate, 1 new", batch.Summary)
	}
}

func TestReconcileWithinBatchDedup(t *testing.T) {
	svc, _ := newTestService(t)

	// Three records share the same normalized email; only the last
	// occurrence survives.
	batch, err := svc.Reconcile(context.Background(), []core.IncomingRecord{
		{Name: "First", Email: "same@x.com"},
		{Name: "Second", Email: "SAME@X.COM"},
		{Name: "Third", Email: " same@x.com "},
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(batch.NewRecords) != 1 {
		t.Fatalf("got %d new records, want 1 after dedup", len(batch.NewRecords))
	}
	if got := batch.NewRecords[0].Record.Name; got != "Third" {
		t.Errorf("surviving record = %q, want last occurrence %q", got, "Third")
	}
}

func TestReconcileDedupByPhonePreservesOrder(t *testing.T) {
	svc, _ := newTestService(t)

	batch, err := svc.Reconcile(context.Background(), []core.IncomingRecord{
		{Name: "A", Phone: "111-1111"},
		{Name: "B", Phone: "222-2222"},
		{Name: "C", Phone: "(111) 1111"}, // collapses A
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(batch.NewRecords) != 2 {
		t.Fatalf("got %d new records, want 2", len(batch.NewRecords))
	}
	if batch.NewRecords[0].Record.Name != "B" || batch.NewRecords[1].Record.Name != "C" {
		t.Errorf("order = [%s %s], want [B C]",
			batch.NewRecords[0].Record.Name, batch.NewRecords[1].Record.Name)
	}
}

func TestReconcileSameRowViaDifferentKeys(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(johnSmith())

	// Neither record shares a normalized key with the other, so the
	// key-based dedup keeps both; they still resolve to the same row.
	batch, err := svc.Reconcile(context.Background(), []core.IncomingRecord{
		{Name: "ByEmail", Email: "john@x.com"},
		{Name: "ByPhone", Phone: "5551234"},
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(batch.Updates) != 1 {
		t.Fatalf("got %d updates, want 1 (same row matched twice)", len(batch.Updates))
	}
	u := batch.Updates[0]
	if u.ID != ids[0] {
		t.Errorf("update target id = %d, want %d", u.ID, ids[0])
	}
	if u.NewRecord.Name != "ByPhone" {
		t.Errorf("kept record = %q, want last occurrence ByPhone", u.NewRecord.Name)
	}
	if batch.Summary.UpdatedCount != 1 {
		t.Errorf("UpdatedCount = %d, want 1", batch.Summary.UpdatedCount)
	}
}

func TestReconcileMissingIdentityFailsBatch(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Reconcile(context.Background(), []core.IncomingRecord{
		{Name: "Ok", Email: "ok@x.com"},
		{Name: "Bad", Company: "Acme"}, // no email, no phone
	}, core.ModeReplace)

	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if vErr.Row != 1 {
		t.Errorf("Row = %d, want 1", vErr.Row)
	}
}

func TestReconcileInvalidMode(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Reconcile(context.Background(),
		[]core.IncomingRecord{{Email: "a@b.c"}}, core.UpdateMode("merge"))
	if !errors.Is(err, core.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
}

func TestReconcileKeptCount(t *testing.T) {
	svc, mem := newTestService(t)
	mem.Seed(
		core.Contact{Name: "A", Email: "a@x.com"},
		core.Contact{Name: "B", Email: "b@x.com"},
		core.Contact{Name: "C", Email: "c@x.com"},
	)

	batch, err := svc.Reconcile(context.Background(), []core.IncomingRecord{
		{Name: "A2", Email: "a@x.com"},
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if batch.Summary.KeptCount != 2 {
		t.Errorf("KeptCount = %d, want 2 untouched rows", batch.Summary.KeptCount)
	}
}

// ----------------------------------------------------------------------------
// Apply Tests
// ----------------------------------------------------------------------------

func TestApplyFullBatch(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(johnSmith())
	ctx := context.Background()

	batch, err := svc.Reconcile(ctx, []core.IncomingRecord{
		{Company: "Acme", Name: "John", Surname: "Smith",
			Email: "john@x.com", Position: "CTO", Phone: "555-1234"},
		{Name: "Jane", Email: "jane@y.com"},
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	result, err := svc.Apply(ctx, batch, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.UpdatedCount != 1 || result.InsertedCount != 1 {
		t.Errorf("result = %+v, want 1 updated, 1 inserted", result)
	}
	if result.SnapshotID == "" {
		t.Fatal("missing snapshot id")
	}

	updated, ok, err := mem.GetContactByID(ctx, ids[0])
	if err != nil || !ok {
		t.Fatalf("GetContactByID: ok=%v err=%v", ok, err)
	}
	if updated.Position != "CTO" {
		t.Errorf("Position = %q, want CTO", updated.Position)
	}

	total, _ := mem.CountContacts(ctx)
	if total != 2 {
		t.Errorf("contact count = %d, want 2", total)
	}

	snap, err := svc.GetSnapshot(ctx, result.SnapshotID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(snap.RecordsBackup) != 1 || snap.RecordsBackup[0].Position != "Engineer" {
		t.Errorf("backup = %+v, want pre-update Engineer row", snap.RecordsBackup)
	}
	if snap.UpdateDetails.EstimatedUpdatedCount != 1 || snap.UpdateDetails.EstimatedInsertedCount != 1 {
		t.Errorf("update details = %+v, want 1/1 estimates", snap.UpdateDetails)
	}
	if len(snap.UpdateDetails.InsertedRecordIDs) != 1 {
		t.Errorf("inserted ids = %v, want exactly one", snap.UpdateDetails.InsertedRecordIDs)
	}
	if snap.RolledBack {
		t.Error("fresh snapshot marked rolled back")
	}
}

func TestApplySelectionFiltering(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(
		core.Contact{Name: "A", Email: "a@x.com", Position: "old"},
		core.Contact{Name: "B", Email: "b@x.com", Position: "old"},
	)
	ctx := context.Background()

	batch, err := svc.Reconcile(ctx, []core.IncomingRecord{
		{Name: "A", Email: "a@x.com", Position: "new"},
		{Name: "B", Email: "b@x.com", Position: "new"},
		{Name: "C", Email: "c@x.com"},
		{Name: "D", Email: "d@x.com"},
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	sel := &core.Selection{Updates: []int64{ids[0]}, Inserts: []int{1}}
	result, err := svc.Apply(ctx, batch, sel)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.UpdatedCount != 1 || result.InsertedCount != 1 {
		t.Errorf("result = %+v, want 1 updated, 1 inserted", result)
	}

	a, _, _ := mem.GetContactByID(ctx, ids[0])
	b, _, _ := mem.GetContactByID(ctx, ids[1])
	if a.Position != "new" {
		t.Errorf("selected row not updated: %+v", a)
	}
	if b.Position != "old" {
		t.Errorf("unselected row was updated: %+v", b)
	}

	if _, ok := findByEmail(ctx, mem, "d@x.com"); !ok {
		t.Error("selected insert D missing")
	}
	if _, ok := findByEmail(ctx, mem, "c@x.com"); ok {
		t.Error("unselected insert C was created")
	}

	// The frozen preview mirrors the selection, not the full batch.
	snap, err := svc.GetSnapshot(ctx, result.SnapshotID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(snap.ChangePreview.Updates) != 1 || len(snap.ChangePreview.NewRecords) != 1 {
		t.Errorf("preview has %d updates, %d inserts, want 1 and 1",
			len(snap.ChangePreview.Updates), len(snap.ChangePreview.NewRecords))
	}
}

func findByEmail(ctx context.Context, s core.Store, email string) (core.Contact, bool) {
	c, ok, _ := s.GetContactByEmail(ctx, core.NormalizeEmail(email))
	return c, ok
}

func TestApplyBacksUpEachRowOnce(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(johnSmith())

	// Apply accepts batches posted over the wire, so duplicate target
	// ids can arrive even without going through Reconcile.
	dup := core.UpdateTarget{
		ID:        ids[0],
		NewRecord: core.IncomingRecord{Name: "First", Email: "john@x.com"},
		MatchType: core.MatchEmail,
	}
	dup2 := dup
	dup2.NewRecord.Name = "Second"
	batch := &core.Batch{
		Mode:    core.ModeReplace,
		Updates: []core.UpdateTarget{dup, dup2},
	}

	result, err := svc.Apply(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	snap, err := svc.GetSnapshot(context.Background(), result.SnapshotID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(snap.RecordsBackup) != 1 {
		t.Fatalf("records_backup holds %d entries for one row, want 1", len(snap.RecordsBackup))
	}
	if snap.RecordsBackup[0].ID != ids[0] {
		t.Errorf("backup id = %d, want %d", snap.RecordsBackup[0].ID, ids[0])
	}
	if snap.RecordsBackup[0].Name != "John" {
		t.Errorf("backup name = %q, want pre-update John", snap.RecordsBackup[0].Name)
	}

	got, ok, err := svc.GetContact(context.Background(), ids[0])
	if err != nil || !ok {
		t.Fatalf("GetContact: ok=%v err=%v", ok, err)
	}
	if got.Name != "Second" {
		t.Errorf("name after apply = %q, want last update Second", got.Name)
	}
}

func TestApplyEmptySelectionIsNoOp(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	batch, err := svc.Reconcile(ctx, []core.IncomingRecord{
		{Name: "X", Email: "x@x.com"},
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	result, err := svc.Apply(ctx, batch, &core.Selection{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.SnapshotID != "" || result.UpdatedCount != 0 || result.InsertedCount != 0 {
		t.Errorf("result = %+v, want zero-value no-op", result)
	}

	snaps, err := svc.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("empty apply created %d snapshots", len(snaps))
	}
	total, _ := mem.CountContacts(ctx)
	if total != 0 {
		t.Errorf("empty apply inserted rows: count = %d", total)
	}
}

func TestApplyAppendModeNeverMutates(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(johnSmith())
	ctx := context.Background()

	before, _, _ := mem.GetContactByID(ctx, ids[0])

	batch, err := svc.Reconcile(ctx, []core.IncomingRecord{
		{Name: "John", Email: "john@x.com", Position: "CTO"},
		{Name: "Jane", Email: "jane@y.com"},
	}, core.ModeAppend)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	result, err := svc.Apply(ctx, batch, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.UpdatedCount != 0 || result.InsertedCount != 1 {
		t.Errorf("result = %+v, want 0 updated, 1 inserted", result)
	}

	after, _, _ := mem.GetContactByID(ctx, ids[0])
	if after != before {
		t.Errorf("append mode mutated existing row:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestApplyReplaceNeverShrinks(t *testing.T) {
	svc, mem := newTestService(t)
	mem.Seed(
		core.Contact{Name: "A", Email: "a@x.com"},
		core.Contact{Name: "B", Email: "b@x.com"},
		core.Contact{Name: "C", Email: "c@x.com"},
	)
	ctx := context.Background()

	before, _ := mem.CountContacts(ctx)

	batch, err := svc.Reconcile(ctx, []core.IncomingRecord{
		{Name: "A2", Email: "a@x.com"},
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := svc.Apply(ctx, batch, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	after, _ := mem.CountContacts(ctx)
	if after < before {
		t.Errorf("replace shrank the table: %d -> %d", before, after)
	}
}

// ----------------------------------------------------------------------------
// Rollback Tests
// ----------------------------------------------------------------------------

func TestRollbackRoundTrip(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(johnSmith())
	ctx := context.Background()

	original, _, _ := mem.GetContactByID(ctx, ids[0])

	batch, err := svc.Reconcile(ctx, []core.IncomingRecord{
		{Company: "Globex", Name: "John", Surname: "Smith",
			Email: "john@x.com", Position: "CTO", Phone: "555-1234"},
		{Name: "Jane", Email: "jane@y.com"},
	}, core.ModeReplace)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	applied, err := svc.Apply(ctx, batch, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rb, err := svc.Rollback(ctx, applied.SnapshotID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rb.RestoredCount != 1 || rb.DeletedCount != 1 {
		t.Errorf("rollback result = %+v, want 1 restored, 1 deleted", rb)
	}
	if len(rb.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", rb.Warnings)
	}

	restored, ok, _ := mem.GetContactByID(ctx, ids[0])
	if !ok {
		t.Fatal("restored row missing")
	}
	if restored != original {
		t.Errorf("round trip not field-identical:\noriginal %+v\nrestored %+v", original, restored)
	}

	if _, ok := findByEmail(ctx, mem, "jane@y.com"); ok {
		t.Error("inserted row survived rollback")
	}

	total, _ := mem.CountContacts(ctx)
	if total != 1 {
		t.Errorf("contact count after rollback = %d, want 1", total)
	}

	snap, err := svc.GetSnapshot(ctx, applied.SnapshotID)
	if err != nil {
		t.Fatalf("snapshot gone after rollback: %v", err)
	}
	if !snap.RolledBack {
		t.Error("snapshot not marked rolled back")
	}
}

func TestRollbackTwiceFails(t *testing.T) {
	svc, mem := newTestService(t)
	mem.Seed(johnSmith())
	ctx := context.Background()

	batch, _ := svc.Reconcile(ctx, []core.IncomingRecord{
		{Name: "John", Email: "john@x.com", Position: "CTO"},
	}, core.ModeReplace)
	applied, err := svc.Apply(ctx, batch, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := svc.Rollback(ctx, applied.SnapshotID); err != nil {
		t.Fatalf("first Rollback: %v", err)
	}
	_, err = svc.Rollback(ctx, applied.SnapshotID)
	if !errors.Is(err, core.ErrAlreadyRolledBack) {
		t.Fatalf("second rollback err = %v, want ErrAlreadyRolledBack", err)
	}
}

func TestRollbackUnknownSnapshot(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Rollback(context.Background(), "3b2c0a14-0000-0000-0000-000000000000")
	if !errors.Is(err, core.ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestRollbackSkipsMissingRows(t *testing.T) {
	svc, mem := newTestService(t)
	ids := mem.Seed(
		core.Contact{Name: "A", Email: "a@x.com", Position: "old"},
		core.Contact{Name: "B", Email: "b@x.com", Position: "old"},
	)
	ctx := context.Background()

	batch, _ := svc.Reconcile(ctx, []core.IncomingRecord{
		{Name: "A", Email: "a@x.com", Position: "new"},
		{Name: "B", Email: "b@x.com", Position: "new"},
	}, core.ModeReplace)
	applied, err := svc.Apply(ctx, batch, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Someone deletes row A between apply and rollback.
	if _, err := mem.DeleteContact(ctx, ids[0]); err != nil {
		t.Fatalf("DeleteContact: %v", err)
	}

	rb, err := svc.Rollback(ctx, applied.SnapshotID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rb.RestoredCount != 1 {
		t.Errorf("RestoredCount = %d, want 1", rb.RestoredCount)
	}
	if len(rb.Warnings) != 1 || !strings.Contains(rb.Warnings[0], "no longer exists") {
		t.Errorf("warnings = %v, want one skip warning", rb.Warnings)
	}

	// The missing row is skipped, not recreated.
	if _, ok, _ := mem.GetContactByID(ctx, ids[0]); ok {
		t.Error("rollback recreated a deleted row")
	}
	b, _, _ := mem.GetContactByID(ctx, ids[1])
	if b.Position != "old" {
		t.Errorf("surviving row not restored: %+v", b)
	}
}

func TestRollbackSkipsAlreadyDeletedInserts(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	batch, _ := svc.Reconcile(ctx, []core.IncomingRecord{
		{Name: "Jane", Email: "jane@y.com"},
	}, core.ModeReplace)
	applied, err := svc.Apply(ctx, batch, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	snap, _ := svc.GetSnapshot(ctx, applied.SnapshotID)
	for _, id := range snap.UpdateDetails.InsertedRecordIDs {
		mem.DeleteContact(ctx, id)
	}

	rb, err := svc.Rollback(ctx, applied.SnapshotID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rb.DeletedCount != 0 {
		t.Errorf("DeletedCount = %d, want 0 for already-deleted inserts", rb.DeletedCount)
	}
	if len(rb.Warnings) != 0 {
		t.Errorf("warnings = %v, want none for missing inserts", rb.Warnings)
	}
}

// ----------------------------------------------------------------------------
// Snapshot Management Tests
// ----------------------------------------------------------------------------

func TestSnapshotLifecycle(t *testing.T) {
	svc, mem := newTestService(t)
	mem.Seed(johnSmith())
	ctx := context.Background()

	var snapshotIDs []string
	for _, pos := range []string{"CTO", "CEO"} {
		batch, _ := svc.Reconcile(ctx, []core.IncomingRecord{
			{Name: "John", Email: "john@x.com", Position: pos},
		}, core.ModeReplace)
		applied, err := svc.Apply(ctx, batch, nil)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		snapshotIDs = append(snapshotIDs, applied.SnapshotID)
	}

	snaps, err := svc.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}

	if err := svc.DeleteSnapshot(ctx, snapshotIDs[0]); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if err := svc.DeleteSnapshot(ctx, snapshotIDs[0]); !errors.Is(err, core.ErrSnapshotNotFound) {
		t.Errorf("second delete err = %v, want ErrSnapshotNotFound", err)
	}
	if _, err := svc.GetSnapshot(ctx, snapshotIDs[0]); !errors.Is(err, core.ErrSnapshotNotFound) {
		t.Errorf("GetSnapshot after delete err = %v, want ErrSnapshotNotFound", err)
	}

	deleted, err := svc.DeleteAllSnapshots(ctx, 0)
	if err != nil {
		t.Fatalf("DeleteAllSnapshots: %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteAllSnapshots removed %d, want 1", deleted)
	}
	snaps, _ = svc.ListSnapshots(ctx)
	if len(snaps) != 0 {
		t.Errorf("%d snapshots remain after delete-all", len(snaps))
	}
}

func TestApplyValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Apply(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("want error for nil batch")
	}

	_, err = svc.Apply(context.Background(), &core.Batch{Mode: "merge"}, nil)
	if !errors.Is(err, core.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
}
