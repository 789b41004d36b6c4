// Package core provides the business logic for contact bulk-import
// reconciliation: identity matching, change-set computation, transactional
// apply, and snapshot-based rollback. This package has no HTTP dependencies
// and can be driven by any frontend.
package core

import (
	"context"
	"time"
)

// UpdateMode controls how matched records are projected into writes.
type UpdateMode string

const (
	// ModeReplace updates matched rows and inserts unmatched rows.
	// No existing row is ever deleted.
	ModeReplace UpdateMode = "replace"

	// ModeAppend inserts only fully-new rows and skips any match as a
	// duplicate.
	ModeAppend UpdateMode = "append"
)

// Valid reports whether the mode is one of the two supported modes.
func (m UpdateMode) Valid() bool {
	return m == ModeReplace || m == ModeAppend
}

// MatchType classifies how an incoming record relates to the existing store.
type MatchType string

const (
	MatchNew   MatchType = "new"
	MatchEmail MatchType = "email_match"
	MatchPhone MatchType = "phone_match"
	MatchBoth  MatchType = "both_match"
)

// Contact is a persisted contact row. The normalized fields are derived
// from Email and Phone by the store layer and are never user-edited.
type Contact struct {
	ID              int64     `json:"id"`
	Company         string    `json:"company"`
	Name            string    `json:"name"`
	Surname         string    `json:"surname"`
	Email           string    `json:"email"`
	Position        string    `json:"position"`
	Phone           string    `json:"phone"`
	EmailNormalized string    `json:"email_normalized"`
	PhoneNormalized string    `json:"phone_normalized"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IncomingRecord holds the column-mapped raw values for one imported row.
// Values are never null; an unmapped column yields an empty string.
type IncomingRecord struct {
	Company  string `json:"Company"`
	Name     string `json:"Name"`
	Surname  string `json:"Surname"`
	Email    string `json:"Email"`
	Position string `json:"Position"`
	Phone    string `json:"Phone"`
}

// CanonicalFields lists the six field names of an IncomingRecord in
// display order. This is the wire contract with the column-mapping layer.
var CanonicalFields = []string{"Company", "Name", "Surname", "Email", "Position", "Phone"}

// FieldChange is a single before/after value pair in a change set.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ChangeSet maps canonical field names to their pending change.
// Fields with equal values are omitted; an empty ChangeSet is still a
// valid, selectable update target.
type ChangeSet map[string]FieldChange

// UpdateTarget is a matched incoming record that would overwrite an
// existing row in replace mode.
type UpdateTarget struct {
	ID               int64          `json:"id"`
	OldRecord        Contact        `json:"old_record"`
	NewRecord        IncomingRecord `json:"new_record"`
	MatchType        MatchType      `json:"match_type"`
	IdentityConflict bool           `json:"identity_conflict"`
	// ConflictingID is set on an ambiguous cross-match: the email matched
	// ID while the phone matched this other row. The email match wins the
	// tie-break; the loser is surfaced here for the operator.
	ConflictingID int64     `json:"conflicting_id,omitempty"`
	Changes       ChangeSet `json:"changes"`
}

// NewRecord is an incoming record with no existing match.
type NewRecord struct {
	Record    IncomingRecord `json:"record"`
	MatchType MatchType      `json:"match_type"`
}

// Duplicate is a matched incoming record excluded from writes in append mode.
type Duplicate struct {
	Record           IncomingRecord `json:"record"`
	MatchType        MatchType      `json:"match_type"`
	IdentityConflict bool           `json:"identity_conflict"`
	Existing         Contact        `json:"existing_record"`
}

// Summary holds the counts for a classified batch.
type Summary struct {
	UpdatedCount           int `json:"updated_count"`
	NewCount               int `json:"new_count"`
	DuplicatesCount        int `json:"duplicates_count"`
	KeptCount              int `json:"kept_count"`
	IdentityConflictsCount int `json:"identity_conflicts_count"`
}

// Batch is the output of reconciliation: every incoming record classified
// against the store, projected through the update mode.
type Batch struct {
	Mode       UpdateMode     `json:"mode"`
	Updates    []UpdateTarget `json:"updates"`
	NewRecords []NewRecord    `json:"new_records"`
	Duplicates []Duplicate    `json:"duplicates"`
	Summary    Summary        `json:"summary"`
}

// ChangePreview is the slice of a batch that gets frozen inside a snapshot
// for later UI replay, independent of live table state.
type ChangePreview struct {
	Updates    []UpdateTarget `json:"updates"`
	NewRecords []NewRecord    `json:"new_records"`
	Summary    Summary        `json:"summary"`
}

// UpdateDetails holds the estimated counts recorded at snapshot creation
// and the insert ids filled in once the commit has generated them.
type UpdateDetails struct {
	EstimatedUpdatedCount  int     `json:"estimated_updated_count"`
	EstimatedInsertedCount int     `json:"estimated_inserted_count"`
	InsertedRecordIDs      []int64 `json:"inserted_record_ids"`
}

// Snapshot is the append-only undo-log record for one committed batch.
// After creation only two mutations are permitted: the deferred
// InsertedRecordIDs fill-in during the originating commit, and the
// RolledBack flag flip during rollback.
type Snapshot struct {
	ID            string        `json:"id"`
	Name          string        `json:"snapshot_name"`
	Timestamp     time.Time     `json:"timestamp"`
	RecordsBackup []Contact     `json:"records_backup"`
	ChangePreview ChangePreview `json:"change_preview"`
	UpdateDetails UpdateDetails `json:"update_details"`
	RolledBack    bool          `json:"rolled_back"`
}

// Selection identifies which classified targets to apply. Updates selects
// update targets by existing row id; Inserts selects new records by their
// index within the batch. The two spaces never overlap, so there is no
// synthetic-offset id scheme. A nil *Selection applies everything; a
// non-nil empty Selection applies nothing.
type Selection struct {
	Updates []int64 `json:"updates"`
	Inserts []int   `json:"inserts"`
}

// WantsUpdate reports whether the update target for the given existing row
// id is selected.
func (s *Selection) WantsUpdate(id int64) bool {
	if s == nil {
		return true
	}
	for _, v := range s.Updates {
		if v == id {
			return true
		}
	}
	return false
}

// WantsInsert reports whether the new record at the given batch index is
// selected.
func (s *Selection) WantsInsert(idx int) bool {
	if s == nil {
		return true
	}
	for _, v := range s.Inserts {
		if v == idx {
			return true
		}
	}
	return false
}

// ApplyResult is the outcome of a committed batch.
type ApplyResult struct {
	UpdatedCount  int    `json:"updated_count"`
	InsertedCount int    `json:"inserted_count"`
	SnapshotID    string `json:"snapshot_id"`
}

// RollbackResult is the outcome of reversing one batch.
type RollbackResult struct {
	SnapshotID    string   `json:"snapshot_id"`
	RestoredCount int      `json:"restored_count"`
	DeletedCount  int      `json:"deleted_count"`
	Warnings      []string `json:"warnings,omitempty"`
}

// ListOptions controls contact listing.
type ListOptions struct {
	Search string // matches against name, surname, company, email
	Limit  int
	Offset int
}

// Store is the persistence contract the core operates against. It is
// satisfied by both the Postgres and the in-memory implementation in
// internal/store. Lookup methods return (zero, false, nil) when no row
// matches the key.
type Store interface {
	GetContactByID(ctx context.Context, id int64) (Contact, bool, error)
	GetContactByEmail(ctx context.Context, emailNormalized string) (Contact, bool, error)
	GetContactByPhone(ctx context.Context, phoneNormalized string) (Contact, bool, error)
	ListContacts(ctx context.Context, opt ListOptions) ([]Contact, int64, error)
	CountContacts(ctx context.Context) (int64, error)
	InsertContact(ctx context.Context, c *Contact) error
	UpdateContact(ctx context.Context, c *Contact) error
	DeleteContact(ctx context.Context, id int64) (bool, error)

	InsertSnapshot(ctx context.Context, s *Snapshot) error
	GetSnapshot(ctx context.Context, id string) (Snapshot, bool, error)
	ListSnapshots(ctx context.Context) ([]Snapshot, error)
	SetInsertedRecordIDs(ctx context.Context, snapshotID string, ids []int64) error
	MarkSnapshotRolledBack(ctx context.Context, snapshotID string) error
	DeleteSnapshot(ctx context.Context, id string) (bool, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx runs fn inside a single atomic transaction. The Store passed
	// to fn is bound to that transaction; any error aborts every write
	// made inside it. Calling WithTx on an already transaction-bound
	// store runs fn in the enclosing transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
