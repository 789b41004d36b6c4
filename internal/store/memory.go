package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alphaops/contactsync/internal/core"
)

// Memory is an in-memory core.Store used by tests and local development.
// WithTx clones the state before running fn and restores the clone on
// error, giving the same all-or-nothing semantics as the Postgres store.
type Memory struct {
	mu        sync.Mutex
	contacts  map[int64]core.Contact
	snapshots map[string]core.Snapshot
	nextID    int64

	inTx bool // set on the transaction-bound view
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		contacts:  make(map[int64]core.Contact),
		snapshots: make(map[string]core.Snapshot),
		nextID:    1,
	}
}

// Seed inserts contacts directly, assigning ids. Test helper.
func (m *Memory) Seed(contacts ...core.Contact) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		c.ID = m.nextID
		m.nextID++
		c.EmailNormalized = core.NormalizeEmail(c.Email)
		c.PhoneNormalized = core.NormalizePhone(c.Phone)
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = c.CreatedAt
		}
		m.contacts[c.ID] = c
		ids = append(ids, c.ID)
	}
	return ids
}

// WithTx runs fn against a transaction-bound view and restores the
// pre-transaction state when fn fails. Nested calls reuse the view.
func (m *Memory) WithTx(ctx context.Context, fn func(core.Store) error) error {
	if m.inTx {
		return fn(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	backupContacts := make(map[int64]core.Contact, len(m.contacts))
	for id, c := range m.contacts {
		backupContacts[id] = c
	}
	backupSnapshots := make(map[string]core.Snapshot, len(m.snapshots))
	for id, s := range m.snapshots {
		backupSnapshots[id] = cloneSnapshot(s)
	}
	backupNextID := m.nextID

	tx := &Memory{
		contacts:  m.contacts,
		snapshots: m.snapshots,
		nextID:    m.nextID,
		inTx:      true,
	}
	if err := fn(tx); err != nil {
		m.contacts = backupContacts
		m.snapshots = backupSnapshots
		m.nextID = backupNextID
		return err
	}
	m.nextID = tx.nextID
	return nil
}

func cloneSnapshot(s core.Snapshot) core.Snapshot {
	out := s
	out.RecordsBackup = append([]core.Contact(nil), s.RecordsBackup...)
	out.UpdateDetails.InsertedRecordIDs = append([]int64(nil), s.UpdateDetails.InsertedRecordIDs...)
	return out
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// GetContactByID returns the contact with the given id.
func (m *Memory) GetContactByID(ctx context.Context, id int64) (core.Contact, bool, error) {
	defer m.lock()()
	c, ok := m.contacts[id]
	return c, ok, nil
}

// GetContactByEmail returns the contact matching the normalized email,
// lowest id first when several match.
func (m *Memory) GetContactByEmail(ctx context.Context, emailNormalized string) (core.Contact, bool, error) {
	defer m.lock()()
	return m.findContact(func(c core.Contact) bool {
		return c.EmailNormalized == emailNormalized
	})
}

// GetContactByPhone returns the contact matching the normalized phone.
func (m *Memory) GetContactByPhone(ctx context.Context, phoneNormalized string) (core.Contact, bool, error) {
	defer m.lock()()
	return m.findContact(func(c core.Contact) bool {
		return c.PhoneNormalized == phoneNormalized
	})
}

func (m *Memory) findContact(match func(core.Contact) bool) (core.Contact, bool, error) {
	var best core.Contact
	found := false
	for _, c := range m.contacts {
		if !match(c) {
			continue
		}
		if !found || c.ID < best.ID {
			best = c
			found = true
		}
	}
	return best, found, nil
}

// ListContacts returns a page of contacts ordered by id and the total
// matching count.
func (m *Memory) ListContacts(ctx context.Context, opt core.ListOptions) ([]core.Contact, int64, error) {
	defer m.lock()()

	matched := make([]core.Contact, 0, len(m.contacts))
	search := strings.ToLower(opt.Search)
	for _, c := range m.contacts {
		if search != "" && !contactMatches(c, search) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	if opt.Offset >= len(matched) {
		return []core.Contact{}, total, nil
	}
	matched = matched[opt.Offset:]
	if opt.Limit > 0 && opt.Limit < len(matched) {
		matched = matched[:opt.Limit]
	}
	return matched, total, nil
}

func contactMatches(c core.Contact, search string) bool {
	for _, field := range []string{c.Name, c.Surname, c.Company, c.Email} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// CountContacts returns the total number of contacts.
func (m *Memory) CountContacts(ctx context.Context) (int64, error) {
	defer m.lock()()
	return int64(len(m.contacts)), nil
}

// InsertContact assigns an id, derives the normalized columns, and
// stores the contact.
func (m *Memory) InsertContact(ctx context.Context, c *core.Contact) error {
	defer m.lock()()

	c.ID = m.nextID
	m.nextID++
	c.EmailNormalized = core.NormalizeEmail(c.Email)
	c.PhoneNormalized = core.NormalizePhone(c.Phone)
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	m.contacts[c.ID] = *c
	return nil
}

// UpdateContact overwrites an existing contact, rederiving the
// normalized columns.
func (m *Memory) UpdateContact(ctx context.Context, c *core.Contact) error {
	defer m.lock()()

	existing, ok := m.contacts[c.ID]
	if !ok {
		return fmt.Errorf("update contact: id %d not found", c.ID)
	}
	c.EmailNormalized = core.NormalizeEmail(c.Email)
	c.PhoneNormalized = core.NormalizePhone(c.Phone)
	c.CreatedAt = existing.CreatedAt
	m.contacts[c.ID] = *c
	return nil
}

// DeleteContact removes the contact and reports whether it existed.
func (m *Memory) DeleteContact(ctx context.Context, id int64) (bool, error) {
	defer m.lock()()
	_, ok := m.contacts[id]
	delete(m.contacts, id)
	return ok, nil
}

// InsertSnapshot stores a new snapshot.
func (m *Memory) InsertSnapshot(ctx context.Context, s *core.Snapshot) error {
	defer m.lock()()
	m.snapshots[s.ID] = cloneSnapshot(*s)
	return nil
}

// GetSnapshot returns a snapshot by id.
func (m *Memory) GetSnapshot(ctx context.Context, id string) (core.Snapshot, bool, error) {
	defer m.lock()()
	s, ok := m.snapshots[id]
	if !ok {
		return core.Snapshot{}, false, nil
	}
	return cloneSnapshot(s), true, nil
}

// ListSnapshots returns every snapshot, newest first.
func (m *Memory) ListSnapshots(ctx context.Context) ([]core.Snapshot, error) {
	defer m.lock()()

	out := make([]core.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, cloneSnapshot(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetInsertedRecordIDs fills the deferred inserted ids.
func (m *Memory) SetInsertedRecordIDs(ctx context.Context, snapshotID string, ids []int64) error {
	defer m.lock()()

	s, ok := m.snapshots[snapshotID]
	if !ok {
		return core.ErrSnapshotNotFound
	}
	s.UpdateDetails.InsertedRecordIDs = append([]int64(nil), ids...)
	m.snapshots[snapshotID] = s
	return nil
}

// MarkSnapshotRolledBack flips the rolled_back flag.
func (m *Memory) MarkSnapshotRolledBack(ctx context.Context, snapshotID string) error {
	defer m.lock()()

	s, ok := m.snapshots[snapshotID]
	if !ok {
		return core.ErrSnapshotNotFound
	}
	s.RolledBack = true
	m.snapshots[snapshotID] = s
	return nil
}

// DeleteSnapshot removes a snapshot and reports whether it existed.
func (m *Memory) DeleteSnapshot(ctx context.Context, id string) (bool, error) {
	defer m.lock()()
	_, ok := m.snapshots[id]
	delete(m.snapshots, id)
	return ok, nil
}

// DeleteSnapshotsBefore removes snapshots older than the cutoff.
func (m *Memory) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	defer m.lock()()

	var n int64
	for id, s := range m.snapshots {
		if s.Timestamp.Before(cutoff) {
			delete(m.snapshots, id)
			n++
		}
	}
	return n, nil
}
