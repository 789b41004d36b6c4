// Package store provides the persistence implementations of core.Store:
// a PostgreSQL store on pgx for production and an in-memory store for
// tests. Both derive the normalized identity columns themselves, so
// callers never write email_normalized or phone_normalized directly.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alphaops/contactsync/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres implements core.Store against a pgx connection pool.
type Postgres struct {
	db   DBTX
	pool *pgxpool.Pool // nil when bound to a transaction
}

// NewPostgres creates a Postgres store on the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool, pool: pool}
}

// schemaStatements bootstraps the two tables and the matching indexes.
// Idempotent; run once at startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS contacts_data (
		id               BIGSERIAL PRIMARY KEY,
		company          TEXT NOT NULL DEFAULT '',
		name             TEXT NOT NULL DEFAULT '',
		surname          TEXT NOT NULL DEFAULT '',
		email            TEXT NOT NULL DEFAULT '',
		position         TEXT NOT NULL DEFAULT '',
		phone            TEXT NOT NULL DEFAULT '',
		email_normalized TEXT NOT NULL DEFAULT '',
		phone_normalized TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_email_normalized ON contacts_data (email_normalized)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_phone_normalized ON contacts_data (phone_normalized)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_composite_identity ON contacts_data (email_normalized, phone_normalized)`,
	`CREATE TABLE IF NOT EXISTS bulk_update_snapshots (
		id             UUID PRIMARY KEY,
		snapshot_name  TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		records_backup JSONB NOT NULL DEFAULT '[]',
		change_preview JSONB NOT NULL DEFAULT '{}',
		update_details JSONB NOT NULL DEFAULT '{}',
		rolled_back    BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON bulk_update_snapshots (created_at)`,
}

// InitSchema creates the tables and indexes if they do not exist.
func (p *Postgres) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside a single transaction. When the store is already
// transaction-bound, fn runs in the enclosing transaction.
func (p *Postgres) WithTx(ctx context.Context, fn func(core.Store) error) error {
	if p.pool == nil {
		return fn(p)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Postgres{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Contacts
// ----------------------------------------------------------------------------

const contactColumns = `id, company, name, surname, email, position, phone,
	email_normalized, phone_normalized, created_at, updated_at`

func scanContact(row pgx.Row) (core.Contact, error) {
	var c core.Contact
	err := row.Scan(&c.ID, &c.Company, &c.Name, &c.Surname, &c.Email, &c.Position,
		&c.Phone, &c.EmailNormalized, &c.PhoneNormalized, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetContactByID returns the contact with the given id.
func (p *Postgres) GetContactByID(ctx context.Context, id int64) (core.Contact, bool, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts_data WHERE id = $1`, id)
	c, err := scanContact(row)
	if err == pgx.ErrNoRows {
		return core.Contact{}, false, nil
	}
	if err != nil {
		return core.Contact{}, false, fmt.Errorf("get contact by id: %w", err)
	}
	return c, true, nil
}

// GetContactByEmail returns the contact matching the normalized email.
// When several rows share the key, the oldest wins for determinism.
func (p *Postgres) GetContactByEmail(ctx context.Context, emailNormalized string) (core.Contact, bool, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts_data
		 WHERE email_normalized = $1 ORDER BY id LIMIT 1`, emailNormalized)
	c, err := scanContact(row)
	if err == pgx.ErrNoRows {
		return core.Contact{}, false, nil
	}
	if err != nil {
		return core.Contact{}, false, fmt.Errorf("get contact by email: %w", err)
	}
	return c, true, nil
}

// GetContactByPhone returns the contact matching the normalized phone.
func (p *Postgres) GetContactByPhone(ctx context.Context, phoneNormalized string) (core.Contact, bool, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts_data
		 WHERE phone_normalized = $1 ORDER BY id LIMIT 1`, phoneNormalized)
	c, err := scanContact(row)
	if err == pgx.ErrNoRows {
		return core.Contact{}, false, nil
	}
	if err != nil {
		return core.Contact{}, false, fmt.Errorf("get contact by phone: %w", err)
	}
	return c, true, nil
}

// ListContacts returns a page of contacts and the total matching count.
func (p *Postgres) ListContacts(ctx context.Context, opt core.ListOptions) ([]core.Contact, int64, error) {
	where := ""
	args := []interface{}{}
	if opt.Search != "" {
		where = ` WHERE name ILIKE $1 OR surname ILIKE $1 OR company ILIKE $1 OR email ILIKE $1`
		args = append(args, "%"+opt.Search+"%")
	}

	var total int64
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM contacts_data`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+contactColumns+` FROM contacts_data`+where+
		` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, opt.Limit, opt.Offset)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]core.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return contacts, total, nil
}

// CountContacts returns the total number of contact rows.
func (p *Postgres) CountContacts(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM contacts_data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

// InsertContact inserts a new row, deriving the normalized identity
// columns, and fills the generated id and timestamps on c.
func (p *Postgres) InsertContact(ctx context.Context, c *core.Contact) error {
	c.EmailNormalized = core.NormalizeEmail(c.Email)
	c.PhoneNormalized = core.NormalizePhone(c.Phone)

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	err := p.db.QueryRow(ctx,
		`INSERT INTO contacts_data
			(company, name, surname, email, position, phone,
			 email_normalized, phone_normalized, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		c.Company, c.Name, c.Surname, c.Email, c.Position, c.Phone,
		c.EmailNormalized, c.PhoneNormalized, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

// UpdateContact overwrites the row's fields, rederiving the normalized
// columns. The caller controls updated_at: apply refreshes it, rollback
// restores the backed-up value.
func (p *Postgres) UpdateContact(ctx context.Context, c *core.Contact) error {
	c.EmailNormalized = core.NormalizeEmail(c.Email)
	c.PhoneNormalized = core.NormalizePhone(c.Phone)

	tag, err := p.db.Exec(ctx,
		`UPDATE contacts_data
		 SET company = $2, name = $3, surname = $4, email = $5, position = $6,
		     phone = $7, email_normalized = $8, phone_normalized = $9, updated_at = $10
		 WHERE id = $1`,
		c.ID, c.Company, c.Name, c.Surname, c.Email, c.Position,
		c.Phone, c.EmailNormalized, c.PhoneNormalized, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update contact: id %d not found", c.ID)
	}
	return nil
}

// DeleteContact removes the row and reports whether it existed.
func (p *Postgres) DeleteContact(ctx context.Context, id int64) (bool, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM contacts_data WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete contact: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ----------------------------------------------------------------------------
// Snapshots
// ----------------------------------------------------------------------------

// InsertSnapshot persists a new snapshot with its three JSON documents.
func (p *Postgres) InsertSnapshot(ctx context.Context, s *core.Snapshot) error {
	backup, err := json.Marshal(s.RecordsBackup)
	if err != nil {
		return fmt.Errorf("marshal records_backup: %w", err)
	}
	preview, err := json.Marshal(s.ChangePreview)
	if err != nil {
		return fmt.Errorf("marshal change_preview: %w", err)
	}
	details, err := json.Marshal(s.UpdateDetails)
	if err != nil {
		return fmt.Errorf("marshal update_details: %w", err)
	}

	_, err = p.db.Exec(ctx,
		`INSERT INTO bulk_update_snapshots
			(id, snapshot_name, created_at, records_backup, change_preview, update_details, rolled_back)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Name, s.Timestamp, backup, preview, details, s.RolledBack,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (core.Snapshot, error) {
	var s core.Snapshot
	var backup, preview, details []byte
	err := row.Scan(&s.ID, &s.Name, &s.Timestamp, &backup, &preview, &details, &s.RolledBack)
	if err != nil {
		return core.Snapshot{}, err
	}
	if err := json.Unmarshal(backup, &s.RecordsBackup); err != nil {
		return core.Snapshot{}, fmt.Errorf("unmarshal records_backup: %w", err)
	}
	if err := json.Unmarshal(preview, &s.ChangePreview); err != nil {
		return core.Snapshot{}, fmt.Errorf("unmarshal change_preview: %w", err)
	}
	if err := json.Unmarshal(details, &s.UpdateDetails); err != nil {
		return core.Snapshot{}, fmt.Errorf("unmarshal update_details: %w", err)
	}
	return s, nil
}

const snapshotColumns = `id, snapshot_name, created_at, records_backup, change_preview, update_details, rolled_back`

// GetSnapshot returns a single snapshot by id.
func (p *Postgres) GetSnapshot(ctx context.Context, id string) (core.Snapshot, bool, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM bulk_update_snapshots WHERE id = $1`, id)
	s, err := scanSnapshot(row)
	if err == pgx.ErrNoRows {
		return core.Snapshot{}, false, nil
	}
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	return s, true, nil
}

// ListSnapshots returns every snapshot, newest first.
func (p *Postgres) ListSnapshots(ctx context.Context) ([]core.Snapshot, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+snapshotColumns+` FROM bulk_update_snapshots ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]core.Snapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return snapshots, nil
}

// SetInsertedRecordIDs fills in the deferred inserted ids during the
// originating commit. One of the two permitted snapshot mutations.
func (p *Postgres) SetInsertedRecordIDs(ctx context.Context, snapshotID string, ids []int64) error {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal inserted ids: %w", err)
	}

	tag, err := p.db.Exec(ctx,
		`UPDATE bulk_update_snapshots
		 SET update_details = jsonb_set(update_details, '{inserted_record_ids}', $2::jsonb)
		 WHERE id = $1`,
		snapshotID, encoded,
	)
	if err != nil {
		return fmt.Errorf("set inserted ids: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set inserted ids: snapshot %s not found", snapshotID)
	}
	return nil
}

// MarkSnapshotRolledBack flips the rolled_back flag. The other permitted
// snapshot mutation.
func (p *Postgres) MarkSnapshotRolledBack(ctx context.Context, snapshotID string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE bulk_update_snapshots SET rolled_back = true WHERE id = $1`, snapshotID)
	if err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark rolled back: snapshot %s not found", snapshotID)
	}
	return nil
}

// DeleteSnapshot removes a snapshot and reports whether it existed.
func (p *Postgres) DeleteSnapshot(ctx context.Context, id string) (bool, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM bulk_update_snapshots WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete snapshot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteSnapshotsBefore removes snapshots created before the cutoff and
// returns the count deleted.
func (p *Postgres) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM bulk_update_snapshots WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
