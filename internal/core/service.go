package core

import (
	"context"
	"fmt"
)

// Service provides the reconciliation and undo-log operations against an
// injected store. All methods are safe for concurrent use; Apply and
// Rollback serialize through the store's transaction isolation.
type Service struct {
	store Store
}

// NewService creates a Service backed by the given store.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	return &Service{store: store}, nil
}

// GetContact returns a single contact by id.
func (s *Service) GetContact(ctx context.Context, id int64) (Contact, bool, error) {
	return s.store.GetContactByID(ctx, id)
}

// ListContacts returns a page of contacts plus the total row count for the
// given filter.
func (s *Service) ListContacts(ctx context.Context, opt ListOptions) ([]Contact, int64, error) {
	if opt.Limit <= 0 {
		opt.Limit = 50
	}
	if opt.Offset < 0 {
		opt.Offset = 0
	}
	return s.store.ListContacts(ctx, opt)
}

// DeleteContact removes a single contact by explicit user action.
// It reports whether a row was actually deleted.
func (s *Service) DeleteContact(ctx context.Context, id int64) (bool, error) {
	return s.store.DeleteContact(ctx, id)
}
