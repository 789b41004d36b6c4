package core

// reconcile.go implements the reconciliation engine: within-batch
// deduplication, classification of each incoming record against the
// existing store by composite identity, and projection through the
// update mode into update / insert / duplicate targets.

import (
	"context"
	"fmt"
)

// incomingKeys pairs an incoming record with its normalized identity.
type incomingKeys struct {
	record    IncomingRecord
	emailNorm string
	phoneNorm string
}

// Reconcile classifies the ordered incoming records against the store and
// returns the projected batch. It performs no writes and may run
// concurrently with unrelated reads.
//
// A record whose normalized email and phone are both empty fails the whole
// batch with a ValidationError before any classification happens.
func (s *Service) Reconcile(ctx context.Context, records []IncomingRecord, mode UpdateMode) (*Batch, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	keyed := make([]incomingKeys, len(records))
	for i, rec := range records {
		k := incomingKeys{
			record:    rec,
			emailNorm: NormalizeEmail(rec.Email),
			phoneNorm: NormalizePhone(rec.Phone),
		}
		if k.emailNorm == "" && k.phoneNorm == "" {
			return nil, &ValidationError{Row: i, Reason: "both email and phone are empty after normalization"}
		}
		keyed[i] = k
	}

	keyed = dedupeBatch(keyed)

	existingTotal, err := s.store.CountContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}

	batch := &Batch{
		Mode:       mode,
		Updates:    []UpdateTarget{},
		NewRecords: []NewRecord{},
		Duplicates: []Duplicate{},
	}
	matchedIDs := make(map[int64]struct{})
	updateIndex := make(map[int64]int)

	for _, k := range keyed {
		m, target, err := s.classify(ctx, k)
		if err != nil {
			return nil, err
		}

		if m.IdentityConflict {
			batch.Summary.IdentityConflictsCount++
		}

		if m.MatchType == MatchNew {
			batch.NewRecords = append(batch.NewRecords, NewRecord{
				Record:    k.record,
				MatchType: MatchNew,
			})
			batch.Summary.NewCount++
			continue
		}

		switch mode {
		case ModeReplace:
			ut := UpdateTarget{
				ID:               target.ID,
				OldRecord:        target,
				NewRecord:        k.record,
				MatchType:        m.MatchType,
				IdentityConflict: m.IdentityConflict,
				ConflictingID:    m.ConflictingID,
				Changes:          BuildChanges(target, k.record),
			}
			// Two records can resolve to the same row through different
			// identity keys (one by email, one by phone) and survive the
			// key-based dedup. A row gets at most one update target; the
			// last occurrence wins, same as the dedup rule.
			if pos, ok := updateIndex[target.ID]; ok {
				batch.Updates[pos] = ut
			} else {
				updateIndex[target.ID] = len(batch.Updates)
				batch.Updates = append(batch.Updates, ut)
				batch.Summary.UpdatedCount++
			}
			matchedIDs[target.ID] = struct{}{}

		case ModeAppend:
			batch.Duplicates = append(batch.Duplicates, Duplicate{
				Record:           k.record,
				MatchType:        m.MatchType,
				IdentityConflict: m.IdentityConflict,
				Existing:         target,
			})
			batch.Summary.DuplicatesCount++
		}
	}

	batch.Summary.KeptCount = int(existingTotal) - len(matchedIDs)

	return batch, nil
}

// matchResult is the classification of a single incoming record.
type matchResult struct {
	MatchType        MatchType
	IdentityConflict bool
	ConflictingID    int64
}

// classify resolves one record against the store's normalized-key indexes.
// The email and phone indexes are looked up separately and may resolve to
// different rows; when they do, the email match wins the tie-break and the
// phone candidate is surfaced as the conflicting id.
func (s *Service) classify(ctx context.Context, k incomingKeys) (matchResult, Contact, error) {
	var emailHit, phoneHit Contact
	var haveEmail, havePhone bool
	var err error

	if k.emailNorm != "" {
		emailHit, haveEmail, err = s.store.GetContactByEmail(ctx, k.emailNorm)
		if err != nil {
			return matchResult{}, Contact{}, fmt.Errorf("lookup by email: %w", err)
		}
	}
	if k.phoneNorm != "" {
		phoneHit, havePhone, err = s.store.GetContactByPhone(ctx, k.phoneNorm)
		if err != nil {
			return matchResult{}, Contact{}, fmt.Errorf("lookup by phone: %w", err)
		}
	}

	switch {
	case haveEmail && havePhone && emailHit.ID == phoneHit.ID:
		return matchResult{MatchType: MatchBoth}, emailHit, nil

	case haveEmail && havePhone:
		// Ambiguous cross-match: two distinct rows claim this identity.
		return matchResult{
			MatchType:        MatchEmail,
			IdentityConflict: true,
			ConflictingID:    phoneHit.ID,
		}, emailHit, nil

	case haveEmail:
		conflict := k.phoneNorm != "" && k.phoneNorm != emailHit.PhoneNormalized
		return matchResult{MatchType: MatchEmail, IdentityConflict: conflict}, emailHit, nil

	case havePhone:
		conflict := k.emailNorm != "" && k.emailNorm != phoneHit.EmailNormalized
		return matchResult{MatchType: MatchPhone, IdentityConflict: conflict}, phoneHit, nil

	default:
		return matchResult{MatchType: MatchNew}, Contact{}, nil
	}
}

// dedupeBatch collapses records that normalize to the same email or phone
// within one batch, keeping only the last occurrence. The collapse is
// silent: it shows up in counts, not as an error.
func dedupeBatch(in []incomingKeys) []incomingKeys {
	kept := make([]incomingKeys, 0, len(in))
	dropped := make(map[int]struct{})
	byEmail := make(map[string]int)
	byPhone := make(map[string]int)

	for _, k := range in {
		if k.emailNorm != "" {
			if prev, ok := byEmail[k.emailNorm]; ok {
				dropped[prev] = struct{}{}
			}
		}
		if k.phoneNorm != "" {
			if prev, ok := byPhone[k.phoneNorm]; ok {
				dropped[prev] = struct{}{}
			}
		}
		idx := len(kept)
		kept = append(kept, k)
		if k.emailNorm != "" {
			byEmail[k.emailNorm] = idx
		}
		if k.phoneNorm != "" {
			byPhone[k.phoneNorm] = idx
		}
	}

	if len(dropped) == 0 {
		return kept
	}

	out := kept[:0]
	for i, k := range kept {
		if _, gone := dropped[i]; gone {
			continue
		}
		out = append(out, k)
	}
	return out
}
