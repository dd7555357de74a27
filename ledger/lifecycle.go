package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FISCAL PERIOD LIFECYCLE
// =============================================================================
//
//	Open ──close──▶ Closed
//	  │                │
//	  └─delete (no tx) └─ source of one carry-forward
//
// A period starts Open. Closing is one-way and only freezes the period
// against user-authored writes; it does not generate entries. Date ranges are
// not checked for overlap with other periods.

// PeriodDraft is caller input for creating or updating a period.
type PeriodDraft struct {
	Name  string
	Start time.Time
	End   time.Time
}

func (d PeriodDraft) validate() error {
	fields := make(map[string]string)
	if strings.TrimSpace(d.Name) == "" {
		fields["name"] = "name is required"
	}
	if d.Start.IsZero() {
		fields["start"] = "start date is required"
	}
	if d.End.IsZero() {
		fields["end"] = "end date is required"
	}
	if len(fields) == 0 && !(DateRange{From: d.Start, To: d.End}).Valid() {
		fields["end"] = "end date must not be before start date"
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "validation failed", Fields: fields}
	}
	return nil
}

// CreatePeriod opens a new fiscal period. Names are unique.
func (s *Service) CreatePeriod(ctx context.Context, draft PeriodDraft, actor UserID) (*FiscalPeriod, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := draft.validate(); err != nil {
		return nil, err
	}

	p := FiscalPeriod{
		ID:        PeriodID(uuid.NewString()),
		Name:      strings.TrimSpace(draft.Name),
		Start:     Day(draft.Start),
		End:       Day(draft.End),
		CreatedAt: s.now(),
	}
	err := s.Store.WithTx(ctx, func(st Store) error {
		existing, err := st.GetPeriodByName(ctx, p.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrPeriodNameTaken
		}
		return st.InsertPeriod(ctx, p)
	})
	if err != nil {
		return nil, boundary("create period", err)
	}

	s.audit(ctx, AuditCreate, actor, EntityFiscalPeriod, string(p.ID))
	return &p, nil
}

// UpdatePeriod renames or re-dates an open period.
func (s *Service) UpdatePeriod(ctx context.Context, id PeriodID, draft PeriodDraft, actor UserID) (*FiscalPeriod, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := draft.validate(); err != nil {
		return nil, err
	}

	var updated FiscalPeriod
	err := s.Store.WithTx(ctx, func(st Store) error {
		p, err := requireOpenPeriod(ctx, st, id)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(draft.Name)
		if name != p.Name {
			other, err := st.GetPeriodByName(ctx, name)
			if err != nil {
				return err
			}
			if other != nil && other.ID != id {
				return ErrPeriodNameTaken
			}
		}
		updated = *p
		updated.Name = name
		updated.Start = Day(draft.Start)
		updated.End = Day(draft.End)
		if err := requireOwnedDatesInside(ctx, st, updated); err != nil {
			return err
		}
		return st.UpdatePeriod(ctx, updated)
	})
	if err != nil {
		return nil, boundary("update period", err)
	}

	s.audit(ctx, AuditUpdate, actor, EntityFiscalPeriod, string(id))
	return &updated, nil
}

// requireOwnedDatesInside rejects a new date range that would leave
// transactions of the period outside it.
func requireOwnedDatesInside(ctx context.Context, st Store, p FiscalPeriod) error {
	postings, err := st.ListPostings(ctx, PostingFilter{PeriodID: p.ID})
	if err != nil {
		return err
	}
	r := p.Range()
	for _, posting := range postings {
		if !r.Contains(posting.Date) {
			reason := fmt.Sprintf("transaction %s dated %s falls outside %s", posting.Reference, formatDay(posting.Date), r)
			return &ValidationError{Message: "validation failed", Fields: map[string]string{
				"start": reason,
				"end":   reason,
			}}
		}
	}
	return nil
}

// GetPeriod returns a period by ID.
func (s *Service) GetPeriod(ctx context.Context, id PeriodID) (*FiscalPeriod, error) {
	p, err := s.Store.GetPeriod(ctx, id)
	if err != nil {
		return nil, boundary("get period", err)
	}
	if p == nil {
		return nil, notFound(EntityFiscalPeriod, id)
	}
	return p, nil
}

// ListPeriods returns all periods ordered by start date.
func (s *Service) ListPeriods(ctx context.Context) ([]FiscalPeriod, error) {
	periods, err := s.Store.ListPeriods(ctx)
	return periods, boundary("list periods", err)
}

// ClosePeriod performs the one-way Open -> Closed transition.
func (s *Service) ClosePeriod(ctx context.Context, id PeriodID, actor UserID) (*FiscalPeriod, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var closed FiscalPeriod
	err := s.Store.WithTx(ctx, func(st Store) error {
		p, err := requireOpenPeriod(ctx, st, id)
		if err != nil {
			return err
		}
		at := s.now()
		closed = *p
		closed.Closed = true
		closed.ClosedAt = &at
		closed.ClosedBy = actor
		return st.UpdatePeriod(ctx, closed)
	})
	if err != nil {
		return nil, boundary("close period", err)
	}

	log.Printf("[Ledger] period %s (%s) closed by %s", closed.Name, closed.ID, actor)
	s.audit(ctx, AuditClose, actor, EntityFiscalPeriod, string(id))
	return &closed, nil
}

// DeletePeriod removes an open period that owns no transactions and is not
// referenced by a carry-forward.
func (s *Service) DeletePeriod(ctx context.Context, id PeriodID, actor UserID) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	err := s.Store.WithTx(ctx, func(st Store) error {
		if _, err := requireOpenPeriod(ctx, st, id); err != nil {
			return err
		}
		n, err := st.CountTransactions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrPeriodHasTransactions
		}
		records, err := st.ListCarryForwards(ctx)
		if err != nil {
			return err
		}
		for _, cf := range records {
			if cf.SourcePeriodID == id || cf.DestinationPeriodID == id {
				return ErrPeriodHasCarryForward
			}
		}
		return st.DeletePeriod(ctx, id)
	})
	if err != nil {
		return boundary("delete period", err)
	}

	s.audit(ctx, AuditDelete, actor, EntityFiscalPeriod, string(id))
	return nil
}
