package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	History(ctx context.Context, filter HistoryFilter) ([]MovementRecord, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims keys so the same reference never moves stock twice.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	ReservationTTL time.Duration
	Now            func() time.Time
}

// Service coordinates inventory operations.
type Service struct {
	repo         RepositoryPort
	audit        AuditPort
	idempotency  IdempotencyPort
	logger       *slog.Logger
	validate     *validator.Validate
	now          func() time.Time
	ledger       *Ledger
	reservations *ReservationManager
	movements    *MovementEngine
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ledger := NewLedger(now)
	return &Service{
		repo:         repo,
		audit:        audit,
		idempotency:  idem,
		logger:       logger,
		validate:     validator.New(),
		now:          now,
		ledger:       ledger,
		reservations: NewReservationManager(cfg.ReservationTTL, now),
		movements:    NewMovementEngine(ledger),
	}
}

// Ledger exposes the balance owner for callers composing their own transactions.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Reservations exposes the reservation manager for callers composing their own transactions.
func (s *Service) Reservations() *ReservationManager { return s.reservations }

// Movements exposes the movement engine for callers composing their own transactions.
func (s *Service) Movements() *MovementEngine { return s.movements }

// AvailableStock returns ledger total minus active holds for item at ref.
func (s *Service) AvailableStock(ctx context.Context, itemID int64, ref LocationRef) (int64, error) {
	var available int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		available, err = s.reservations.Available(ctx, tx, itemID, ref)
		return err
	})
	return available, err
}

// ReservedStock returns the active holds for item at exactly ref.
func (s *Service) ReservedStock(ctx context.Context, itemID int64, ref LocationRef) (int64, error) {
	var reserved int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reserved, err = s.reservations.Reserved(ctx, tx, itemID, ref)
		return err
	})
	return reserved, err
}

// StockSummary reads total, reserved and available from one snapshot.
func (s *Service) StockSummary(ctx context.Context, itemID int64, ref LocationRef) (StockSummary, error) {
	summary := StockSummary{ItemID: itemID, Location: ref}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		total, err := s.ledger.Balance(ctx, tx, itemID, ref)
		if err != nil {
			return err
		}
		reserved, err := s.reservations.Reserved(ctx, tx, itemID, ref)
		if err != nil {
			return err
		}
		summary.Total = total
		summary.Reserved = reserved
		summary.Available = total - reserved
		return nil
	})
	if err != nil {
		return StockSummary{}, err
	}
	return summary, nil
}

// History lists movement records for an item, newest first.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]MovementRecord, error) {
	if filter.ItemID <= 0 {
		return nil, fmt.Errorf("%w: item required", ErrInvalidFilter)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: range end before start", ErrInvalidFilter)
	}
	return s.repo.History(ctx, filter)
}

// PostAdjustment applies a signed change to one storage location outside any transfer.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (MovementRecord, error) {
	if err := s.validate.Struct(input); err != nil {
		return MovementRecord{}, fmt.Errorf("inventory: invalid adjustment: %w", err)
	}
	ref := Reference{Kind: input.RefKind, ID: input.RefID}
	if ref.Kind == "" {
		ref.Kind = RefAdjustment
	}
	if ref.ID == 0 && ref.Kind != RefAdjustment {
		return MovementRecord{}, fmt.Errorf("%w: %s needs a reference id", ErrInvalidReference, ref.Kind)
	}
	// Plain corrections without an id draw one from the adjustment sequence
	// and are never deduplicated.
	key := ""
	if ref.ID != 0 {
		key = fmt.Sprintf("adjustment:%s:%d:%d:%d", ref.Kind, ref.ID, input.LocationID, input.ItemID)
	}
	if err := s.claim(ctx, key); err != nil {
		return MovementRecord{}, err
	}

	var rec MovementRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetLocation(ctx, input.LocationID); err != nil {
			return err
		}
		if input.RefID == 0 {
			id, err := tx.NextAdjustmentID(ctx)
			if err != nil {
				return fmt.Errorf("allocate adjustment id: %w", err)
			}
			ref.ID = id
		}
		res, err := s.ledger.ApplyDelta(ctx, tx, Delta{
			LocationID:  input.LocationID,
			ItemID:      input.ItemID,
			Change:      input.Change,
			Reference:   ref,
			Description: input.Description,
			ActorID:     input.ActorID,
		})
		if err != nil {
			return err
		}
		rec = res.Record
		return nil
	})
	if err != nil {
		s.unclaim(ctx, key)
		return MovementRecord{}, err
	}
	s.record(ctx, input.ActorID, "inventory:adjust", "stock_balance", fmt.Sprintf("%d:%d", input.LocationID, input.ItemID), map[string]any{
		"reference_type": ref.Kind,
		"reference_id":   ref.ID,
		"change":         input.Change,
		"after":          rec.QuantityAfter,
	})
	return rec, nil
}

// ExecuteMovement runs a standalone movement in its own transaction. The
// reference is claimed first so a replay returns shared.ErrIdempotencyConflict.
func (s *Service) ExecuteMovement(ctx context.Context, in MovementInput) ([]MovementRecord, error) {
	if err := validateMovement(in); err != nil {
		return nil, err
	}
	key := MovementKey(in.Reference)
	if err := s.claim(ctx, key); err != nil {
		return nil, err
	}
	var records []MovementRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		records, err = s.movements.ExecuteTx(ctx, tx, in)
		return err
	})
	if err != nil {
		s.unclaim(ctx, key)
		s.logger.Warn("stock movement failed", slog.String("reference", key), slog.Any("error", err))
		return nil, err
	}
	s.logger.Info("stock movement executed", slog.String("reference", key), slog.Int("records", len(records)))
	s.record(ctx, in.ActorID, "inventory:move", in.Reference.Kind, fmt.Sprintf("%d", in.Reference.ID), map[string]any{
		"source":      in.Source.String(),
		"destination": in.Destination.String(),
		"lines":       len(in.Lines),
	})
	return records, nil
}

// MovementKey is the idempotency key claimed for a movement reference.
func MovementKey(ref Reference) string {
	return fmt.Sprintf("movement:%s:%d", ref.Kind, ref.ID)
}

// ReserveStock places holds for a transfer in a dedicated transaction.
func (s *Service) ReserveStock(ctx context.Context, transferID int64, lines []LineItem, loc LocationRef, actorID int64) ([]Reservation, error) {
	var out []Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.reservations.Reserve(ctx, tx, ReserveInput{
			Lines:     lines,
			Location:  loc,
			Reference: Reference{Kind: RefTransfer, ID: transferID},
			ActorID:   actorID,
		})
		return err
	})
	return out, err
}

// ReleaseReservedStock deletes the holds of a transfer. Releasing twice is a no-op.
func (s *Service) ReleaseReservedStock(ctx context.Context, transferID int64) (int64, error) {
	var n int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		n, err = s.reservations.Release(ctx, tx, Reference{Kind: RefTransfer, ID: transferID})
		return err
	})
	return n, err
}

// SweepExpired deletes holds past their expiry and reports how many were removed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	var n int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		n, err = s.reservations.SweepExpired(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("reservation sweep", slog.Int64("count", n))
	return n, nil
}

func (s *Service) claim(ctx context.Context, key string) error {
	if s.idempotency == nil || key == "" {
		return nil
	}
	return s.idempotency.CheckAndInsert(ctx, key, "inventory")
}

func (s *Service) unclaim(ctx context.Context, key string) {
	if s.idempotency == nil || key == "" {
		return
	}
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Error("audit inventory", slog.String("action", action), slog.Any("error", err))
	}
}
