package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// approvalModule tags approval log entries written by transfers.
const approvalModule = "TRANSFER"

// InventoryPort exposes the stock primitives a transfer drives inside its transaction.
type InventoryPort interface {
	Reservations() *inventory.ReservationManager
	Movements() *inventory.MovementEngine
}

// Authorizer decides whether an actor may act on a location.
type Authorizer interface {
	CanAccess(ctx context.Context, actorID int64, loc inventory.LocationRef) (bool, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// ApprovalPort records and lists approval decisions.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsRecorder counts workflow actions by outcome.
type MetricsRecorder interface {
	ObserveTransferAction(action, outcome string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Now          func() time.Time
	GenerateCode CodeGenerator
}

// Service owns the transfer lifecycle.
type Service struct {
	repo      RepositoryPort
	inventory InventoryPort
	authz     Authorizer
	locker    Locker
	approvals ApprovalPort
	audit     AuditPort
	metrics   MetricsRecorder
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
	code      CodeGenerator
}

// Option customises optional collaborators.
type Option func(*Service)

// WithLocker serialises advance calls per transfer.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithApprovals records approve, reject and cancel decisions.
func WithApprovals(a ApprovalPort) Option { return func(s *Service) { s.approvals = a } }

// WithAudit records every transition.
func WithAudit(a AuditPort) Option { return func(s *Service) { s.audit = a } }

// WithMetrics counts actions by outcome.
func WithMetrics(m MetricsRecorder) Option { return func(s *Service) { s.metrics = m } }

// NewService constructs the transfer service.
func NewService(repo RepositoryPort, inv InventoryPort, authz Authorizer, cfg ServiceConfig, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		repo:      repo,
		inventory: inv,
		authz:     authz,
		logger:    logger,
		validate:  validator.New(),
		now:       cfg.Now,
		code:      cfg.GenerateCode,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.code == nil {
		s.code = RandomCode
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the request, stores a pending transfer and reserves its lines
// at the source. Transfer row and reservations commit together or not at all.
// Both endpoints must resolve before the actor's branch access is checked, so an
// unknown location is reported as an invalid request to every caller.
func (s *Service) Create(ctx context.Context, in CreateInput) (created Transfer, err error) {
	defer func() { s.observe("create", err) }()

	if err := s.validateCreate(in); err != nil {
		return Transfer{}, err
	}
	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, ref := range []inventory.LocationRef{in.Source, in.Destination} {
			if _, err := inventory.ResolveLocations(ctx, tx, ref, true); err != nil {
				if errors.Is(err, inventory.ErrLocationNotFound) {
					return invalid(err, "%s does not exist", ref)
				}
				return err
			}
		}
		if err := s.authorize(ctx, in.ActorID, in.Source, "create"); err != nil {
			return err
		}
		code, err := s.uniqueCode(ctx, tx, now)
		if err != nil {
			return err
		}
		t := Transfer{
			ReferenceCode: code,
			Source:        in.Source,
			Destination:   in.Destination,
			Status:        StatusPending,
			InitiatedBy:   in.ActorID,
			InitiatedAt:   now,
			Note:          in.Note,
		}
		if t.ID, err = tx.InsertTransfer(ctx, t); err != nil {
			return err
		}
		for _, line := range in.Lines {
			item, err := tx.GetItem(ctx, line.ItemID)
			if err != nil {
				if errors.Is(err, inventory.ErrItemNotFound) {
					return invalid(err, "item #%d does not exist", line.ItemID)
				}
				return err
			}
			li := LineItem{TransferID: t.ID, ItemID: line.ItemID, Quantity: line.Quantity, UnitCost: item.UnitCost}
			if li.ID, err = tx.InsertLine(ctx, li); err != nil {
				return err
			}
			t.Lines = append(t.Lines, li)
		}
		if _, err := s.inventory.Reservations().Reserve(ctx, tx, inventory.ReserveInput{
			Lines:     t.inventoryLines(),
			Location:  t.Source,
			Reference: t.reference(),
			ActorID:   in.ActorID,
		}); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		s.logger.Warn("transfer create failed", slog.String("source", in.Source.String()), slog.String("destination", in.Destination.String()), slog.Any("error", err))
		return Transfer{}, err
	}

	s.logger.Info("transfer created", slog.Int64("transfer_id", created.ID), slog.String("reference_code", created.ReferenceCode))
	s.recordApproval(ctx, created, in.ActorID, shared.ApprovalSubmit)
	s.recordAudit(ctx, created, in.ActorID, "create", "", map[string]any{
		"source":      created.Source.String(),
		"destination": created.Destination.String(),
		"lines":       len(created.Lines),
		"value":       created.TotalValue().String(),
	})
	return created, nil
}

// Advance applies action to a transfer. The status change, any stock movement and
// reservation release commit in one transaction; on failure the transfer keeps its status.
func (s *Service) Advance(ctx context.Context, id int64, action Action, actorID int64) (updated Transfer, err error) {
	defer func() { s.observe(string(action), err) }()

	if _, err := ParseAction(string(action)); err != nil {
		return Transfer{}, err
	}
	if actorID <= 0 {
		return Transfer{}, invalid(nil, "actor required")
	}
	var from Status
	run := func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			t, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			from = t.Status
			next, err := Next(t.Status, action)
			if err != nil {
				return err
			}
			if action == ActionApprove || action == ActionReject {
				if err := s.authorize(ctx, actorID, t.Destination, string(action)); err != nil {
					return err
				}
			}

			var approvedBy int64
			var approvedAt *time.Time
			switch action {
			case ActionApprove:
				now := s.now()
				approvedBy, approvedAt = actorID, &now
				t.ApprovedBy, t.ApprovedAt = actorID, &now
			case ActionComplete:
				if _, err := s.inventory.Movements().ExecuteTx(ctx, tx, inventory.MovementInput{
					Lines:       t.inventoryLines(),
					Source:      t.Source,
					Destination: t.Destination,
					Reference:   t.reference(),
					ActorID:     actorID,
					Note:        t.ReferenceCode,
				}); err != nil {
					return err
				}
			}
			if releasesReservations(next) {
				if _, err := s.inventory.Reservations().Release(ctx, tx, t.reference()); err != nil {
					return err
				}
			}
			if err := tx.UpdateStatus(ctx, t.ID, next, approvedBy, approvedAt); err != nil {
				return err
			}
			t.Status = next
			updated = t
			return nil
		})
	}
	if s.locker != nil {
		err = s.locker.WithLock(ctx, shared.TransferLockKey(id), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		s.logger.Warn("transfer action failed", slog.Int64("transfer_id", id), slog.String("action", string(action)), slog.Any("error", err))
		return Transfer{}, err
	}

	s.logger.Info("transfer advanced", slog.Int64("transfer_id", id), slog.String("reference_code", updated.ReferenceCode),
		slog.String("action", string(action)), slog.String("from", string(from)), slog.String("to", string(updated.Status)))
	switch action {
	case ActionApprove:
		s.recordApproval(ctx, updated, actorID, shared.ApprovalApprove)
	case ActionReject:
		s.recordApproval(ctx, updated, actorID, shared.ApprovalReject)
	case ActionCancel:
		s.recordApproval(ctx, updated, actorID, shared.ApprovalCancel)
	}
	s.recordAudit(ctx, updated, actorID, string(action), from, nil)
	return updated, nil
}

// Get returns a transfer with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// Approvals returns the approval decisions taken on a transfer, oldest first.
func (s *Service) Approvals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	logs, err := s.approvals.List(ctx, approvalModule, shared.ReferenceUUID(approvalModule, id))
	if err != nil {
		return nil, fmt.Errorf("list approvals for transfer %d: %w", id, err)
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	return logs, nil
}

// ListResult is one page of transfers.
type ListResult struct {
	Transfers  []Transfer        `json:"transfers"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns transfers newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return ListResult{}, invalid(nil, "unknown status %q", filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Transfer{}
	}
	return ListResult{Transfers: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

func (s *Service) validateCreate(in CreateInput) error {
	if err := s.validate.Struct(in); err != nil {
		return invalid(err, "%s", describeValidation(err))
	}
	if err := in.Source.Validate(); err != nil {
		return invalid(err, "source: %v", err)
	}
	if err := in.Destination.Validate(); err != nil {
		return invalid(err, "destination: %v", err)
	}
	if in.Source == in.Destination {
		return invalid(inventory.ErrSameLocation, "source and destination must differ")
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
}

func (s *Service) authorize(ctx context.Context, actorID int64, loc inventory.LocationRef, action string) error {
	if s.authz == nil {
		return nil
	}
	ok, err := s.authz.CanAccess(ctx, actorID, loc)
	if err != nil {
		return err
	}
	if !ok {
		return &UnauthorizedError{ActorID: actorID, Location: loc, Action: action}
	}
	return nil
}

func (s *Service) uniqueCode(ctx context.Context, tx TxRepository, now time.Time) (string, error) {
	for range maxCodeAttempts {
		code := s.code(now)
		exists, err := tx.ReferenceCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("transfer: could not allocate a unique reference code")
}

func (s *Service) observe(action string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveTransferAction(action, Outcome(err))
}

// Outcome labels an action result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, inventory.ErrInsufficientStock), errors.Is(err, inventory.ErrInsufficientAvailableStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNotFound):
		return "rejected"
	case errors.Is(err, shared.ErrLockNotObtained):
		return "locked"
	}
	return "error"
}

func (s *Service) recordApproval(ctx context.Context, t Transfer, actorID int64, action shared.ApprovalAction) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   shared.ReferenceUUID(approvalModule, t.ID),
		ActorID: actorID,
		Action:  action,
		Note:    fmt.Sprintf("Transfer %s %s", t.ReferenceCode, t.Status),
		At:      s.now(),
	})
	if err != nil {
		s.logger.Error("record transfer approval", slog.Int64("transfer_id", t.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, t Transfer, actorID int64, action string, from Status, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["reference_code"] = t.ReferenceCode
	meta["status"] = string(t.Status)
	if from != "" {
		meta["from"] = string(from)
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "transfer:" + action,
		Entity:   "transfer",
		EntityID: fmt.Sprintf("%d", t.ID),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Error("audit transfer", slog.Int64("transfer_id", t.ID), slog.Any("error", err))
	}
}
