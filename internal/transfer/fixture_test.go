package transfer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockflow/internal/shared"
	"github.com/odyssey-erp/stockflow/internal/transfer"
	"github.com/odyssey-erp/stockflow/internal/transfer/transfertest"
)

const (
	itemWidget = int64(42)
	itemBolt   = int64(7)

	clerkJakarta = int64(3)
	clerkBandung = int64(4)
	supervisor   = int64(9)
)

// branchAuthorizer grants actors the branches they are assigned to; storage
// locations are resolved through the store.
type branchAuthorizer struct {
	store    *inventorytest.Store
	branches map[int64][]int64
	all      map[int64]bool
}

func (a *branchAuthorizer) CanAccess(_ context.Context, actorID int64, loc inventory.LocationRef) (bool, error) {
	if a.all[actorID] {
		return true, nil
	}
	branchID := loc.ID
	if !loc.IsBranch() {
		branchID = 0
		for _, b := range a.branches[actorID] {
			for _, l := range a.store.LocationsOf(b) {
				if l.ID == loc.ID {
					branchID = b
				}
			}
		}
	}
	for _, b := range a.branches[actorID] {
		if b == branchID {
			return true, nil
		}
	}
	return false, nil
}

type memoryApprovals struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (m *memoryApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryApprovals) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range m.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryApprovals) actions() []shared.ApprovalAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]shared.ApprovalAction, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Action)
	}
	return out
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (o *outcomeRecorder) ObserveTransferAction(action, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string][]string{}
	}
	o.outcomes[action] = append(o.outcomes[action], outcome)
}

func (o *outcomeRecorder) last(action string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.outcomes[action]
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}

type fixture struct {
	store     *inventorytest.Store
	clock     *inventorytest.Clock
	repo      *transfertest.Repository
	inventory *inventory.Service
	authz     *branchAuthorizer
	approvals *memoryApprovals
	audit     *memoryAudit
	metrics   *outcomeRecorder
	svc       *transfer.Service
}

// newFixture seeds branch 1 (locations 11, 12), branch 2 (location 21) and
// branch 3 without any location. clerkJakarta works in branch 1, clerkBandung
// in branch 2 and supervisor may act anywhere.
func newFixture(t *testing.T, opts ...transfer.Option) *fixture {
	t.Helper()
	clock := inventorytest.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	store := inventorytest.NewStore(clock.Now)
	store.AddBranch(1, "Jakarta")
	store.AddBranch(2, "Bandung")
	store.AddBranch(3, "Surabaya")
	store.AddLocation(11, 1, "Jakarta North")
	store.AddLocation(12, 1, "Jakarta South")
	store.AddLocation(21, 2, "Bandung Main")
	store.AddItem(itemWidget, "Widget", 12)
	store.AddItem(itemBolt, "Bolt", 1)
	store.SetUnitCost(itemWidget, decimal.RequireFromString("2.50"))

	f := &fixture{
		store:     store,
		clock:     clock,
		repo:      transfertest.NewRepository(store),
		inventory: inventory.NewService(store, nil, nil, inventory.ServiceConfig{Now: clock.Now}, nil),
		authz: &branchAuthorizer{
			store:    store,
			branches: map[int64][]int64{clerkJakarta: {1}, clerkBandung: {2}},
			all:      map[int64]bool{supervisor: true},
		},
		approvals: &memoryApprovals{},
		audit:     &memoryAudit{},
		metrics:   &outcomeRecorder{},
	}
	base := []transfer.Option{
		transfer.WithApprovals(f.approvals),
		transfer.WithAudit(f.audit),
		transfer.WithMetrics(f.metrics),
	}
	f.svc = transfer.NewService(f.repo, f.inventory, f.authz, transfer.ServiceConfig{Now: clock.Now}, nil, append(base, opts...)...)
	return f
}

func (f *fixture) create(t *testing.T, src, dst inventory.LocationRef, actorID int64, pairs ...int64) transfer.Transfer {
	t.Helper()
	in := transfer.CreateInput{Source: src, Destination: dst, ActorID: actorID}
	for i := 0; i+1 < len(pairs); i += 2 {
		in.Lines = append(in.Lines, transfer.LineInput{ItemID: pairs[i], Quantity: pairs[i+1]})
	}
	tr, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return tr
}

func (f *fixture) advance(t *testing.T, id int64, action transfer.Action, actorID int64) transfer.Transfer {
	t.Helper()
	tr, err := f.svc.Advance(context.Background(), id, action, actorID)
	require.NoError(t, err)
	return tr
}

func (f *fixture) reserved(t *testing.T, itemID int64, ref inventory.LocationRef) int64 {
	t.Helper()
	n, err := f.inventory.ReservedStock(context.Background(), itemID, ref)
	require.NoError(t, err)
	return n
}

func (f *fixture) available(t *testing.T, itemID int64, ref inventory.LocationRef) int64 {
	t.Helper()
	n, err := f.inventory.AvailableStock(context.Background(), itemID, ref)
	require.NoError(t, err)
	return n
}
