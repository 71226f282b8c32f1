// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

type balanceKey struct {
	location int64
	item     int64
}

type state struct {
	branches     map[int64]string
	locations    map[int64]inventory.Location
	items        map[int64]inventory.Item
	balances     map[balanceKey]inventory.Balance
	history      []inventory.MovementRecord
	reservations map[int64]inventory.Reservation
	nextID       int64
	adjustments  int64
}

func (s state) clone() state {
	return state{
		branches:     maps.Clone(s.branches),
		locations:    maps.Clone(s.locations),
		items:        maps.Clone(s.items),
		balances:     maps.Clone(s.balances),
		history:      slices.Clone(s.history),
		reservations: maps.Clone(s.reservations),
		nextID:       s.nextID,
		adjustments:  s.adjustments,
	}
}

var (
	_ inventory.RepositoryPort = (*Store)(nil)
	_ inventory.TxRepository   = (*Tx)(nil)
)

// Store implements inventory.RepositoryPort in memory. Transactions are
// serialized and roll back to a snapshot when the callback fails.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

// NewStore returns an empty store using now for balance timestamps.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		now: now,
		state: state{
			branches:     map[int64]string{},
			locations:    map[int64]inventory.Location{},
			items:        map[int64]inventory.Item{},
			balances:     map[balanceKey]inventory.Balance{},
			reservations: map[int64]inventory.Reservation{},
			nextID:       1000,
		},
	}
}

// WithTx implements inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return s.Atomic(func(tx *Tx) error { return fn(ctx, tx) })
}

// Atomic runs fn with exclusive access and restores the previous state if fn fails.
func (s *Store) Atomic(fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(&Tx{s: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// History implements inventory.RepositoryPort.
func (s *Store) History(_ context.Context, filter inventory.HistoryFilter) ([]inventory.MovementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.MovementRecord
	for _, rec := range s.state.history {
		if rec.ItemID != filter.ItemID {
			continue
		}
		if filter.LocationID != 0 && rec.LocationID != filter.LocationID {
			continue
		}
		if !filter.From.IsZero() && rec.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && rec.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddBranch seeds a branch.
func (s *Store) AddBranch(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.branches[id] = name
}

// AddLocation seeds a storage location under branchID.
func (s *Store) AddLocation(id, branchID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.locations[id] = inventory.Location{ID: id, BranchID: branchID, Code: fmt.Sprintf("WH-%d", id), Name: name}
}

// AddItem seeds a catalogue item.
func (s *Store) AddItem(id int64, name string, unitCapacity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.items[id] = inventory.Item{ID: id, Name: name, UnitCapacity: unitCapacity}
}

// SetUnitCost sets the catalogue cost snapshotted by transfer lines.
func (s *Store) SetUnitCost(itemID int64, cost decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.state.items[itemID]
	item.UnitCost = cost
	s.state.items[itemID] = item
}

// SetBalance writes a balance directly, bypassing the ledger.
func (s *Store) SetBalance(locationID, itemID, pieces int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	units := int64(1)
	if item, ok := s.state.items[itemID]; ok && item.UnitCapacity > 0 {
		units = item.UnitCapacity
	}
	s.state.balances[balanceKey{locationID, itemID}] = inventory.Balance{
		LocationID:        locationID,
		ItemID:            itemID,
		PieceCount:        pieces,
		Quantity:          pieces,
		TotalUnits:        pieces * units,
		CurrentPieceUnits: units,
		UpdatedAt:         s.now(),
	}
}

// BalanceOf returns the stored balance row and whether it exists.
func (s *Store) BalanceOf(locationID, itemID int64) (inventory.Balance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.state.balances[balanceKey{locationID, itemID}]
	return bal, ok
}

// PieceCount returns the piece count at a location, zero when no row exists.
func (s *Store) PieceCount(locationID, itemID int64) int64 {
	bal, _ := s.BalanceOf(locationID, itemID)
	return bal.PieceCount
}

// Movements returns every movement record for ref in insertion order.
func (s *Store) Movements(ref inventory.Reference) []inventory.MovementRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.MovementRecord
	for _, rec := range s.state.history {
		if rec.Reference == ref {
			out = append(out, rec)
		}
	}
	return out
}

// Reservations returns every stored reservation, expired ones included, ordered by id.
func (s *Store) Reservations() []inventory.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.state.reservations))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock { return &Clock{t: t} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// LocationsOf returns the locations of a branch ordered by id.
func (s *Store) LocationsOf(branchID int64) []inventory.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&Tx{s: s}).locationsForBranch(branchID)
}

// Tx is the transactional view handed to callbacks. It must not escape the callback.
type Tx struct {
	s *Store
}

func (t *Tx) id() int64 {
	t.s.state.nextID++
	return t.s.state.nextID
}

func (t *Tx) GetItem(_ context.Context, itemID int64) (inventory.Item, error) {
	item, ok := t.s.state.items[itemID]
	if !ok {
		return inventory.Item{}, fmt.Errorf("%w: #%d", inventory.ErrItemNotFound, itemID)
	}
	return item, nil
}

func (t *Tx) GetLocation(_ context.Context, locationID int64) (inventory.Location, error) {
	loc, ok := t.s.state.locations[locationID]
	if !ok {
		return inventory.Location{}, fmt.Errorf("%w: %s", inventory.ErrLocationNotFound, inventory.Storage(locationID))
	}
	return loc, nil
}

func (t *Tx) LocationsForBranch(_ context.Context, branchID int64) ([]inventory.Location, error) {
	return t.locationsForBranch(branchID), nil
}

func (t *Tx) locationsForBranch(branchID int64) []inventory.Location {
	var out []inventory.Location
	for _, loc := range t.s.state.locations {
		if loc.BranchID == branchID {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tx) CreateDefaultLocation(_ context.Context, branchID int64) (inventory.Location, error) {
	name, ok := t.s.state.branches[branchID]
	if !ok {
		return inventory.Location{}, inventory.ErrBranchNotFound
	}
	if existing := t.locationsForBranch(branchID); len(existing) > 0 {
		return existing[0], nil
	}
	loc := inventory.Location{ID: t.id(), BranchID: branchID, Code: fmt.Sprintf("WH-B%d", branchID), Name: name + " Main Warehouse"}
	t.s.state.locations[loc.ID] = loc
	return loc, nil
}

func (t *Tx) GetBalanceForUpdate(_ context.Context, locationID, itemID int64) (inventory.Balance, error) {
	bal, ok := t.s.state.balances[balanceKey{locationID, itemID}]
	if !ok {
		return inventory.Balance{LocationID: locationID, ItemID: itemID}, inventory.ErrBalanceNotFound
	}
	return bal, nil
}

func (t *Tx) LockBalances(_ context.Context, itemID int64, locationIDs []int64) ([]inventory.Balance, error) {
	var out []inventory.Balance
	for _, id := range locationIDs {
		if bal, ok := t.s.state.balances[balanceKey{id, itemID}]; ok {
			out = append(out, bal)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PieceCount == out[j].PieceCount {
			return out[i].LocationID < out[j].LocationID
		}
		return out[i].PieceCount > out[j].PieceCount
	})
	return out, nil
}

func (t *Tx) SumPieceCount(_ context.Context, itemID int64, locationIDs []int64) (int64, error) {
	var total int64
	for _, id := range locationIDs {
		total += t.s.state.balances[balanceKey{id, itemID}].PieceCount
	}
	return total, nil
}

func (t *Tx) EnsureBalance(_ context.Context, balance inventory.Balance) error {
	key := balanceKey{balance.LocationID, balance.ItemID}
	if _, ok := t.s.state.balances[key]; ok {
		return nil
	}
	t.s.state.balances[key] = inventory.Balance{
		LocationID:        balance.LocationID,
		ItemID:            balance.ItemID,
		CurrentPieceUnits: balance.CurrentPieceUnits,
		UpdatedAt:         t.s.now(),
	}
	return nil
}

func (t *Tx) UpdateBalance(_ context.Context, balance inventory.Balance) error {
	key := balanceKey{balance.LocationID, balance.ItemID}
	if _, ok := t.s.state.balances[key]; !ok {
		return inventory.ErrBalanceNotFound
	}
	if balance.PieceCount < 0 {
		return fmt.Errorf("negative balance written for %d:%d", balance.LocationID, balance.ItemID)
	}
	balance.UpdatedAt = t.s.now()
	t.s.state.balances[key] = balance
	return nil
}

func (t *Tx) InsertMovement(_ context.Context, rec inventory.MovementRecord) (int64, error) {
	rec.ID = t.id()
	t.s.state.history = append(t.s.state.history, rec)
	return rec.ID, nil
}

func (t *Tx) SumActiveReservations(_ context.Context, itemID int64, loc inventory.LocationRef, now time.Time) (int64, error) {
	var total int64
	for _, r := range t.s.state.reservations {
		if r.ItemID == itemID && r.Location == loc && r.Active(now) {
			total += r.Quantity
		}
	}
	return total, nil
}

func (t *Tx) InsertReservation(_ context.Context, r inventory.Reservation) (int64, error) {
	r.ID = t.id()
	t.s.state.reservations[r.ID] = r
	return r.ID, nil
}

func (t *Tx) DeleteReservations(_ context.Context, ref inventory.Reference) (int64, error) {
	var n int64
	for id, r := range t.s.state.reservations {
		if r.Reference == ref {
			delete(t.s.state.reservations, id)
			n++
		}
	}
	return n, nil
}

func (t *Tx) DeleteExpiredReservations(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, r := range t.s.state.reservations {
		if !r.Active(now) {
			delete(t.s.state.reservations, id)
			n++
		}
	}
	return n, nil
}

// NextAdjustmentID hands out adjustment reference ids starting at 1.
func (t *Tx) NextAdjustmentID(context.Context) (int64, error) {
	t.s.state.adjustments++
	return t.s.state.adjustments, nil
}
