package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.TxRunner
}

// NewRepository constructs Repository. A nil runner retries with db.DefaultMaxAttempts.
func NewRepository(pool *pgxpool.Pool, runner *db.TxRunner) *Repository {
	if runner == nil {
		runner = db.NewTxRunner(pool, db.DefaultMaxAttempts)
	}
	return &Repository{pool: pool, runner: runner}
}

// TxRepository exposes transactional operations used by the ledger, reservations and movement engine.
type TxRepository interface {
	GetItem(ctx context.Context, itemID int64) (Item, error)
	GetLocation(ctx context.Context, locationID int64) (Location, error)
	LocationsForBranch(ctx context.Context, branchID int64) ([]Location, error)
	CreateDefaultLocation(ctx context.Context, branchID int64) (Location, error)

	GetBalanceForUpdate(ctx context.Context, locationID, itemID int64) (Balance, error)
	LockBalances(ctx context.Context, itemID int64, locationIDs []int64) ([]Balance, error)
	SumPieceCount(ctx context.Context, itemID int64, locationIDs []int64) (int64, error)
	EnsureBalance(ctx context.Context, balance Balance) error
	UpdateBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, rec MovementRecord) (int64, error)

	SumActiveReservations(ctx context.Context, itemID int64, loc LocationRef, now time.Time) (int64, error)
	InsertReservation(ctx context.Context, r Reservation) (int64, error)
	DeleteReservations(ctx context.Context, ref Reference) (int64, error)
	DeleteExpiredReservations(ctx context.Context, now time.Time) (int64, error)

	NextAdjustmentID(ctx context.Context) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds inventory operations to an already open transaction so
// other modules can compose them into their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// History lists movement records newest first.
func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]MovementRecord, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, location_id, item_id, quantity_before, quantity_after, quantity_change,
       reference_type, reference_id, description, COALESCE(user_id, 0), created_at
FROM stock_history
WHERE item_id=$1
  AND ($2::bigint IS NULL OR location_id=$2)
  AND created_at BETWEEN COALESCE($3, '-infinity'::timestamptz) AND COALESCE($4, 'infinity'::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $5`, filter.ItemID, nullInt(filter.LocationID), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []MovementRecord{}
	for rows.Next() {
		var rec MovementRecord
		if err := rows.Scan(&rec.ID, &rec.LocationID, &rec.ItemID, &rec.QuantityBefore, &rec.QuantityAfter, &rec.QuantityChange,
			&rec.Reference.Kind, &rec.Reference.ID, &rec.Description, &rec.UserID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *txRepository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	var item Item
	err := r.tx.QueryRow(ctx, `SELECT id, name, unit_capacity, unit_cost FROM items WHERE id=$1`, itemID).
		Scan(&item.ID, &item.Name, &item.UnitCapacity, &item.UnitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, fmt.Errorf("%w: #%d", ErrItemNotFound, itemID)
		}
		return Item{}, err
	}
	return item, nil
}

func (r *txRepository) GetLocation(ctx context.Context, locationID int64) (Location, error) {
	var loc Location
	err := r.tx.QueryRow(ctx, `SELECT id, branch_id, code, name FROM warehouses WHERE id=$1`, locationID).
		Scan(&loc.ID, &loc.BranchID, &loc.Code, &loc.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, fmt.Errorf("%w: %s", ErrLocationNotFound, Storage(locationID))
		}
		return Location{}, err
	}
	return loc, nil
}

func (r *txRepository) LocationsForBranch(ctx context.Context, branchID int64) ([]Location, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, branch_id, code, name FROM warehouses WHERE branch_id=$1 ORDER BY id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locs []Location
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.ID, &loc.BranchID, &loc.Code, &loc.Name); err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// CreateDefaultLocation locks the branch row so concurrent callers create at most one default location.
func (r *txRepository) CreateDefaultLocation(ctx context.Context, branchID int64) (Location, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT name FROM branches WHERE id=$1 FOR UPDATE`, branchID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrBranchNotFound
		}
		return Location{}, err
	}
	existing, err := r.LocationsForBranch(ctx, branchID)
	if err != nil {
		return Location{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}
	loc := Location{BranchID: branchID, Code: fmt.Sprintf("WH-B%d", branchID), Name: name + " Main Warehouse"}
	err = r.tx.QueryRow(ctx, `INSERT INTO warehouses (branch_id, code, name, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW()) RETURNING id`, loc.BranchID, loc.Code, loc.Name).Scan(&loc.ID)
	if err != nil {
		return Location{}, err
	}
	return loc, nil
}

const balanceColumns = `location_id, item_id, piece_count, quantity, total_units, current_piece_units, updated_at`

func scanBalance(row pgx.Row) (Balance, error) {
	var bal Balance
	err := row.Scan(&bal.LocationID, &bal.ItemID, &bal.PieceCount, &bal.Quantity, &bal.TotalUnits, &bal.CurrentPieceUnits, &bal.UpdatedAt)
	return bal, err
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, locationID, itemID int64) (Balance, error) {
	bal, err := scanBalance(r.tx.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances WHERE location_id=$1 AND item_id=$2 FOR UPDATE`, locationID, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{LocationID: locationID, ItemID: itemID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// LockBalances claims existing rows and returns them ordered by piece_count desc,
// location id asc. Rows are locked in location order and written (updated_at), so a
// repeatable-read transaction whose snapshot predates another claimant's commit
// fails with a serialization error instead of reading stale reservations.
func (r *txRepository) LockBalances(ctx context.Context, itemID int64, locationIDs []int64) ([]Balance, error) {
	if len(locationIDs) == 0 {
		return nil, nil
	}
	rows, err := r.tx.Query(ctx, `WITH claimed AS (
    SELECT location_id FROM stock_balances
    WHERE item_id=$1 AND location_id = ANY($2)
    ORDER BY location_id
    FOR UPDATE
)
UPDATE stock_balances b SET updated_at=NOW()
FROM claimed
WHERE b.item_id=$1 AND b.location_id=claimed.location_id
RETURNING b.location_id, b.item_id, b.piece_count, b.quantity, b.total_units, b.current_piece_units, b.updated_at`, itemID, locationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		bal, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].PieceCount == balances[j].PieceCount {
			return balances[i].LocationID < balances[j].LocationID
		}
		return balances[i].PieceCount > balances[j].PieceCount
	})
	return balances, nil
}

func (r *txRepository) SumPieceCount(ctx context.Context, itemID int64, locationIDs []int64) (int64, error) {
	if len(locationIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(piece_count), 0) FROM stock_balances WHERE item_id=$1 AND location_id = ANY($2)`, itemID, locationIDs).Scan(&total)
	return total, err
}

func (r *txRepository) EnsureBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (location_id, item_id, piece_count, quantity, total_units, current_piece_units, updated_at)
VALUES ($1,$2,0,0,0,$3,NOW())
ON CONFLICT (location_id, item_id) DO NOTHING`, balance.LocationID, balance.ItemID, balance.CurrentPieceUnits)
	return err
}

func (r *txRepository) UpdateBalance(ctx context.Context, balance Balance) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_balances
SET piece_count=$3, quantity=$4, total_units=$5, current_piece_units=$6, updated_at=NOW()
WHERE location_id=$1 AND item_id=$2`, balance.LocationID, balance.ItemID, balance.PieceCount, balance.Quantity, balance.TotalUnits, balance.CurrentPieceUnits)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, rec MovementRecord) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_history (location_id, item_id, quantity_before, quantity_after, quantity_change, reference_type, reference_id, description, user_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`, rec.LocationID, rec.ItemID, rec.QuantityBefore, rec.QuantityAfter, rec.QuantityChange,
		rec.Reference.Kind, rec.Reference.ID, rec.Description, nullInt(rec.UserID), rec.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) SumActiveReservations(ctx context.Context, itemID int64, loc LocationRef, now time.Time) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
WHERE item_id=$1 AND location_type=$2 AND location_id=$3 AND expires_at > $4`, itemID, string(loc.Kind), loc.ID, now).Scan(&total)
	return total, err
}

func (r *txRepository) InsertReservation(ctx context.Context, res Reservation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_reservations (item_id, location_type, location_id, quantity, reference_type, reference_id, expires_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`, res.ItemID, string(res.Location.Kind), res.Location.ID, res.Quantity,
		res.Reference.Kind, res.Reference.ID, res.ExpiresAt, nullInt(res.CreatedBy), res.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) DeleteReservations(ctx context.Context, ref Reference) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_reservations WHERE reference_type=$1 AND reference_id=$2`, ref.Kind, ref.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) DeleteExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_reservations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) NextAdjustmentID(ctx context.Context) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT nextval('stock_adjustment_seq')`).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
