package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transfer, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, int, error)
}

// TxRepository exposes transfer writes together with the inventory operations
// of the same transaction.
type TxRepository interface {
	inventory.TxRepository
	ReferenceCodeExists(ctx context.Context, code string) (bool, error)
	InsertTransfer(ctx context.Context, t Transfer) (int64, error)
	InsertLine(ctx context.Context, line LineItem) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Transfer, error)
	UpdateStatus(ctx context.Context, id int64, status Status, approvedBy int64, approvedAt *time.Time) error
}

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, runner *db.TxRunner) *Repository {
	if runner == nil {
		runner = db.NewTxRunner(pool, db.DefaultMaxAttempts)
	}
	return &Repository{pool: pool, runner: runner}
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction, replaying it on serialization failure.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfer repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

const transferColumns = `id, reference_code, source_type, source_id, destination_type, destination_id, status,
user_id, COALESCE(approved_by, 0), approved_at, date_initiated, COALESCE(note, '')`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var srcType, dstType, status string
	err := row.Scan(&t.ID, &t.ReferenceCode, &srcType, &t.Source.ID, &dstType, &t.Destination.ID, &status,
		&t.InitiatedBy, &t.ApprovedBy, &t.ApprovedAt, &t.InitiatedAt, &t.Note)
	if err != nil {
		return Transfer{}, err
	}
	t.Source.Kind = inventory.LocationKind(srcType)
	t.Destination.Kind = inventory.LocationKind(dstType)
	t.Status = Status(status)
	return t, nil
}

// Get loads a transfer with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	t.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// List returns transfers newest first with the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	var where []string
	var args []any
	add := func(clause string, values ...any) {
		for _, v := range values {
			args = append(args, v)
			clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(args)), 1)
		}
		where = append(where, clause)
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.Source != nil {
		add("source_type = ? AND source_id = ?", string(filter.Source.Kind), filter.Source.ID)
	}
	if filter.Destination != nil {
		add("destination_type = ? AND destination_id = ?", string(filter.Destination.Kind), filter.Destination.ID)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM transfers%s ORDER BY date_initiated DESC, id DESC LIMIT $%d OFFSET $%d`,
		transferColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func loadLines(ctx context.Context, q shared.DBTX, transferID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, item_id, quantity, unit_cost FROM transfer_items WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LineItem
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ItemID, &l.Quantity, &l.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) ReferenceCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transfers WHERE reference_code=$1)`, code).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transfers (reference_code, source_type, source_id, destination_type, destination_id, status, user_id, date_initiated, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`, t.ReferenceCode, string(t.Source.Kind), t.Source.ID, string(t.Destination.Kind), t.Destination.ID,
		string(t.Status), t.InitiatedBy, t.InitiatedAt, t.Note).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transfer_items (transfer_id, item_id, quantity, unit_cost) VALUES ($1,$2,$3,$4) RETURNING id`,
		line.TransferID, line.ItemID, line.Quantity, line.UnitCost).Scan(&id)
	return id, err
}

// GetForUpdate locks the transfer row for the rest of the transaction.
func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	t, err := scanTransfer(r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	t.Lines, err = loadLines(ctx, r.tx, id)
	if err != nil {
		return Transfer{}, err
	}
	return t, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, approvedBy int64, approvedAt *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transfers
SET status=$2, approved_by=COALESCE(NULLIF($3::bigint, 0), approved_by), approved_at=COALESCE($4, approved_at)
WHERE id=$1`, id, string(status), approvedBy, approvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
