// Package transfertest provides an in-memory transfer repository sharing
// transactions with an inventorytest.Store.
package transfertest

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockflow/internal/transfer"
)

var (
	_ transfer.RepositoryPort = (*Repository)(nil)
	_ transfer.TxRepository   = (*Tx)(nil)
)

// Repository keeps transfers in memory. Writes roll back together with the
// inventory store when the transaction callback fails.
type Repository struct {
	store *inventorytest.Store

	mu        sync.Mutex
	transfers map[int64]transfer.Transfer
	nextID    int64
}

// NewRepository wraps store.
func NewRepository(store *inventorytest.Store) *Repository {
	return &Repository{store: store, transfers: map[int64]transfer.Transfer{}}
}

// WithTx implements transfer.RepositoryPort.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, transfer.TxRepository) error) error {
	return r.store.Atomic(func(inv *inventorytest.Tx) error {
		r.mu.Lock()
		snapshot, nextID := cloneTransfers(r.transfers), r.nextID
		r.mu.Unlock()

		if err := fn(ctx, &Tx{Tx: inv, r: r}); err != nil {
			r.mu.Lock()
			r.transfers, r.nextID = snapshot, nextID
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

// Get implements transfer.RepositoryPort.
func (r *Repository) Get(_ context.Context, id int64) (transfer.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return transfer.Transfer{}, transfer.ErrNotFound
	}
	return cloneTransfer(t), nil
}

// List implements transfer.RepositoryPort.
func (r *Repository) List(_ context.Context, filter transfer.ListFilter) ([]transfer.Transfer, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []transfer.Transfer
	for _, t := range r.transfers {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Source != nil && t.Source != *filter.Source {
			continue
		}
		if filter.Destination != nil && t.Destination != *filter.Destination {
			continue
		}
		t.Lines = nil
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InitiatedAt.Equal(out[j].InitiatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].InitiatedAt.After(out[j].InitiatedAt)
	})
	total := len(out)
	start := (filter.Page - 1) * filter.PerPage
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if filter.PerPage > 0 && start+filter.PerPage < total {
		end = start + filter.PerPage
	}
	return out[start:end], total, nil
}

// Status returns the stored status of a transfer.
func (r *Repository) Status(id int64) transfer.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transfers[id].Status
}

// Len reports how many transfers are stored.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}

// Tx combines the inventory transaction with transfer writes.
type Tx struct {
	*inventorytest.Tx
	r *Repository
}

func (t *Tx) ReferenceCodeExists(_ context.Context, code string) (bool, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	for _, tr := range t.r.transfers {
		if tr.ReferenceCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) InsertTransfer(_ context.Context, tr transfer.Transfer) (int64, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.nextID++
	tr.ID = t.r.nextID
	tr.Lines = nil
	t.r.transfers[tr.ID] = tr
	return tr.ID, nil
}

func (t *Tx) InsertLine(_ context.Context, line transfer.LineItem) (int64, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	tr, ok := t.r.transfers[line.TransferID]
	if !ok {
		return 0, transfer.ErrNotFound
	}
	line.ID = int64(len(tr.Lines) + 1)
	tr.Lines = append(tr.Lines, line)
	t.r.transfers[tr.ID] = tr
	return line.ID, nil
}

func (t *Tx) GetForUpdate(ctx context.Context, id int64) (transfer.Transfer, error) {
	return t.r.Get(ctx, id)
}

func (t *Tx) UpdateStatus(_ context.Context, id int64, status transfer.Status, approvedBy int64, approvedAt *time.Time) error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	tr, ok := t.r.transfers[id]
	if !ok {
		return transfer.ErrNotFound
	}
	tr.Status = status
	if approvedBy != 0 {
		tr.ApprovedBy = approvedBy
	}
	if approvedAt != nil {
		at := *approvedAt
		tr.ApprovedAt = &at
	}
	t.r.transfers[id] = tr
	return nil
}

func cloneTransfer(t transfer.Transfer) transfer.Transfer {
	t.Lines = slices.Clone(t.Lines)
	return t
}

func cloneTransfers(in map[int64]transfer.Transfer) map[int64]transfer.Transfer {
	out := maps.Clone(in)
	for id, t := range out {
		out[id] = cloneTransfer(t)
	}
	return out
}
