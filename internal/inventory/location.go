package inventory

import (
	"context"
	"errors"
	"fmt"
)

// LocationKind discriminates the two kinds of stock-holding references.
type LocationKind string

const (
	// LocationBranch addresses every storage location owned by a branch.
	LocationBranch LocationKind = "branch"
	// LocationStorage addresses a single physical storage location (warehouse).
	LocationStorage LocationKind = "warehouse"
)

// LocationRef is either Branch(id) or Storage(id).
type LocationRef struct {
	Kind LocationKind `json:"type"`
	ID   int64        `json:"id"`
}

// Branch references a branch.
func Branch(id int64) LocationRef { return LocationRef{Kind: LocationBranch, ID: id} }

// Storage references a single storage location.
func Storage(id int64) LocationRef { return LocationRef{Kind: LocationStorage, ID: id} }

// ParseLocationRef builds a reference from its persisted (type, id) pair.
func ParseLocationRef(kind string, id int64) (LocationRef, error) {
	ref := LocationRef{Kind: LocationKind(kind), ID: id}
	if err := ref.Validate(); err != nil {
		return LocationRef{}, err
	}
	return ref, nil
}

// IsBranch reports whether the reference addresses a branch.
func (r LocationRef) IsBranch() bool { return r.Kind == LocationBranch }

// Validate checks the discriminator and identifier.
func (r LocationRef) Validate() error {
	if r.Kind != LocationBranch && r.Kind != LocationStorage {
		return fmt.Errorf("%w: unknown location type %q", ErrInvalidLocation, r.Kind)
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: %s id must be positive", ErrInvalidLocation, r.Kind)
	}
	return nil
}

func (r LocationRef) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}

// ResolveLocations translates a reference into concrete storage locations.
// Branch locations come back ordered by id. When createMissing is set and the
// branch owns no location yet, a default one is created inside tx.
func ResolveLocations(ctx context.Context, tx TxRepository, ref LocationRef, createMissing bool) ([]Location, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if !ref.IsBranch() {
		loc, err := tx.GetLocation(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return []Location{loc}, nil
	}
	locs, err := tx.LocationsForBranch(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if len(locs) > 0 || !createMissing {
		return locs, nil
	}
	loc, err := tx.CreateDefaultLocation(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, ErrBranchNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, ref)
		}
		return nil, err
	}
	return []Location{loc}, nil
}

func locationIDs(locs []Location) []int64 {
	ids := make([]int64, 0, len(locs))
	for _, l := range locs {
		ids = append(ids, l.ID)
	}
	return ids
}
