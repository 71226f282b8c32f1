package rbac

import "time"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Grants is what an actor may do and where.
type Grants struct {
	ActorID     int64    `json:"actor_id"`
	Permissions []string `json:"permissions"`
	Branches    []int64  `json:"branches"`
	AllBranches bool     `json:"all_branches"`
}
