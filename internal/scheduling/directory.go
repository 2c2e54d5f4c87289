package scheduling

import (
	"context"
	"errors"
)

// ErrNotInDirectory is returned by a Directory that has no record for an id.
var ErrNotInDirectory = errors.New("not in directory")

// Candidate is the part of a candidate record shown next to an interview.
type Candidate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Directory resolves ids owned by the recruiting side of the product.
// Lookups are best effort: scheduling never depends on them succeeding.
type Directory interface {
	Candidate(ctx context.Context, id string) (*Candidate, error)
	JobTitle(ctx context.Context, id string) (string, error)
}
