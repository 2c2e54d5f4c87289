// Package directory resolves candidate and job ids to display names.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"interview-scheduler/internal/scheduling"
)

// Postgres reads the candidates and job_descriptions tables.
type Postgres struct {
	DB *pgxpool.Pool
}

var _ scheduling.Directory = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{DB: pool}
}

func (p *Postgres) Candidate(ctx context.Context, id string) (*scheduling.Candidate, error) {
	var (
		c     scheduling.Candidate
		email *string
	)
	q := `SELECT name, email FROM candidates WHERE id::text=$1`
	err := p.DB.QueryRow(ctx, q, id).Scan(&c.Name, &email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, scheduling.ErrNotInDirectory
	}
	if err != nil {
		return nil, fmt.Errorf("candidate %s: %w", id, err)
	}
	if email != nil {
		c.Email = *email
	}
	return &c, nil
}

func (p *Postgres) JobTitle(ctx context.Context, id string) (string, error) {
	var title string
	q := `SELECT title FROM job_descriptions WHERE id::text=$1`
	err := p.DB.QueryRow(ctx, q, id).Scan(&title)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", scheduling.ErrNotInDirectory
	}
	if err != nil {
		return "", fmt.Errorf("job %s: %w", id, err)
	}
	return title, nil
}

// Nop knows nobody. Used when no directory source is configured.
type Nop struct{}

func (Nop) Candidate(context.Context, string) (*scheduling.Candidate, error) {
	return nil, scheduling.ErrNotInDirectory
}

func (Nop) JobTitle(context.Context, string) (string, error) {
	return "", scheduling.ErrNotInDirectory
}
