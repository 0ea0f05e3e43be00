package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores reservations in Postgres.
type Repository struct {
	db db
}

// NewRepository creates a reservation store backed by the given pool.
func NewRepository(db db) *Repository {
	if db == nil {
		panic("schedule: db cannot be nil")
	}
	return &Repository{db: db}
}

var _ ReservationStore = (*Repository)(nil)

const reservationColumns = `id, provider_id, user_id, date, time, mode, fee_cents, status, created_at`

// ListForProvider returns reservations for a provider in [from, to] by date.
func (r *Repository) ListForProvider(ctx context.Context, providerID string, from, to string) ([]Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+`
		FROM reservations
		WHERE provider_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, time`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("schedule: list for provider: %w", err)
	}
	return collectReservations(rows)
}

// ListForUser returns reservations held by a user in [from, to] by date.
func (r *Repository) ListForUser(ctx context.Context, userID string, from, to string) ([]Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+`
		FROM reservations
		WHERE user_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, time`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("schedule: list for user: %w", err)
	}
	return collectReservations(rows)
}

// Create inserts a reservation and returns its id.
func (r *Repository) Create(ctx context.Context, res Reservation) (string, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.Status == "" {
		res.Status = StatusConfirmed
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	var id string
	err := r.db.QueryRow(ctx, `INSERT INTO reservations
		(id, provider_id, user_id, date, time, mode, fee_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		res.ID, res.ProviderID, res.UserID, res.Date, res.Time,
		res.Mode, res.FeeCents, res.Status, res.CreatedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("schedule: create reservation: %w", err)
	}
	return id, nil
}

func collectReservations(rows pgx.Rows) ([]Reservation, error) {
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.ProviderID, &res.UserID, &res.Date, &res.Time,
			&res.Mode, &res.FeeCents, &res.Status, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("schedule: scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: read reservations: %w", err)
	}
	return out, nil
}
