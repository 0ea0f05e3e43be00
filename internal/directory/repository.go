package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrProviderNotFound is returned when no directory entry matches an id.
var ErrProviderNotFound = errors.New("directory: provider not found")

// Directory is the read-only view of the provider directory consumed by
// the dialog engine.
type Directory interface {
	ListProviders(ctx context.Context, filter Filter) ([]Provider, error)
	GetProvider(ctx context.Context, id string) (*Provider, error)
}

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads providers from Postgres.
type Repository struct {
	db db
}

// NewRepository creates a provider directory backed by the given pool.
func NewRepository(db db) *Repository {
	if db == nil {
		panic("directory: db cannot be nil")
	}
	return &Repository{db: db}
}

var _ Directory = (*Repository)(nil)

const providerColumns = `id, name, category, location, mode, price_cents, working_days, work_start, work_end`

// ListProviders returns directory entries matching the filter, cheapest
// first so budget-constrained result lists read naturally.
func (r *Repository) ListProviders(ctx context.Context, filter Filter) ([]Provider, error) {
	var (
		conds []string
		args  []any
	)
	addCond := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if filter.Category != "" {
		addCond("category = $%d", filter.Category)
	}
	if filter.Location != "" {
		addCond("location ILIKE $%d", "%"+filter.Location+"%")
	}
	if filter.Mode != "" {
		addCond("(mode = $%d OR mode = 'both')", filter.Mode)
	}
	if filter.MaxPriceCents > 0 {
		addCond("price_cents <= $%d", filter.MaxPriceCents)
	}

	query := `SELECT ` + providerColumns + ` FROM providers`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY price_cents ASC, name ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory: list providers: %w", err)
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan provider: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list providers: %w", err)
	}
	return out, nil
}

// GetProvider fetches a single entry by id.
func (r *Repository) GetProvider(ctx context.Context, id string) (*Provider, error) {
	row := r.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	p, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get provider %s: %w", id, err)
	}
	return &p, nil
}

func scanProvider(row pgx.Row) (Provider, error) {
	var (
		p    Provider
		days []int32
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Location, &p.Mode,
		&p.PriceCents, &days, &p.WorkStart, &p.WorkEnd); err != nil {
		return Provider{}, err
	}
	p.WorkingDays = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		p.WorkingDays = append(p.WorkingDays, time.Weekday(d))
	}
	return p, nil
}
