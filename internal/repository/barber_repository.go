package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/barber-queue/internal/domain"
)

const barberColumns = `id, shop_id, name, email, password_hash, is_active, is_present, created_at, updated_at`

// BarberRepository encapsulates barber persistence. The queue core only reads
// barbers; the availability flags and credentials are mutated through the
// dedicated update methods.
type BarberRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Barber, error)
	GetByEmail(ctx context.Context, email string) (*domain.Barber, error)
	ListByShop(ctx context.Context, shopID string) ([]domain.Barber, error)
	UpdateFlags(ctx context.Context, id string, isActive, isPresent bool) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

type barberRepository struct {
	pool *pgxpool.Pool
}

// NewBarberRepository instantiates repository.
func NewBarberRepository(pool *pgxpool.Pool) BarberRepository {
	return &barberRepository{pool: pool}
}

func (r *barberRepository) GetByID(ctx context.Context, id string) (*domain.Barber, error) {
	const query = `SELECT ` + barberColumns + ` FROM barbers WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *barberRepository) GetByEmail(ctx context.Context, email string) (*domain.Barber, error) {
	const query = `SELECT ` + barberColumns + ` FROM barbers WHERE LOWER(email)=LOWER($1)`
	return r.fetchSingle(ctx, query, email)
}

func (r *barberRepository) ListByShop(ctx context.Context, shopID string) ([]domain.Barber, error) {
	const query = `SELECT ` + barberColumns + ` FROM barbers WHERE shop_id=$1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Barber
	for rows.Next() {
		var barber domain.Barber
		if err := scanBarber(rows, &barber); err != nil {
			return nil, err
		}
		result = append(result, barber)
	}
	return result, rows.Err()
}

func (r *barberRepository) UpdateFlags(ctx context.Context, id string, isActive, isPresent bool) error {
	const query = `UPDATE barbers SET is_active=$1, is_present=$2, updated_at=NOW() WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, isActive, isPresent, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *barberRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE barbers SET password_hash=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *barberRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Barber, error) {
	var barber domain.Barber
	if err := scanBarber(r.pool.QueryRow(ctx, query, arg), &barber); err != nil {
		return nil, err
	}
	return &barber, nil
}

func scanBarber(row pgx.Row, barber *domain.Barber) error {
	return row.Scan(
		&barber.ID,
		&barber.ShopID,
		&barber.Name,
		&barber.Email,
		&barber.PasswordHash,
		&barber.IsActive,
		&barber.IsPresent,
		&barber.CreatedAt,
		&barber.UpdatedAt,
	)
}
