package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/barber-queue/internal/domain"
)

// ServiceRepository encapsulates service catalog persistence.
type ServiceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Service, error)
	ListByShop(ctx context.Context, shopID string) ([]domain.Service, error)
}

type serviceRepository struct {
	pool *pgxpool.Pool
}

// NewServiceRepository instantiates repository.
func NewServiceRepository(pool *pgxpool.Pool) ServiceRepository {
	return &serviceRepository{pool: pool}
}

func (r *serviceRepository) GetByID(ctx context.Context, id string) (*domain.Service, error) {
	const query = `SELECT id, shop_id, name, duration_minutes, is_active, created_at, updated_at
        FROM services WHERE id=$1`
	var svc domain.Service
	if err := scanService(r.pool.QueryRow(ctx, query, id), &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *serviceRepository) ListByShop(ctx context.Context, shopID string) ([]domain.Service, error) {
	const query = `SELECT id, shop_id, name, duration_minutes, is_active, created_at, updated_at
        FROM services WHERE shop_id=$1 ORDER BY name`
	rows, err := r.pool.Query(ctx, query, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Service
	for rows.Next() {
		var svc domain.Service
		if err := scanService(rows, &svc); err != nil {
			return nil, err
		}
		result = append(result, svc)
	}
	return result, rows.Err()
}

func scanService(row pgx.Row, svc *domain.Service) error {
	return row.Scan(
		&svc.ID,
		&svc.ShopID,
		&svc.Name,
		&svc.DurationMinutes,
		&svc.IsActive,
		&svc.CreatedAt,
		&svc.UpdatedAt,
	)
}
