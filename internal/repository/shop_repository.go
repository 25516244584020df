package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/barber-queue/internal/domain"
)

const shopColumns = `id, slug, name, max_queue_size, default_service_duration, allow_appointments,
               max_appointments_fraction, device_deduplication, allow_duplicate_names, created_at, updated_at`

// ShopRepository encapsulates shop and settings persistence.
type ShopRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Shop, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Shop, error)
	List(ctx context.Context) ([]domain.Shop, error)
}

type shopRepository struct {
	pool *pgxpool.Pool
}

// NewShopRepository instantiates repository.
func NewShopRepository(pool *pgxpool.Pool) ShopRepository {
	return &shopRepository{pool: pool}
}

func (r *shopRepository) GetByID(ctx context.Context, id string) (*domain.Shop, error) {
	const query = `SELECT ` + shopColumns + ` FROM shops WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *shopRepository) GetBySlug(ctx context.Context, slug string) (*domain.Shop, error) {
	const query = `SELECT ` + shopColumns + ` FROM shops WHERE slug=$1`
	return r.fetchSingle(ctx, query, slug)
}

func (r *shopRepository) List(ctx context.Context) ([]domain.Shop, error) {
	const query = `SELECT ` + shopColumns + ` FROM shops ORDER BY slug`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Shop
	for rows.Next() {
		var shop domain.Shop
		if err := scanShop(rows, &shop); err != nil {
			return nil, err
		}
		result = append(result, shop)
	}
	return result, rows.Err()
}

func (r *shopRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Shop, error) {
	var shop domain.Shop
	if err := scanShop(r.pool.QueryRow(ctx, query, arg), &shop); err != nil {
		return nil, err
	}
	return &shop, nil
}

func scanShop(row pgx.Row, shop *domain.Shop) error {
	return row.Scan(
		&shop.ID,
		&shop.Slug,
		&shop.Name,
		&shop.Settings.MaxQueueSize,
		&shop.Settings.DefaultServiceDuration,
		&shop.Settings.AllowAppointments,
		&shop.Settings.MaxAppointmentsFraction,
		&shop.Settings.DeviceDeduplication,
		&shop.Settings.AllowDuplicateNames,
		&shop.CreatedAt,
		&shop.UpdatedAt,
	)
}
