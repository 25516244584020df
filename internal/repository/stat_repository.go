package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/barber-queue/internal/domain"
)

// StatRepository encapsulates weekday service statistics. Stats are created
// and advanced only on ticket completion.
type StatRepository interface {
	Get(ctx context.Context, barberID, serviceID string, weekday time.Weekday) (*domain.WeekdayServiceStat, error)
	ListByBarbers(ctx context.Context, barberIDs []string, weekday time.Weekday) ([]domain.WeekdayServiceStat, error)
	Insert(ctx context.Context, stat *domain.WeekdayServiceStat) error
	Update(ctx context.Context, stat *domain.WeekdayServiceStat) error
}

type statRepository struct {
	pool *pgxpool.Pool
}

// NewStatRepository instantiates repository.
func NewStatRepository(pool *pgxpool.Pool) StatRepository {
	return &statRepository{pool: pool}
}

func (r *statRepository) Get(ctx context.Context, barberID, serviceID string, weekday time.Weekday) (*domain.WeekdayServiceStat, error) {
	const query = `SELECT id, barber_id, service_id, weekday, avg_duration, completed_count, updated_at
        FROM weekday_service_stats WHERE barber_id=$1 AND service_id=$2 AND weekday=$3`
	var stat domain.WeekdayServiceStat
	if err := scanStat(r.pool.QueryRow(ctx, query, barberID, serviceID, int(weekday)), &stat); err != nil {
		return nil, err
	}
	return &stat, nil
}

func (r *statRepository) ListByBarbers(ctx context.Context, barberIDs []string, weekday time.Weekday) ([]domain.WeekdayServiceStat, error) {
	const query = `SELECT id, barber_id, service_id, weekday, avg_duration, completed_count, updated_at
        FROM weekday_service_stats WHERE barber_id=ANY($1) AND weekday=$2`
	rows, err := r.pool.Query(ctx, query, barberIDs, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WeekdayServiceStat
	for rows.Next() {
		var stat domain.WeekdayServiceStat
		if err := scanStat(rows, &stat); err != nil {
			return nil, err
		}
		result = append(result, stat)
	}
	return result, rows.Err()
}

func (r *statRepository) Insert(ctx context.Context, stat *domain.WeekdayServiceStat) error {
	const query = `
        INSERT INTO weekday_service_stats (barber_id, service_id, weekday, avg_duration, completed_count)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, updated_at`
	return r.pool.QueryRow(ctx, query,
		stat.BarberID,
		stat.ServiceID,
		int(stat.Weekday),
		stat.AvgDuration,
		stat.CompletedCount,
	).Scan(&stat.ID, &stat.UpdatedAt)
}

func (r *statRepository) Update(ctx context.Context, stat *domain.WeekdayServiceStat) error {
	const query = `UPDATE weekday_service_stats SET avg_duration=$1, completed_count=$2, updated_at=NOW() WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, stat.AvgDuration, stat.CompletedCount, stat.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanStat(row pgx.Row, stat *domain.WeekdayServiceStat) error {
	var weekday int
	if err := row.Scan(
		&stat.ID,
		&stat.BarberID,
		&stat.ServiceID,
		&weekday,
		&stat.AvgDuration,
		&stat.CompletedCount,
		&stat.UpdatedAt,
	); err != nil {
		return err
	}
	stat.Weekday = time.Weekday(weekday)
	return nil
}
