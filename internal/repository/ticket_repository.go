package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/barber-queue/internal/domain"
)

const ticketColumns = `id, external_key, shop_id, service_id, preferred_barber_id, barber_id,
               customer_name, customer_phone, device_id, status, type, position, estimated_wait,
               created_at, updated_at, started_at, completed_at, cancelled_at, check_in_time, scheduled_time`

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	UpdatePlacement(ctx context.Context, ticketID string, position int, estimatedWait *int) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWaiting(ctx context.Context, shopID string) ([]domain.Ticket, error)
	ListInProgress(ctx context.Context, shopID string) ([]domain.Ticket, error)
	ListAppointments(ctx context.Context, shopID string, statuses []domain.TicketStatus) ([]domain.Ticket, error)
	FindInProgressByBarber(ctx context.Context, barberID string) (*domain.Ticket, error)
	FindActiveByCustomerName(ctx context.Context, shopID, customerName string) (*domain.Ticket, error)
	FindActiveByDevice(ctx context.Context, shopID, deviceID string) (*domain.Ticket, error)
	CountWaiting(ctx context.Context, shopID string) (int, error)
	CountActiveAppointments(ctx context.Context, shopID string) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, shop_id, service_id, preferred_barber_id, barber_id,
            customer_name, customer_phone, device_id, status, type, position, estimated_wait,
            check_in_time, scheduled_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.ShopID,
		ticket.ServiceID,
		ticket.PreferredBarberID,
		ticket.BarberID,
		ticket.CustomerName,
		ticket.CustomerPhone,
		ticket.DeviceID,
		ticket.Status,
		ticket.Type,
		ticket.Position,
		ticket.EstimatedWait,
		ticket.CheckInTime,
		ticket.ScheduledTime,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET preferred_barber_id=$1, barber_id=$2, status=$3, position=$4,
            estimated_wait=$5, started_at=$6, completed_at=$7, cancelled_at=$8,
            check_in_time=$9, scheduled_time=$10, updated_at=NOW()
        WHERE id=$11`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.PreferredBarberID,
		ticket.BarberID,
		ticket.Status,
		ticket.Position,
		ticket.EstimatedWait,
		ticket.StartedAt,
		ticket.CompletedAt,
		ticket.CancelledAt,
		ticket.CheckInTime,
		ticket.ScheduledTime,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdatePlacement persists only the recomputed position and wait estimate,
// leaving the rest of the row untouched.
func (r *ticketRepository) UpdatePlacement(ctx context.Context, ticketID string, position int, estimatedWait *int) error {
	const query = `UPDATE tickets SET position=$1, estimated_wait=$2, updated_at=NOW() WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, position, estimatedWait, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) ListWaiting(ctx context.Context, shopID string) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE shop_id=$1 AND status=$2 ORDER BY created_at, id`
	return r.fetchMany(ctx, query, shopID, domain.TicketStatusWaiting)
}

func (r *ticketRepository) ListInProgress(ctx context.Context, shopID string) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE shop_id=$1 AND status=$2 ORDER BY started_at`
	return r.fetchMany(ctx, query, shopID, domain.TicketStatusInProgress)
}

func (r *ticketRepository) ListAppointments(ctx context.Context, shopID string, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE shop_id=$1 AND type=$2 AND status=ANY($3) ORDER BY scheduled_time, id`
	return r.fetchMany(ctx, query, shopID, domain.TicketTypeAppointment, statuses)
}

func (r *ticketRepository) FindInProgressByBarber(ctx context.Context, barberID string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE barber_id=$1 AND status=$2 LIMIT 1`
	return r.fetchSingle(ctx, query, barberID, domain.TicketStatusInProgress)
}

func (r *ticketRepository) FindActiveByCustomerName(ctx context.Context, shopID, customerName string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE shop_id=$1 AND LOWER(customer_name)=LOWER($2)
          AND status NOT IN ($3,$4) LIMIT 1`
	return r.fetchSingle(ctx, query, shopID, customerName, domain.TicketStatusCompleted, domain.TicketStatusCancelled)
}

func (r *ticketRepository) FindActiveByDevice(ctx context.Context, shopID, deviceID string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE shop_id=$1 AND device_id=$2
          AND status NOT IN ($3,$4) LIMIT 1`
	return r.fetchSingle(ctx, query, shopID, deviceID, domain.TicketStatusCompleted, domain.TicketStatusCancelled)
}

func (r *ticketRepository) CountWaiting(ctx context.Context, shopID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE shop_id=$1 AND status=$2`
	var count int
	err := r.pool.QueryRow(ctx, query, shopID, domain.TicketStatusWaiting).Scan(&count)
	return count, err
}

func (r *ticketRepository) CountActiveAppointments(ctx context.Context, shopID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE shop_id=$1 AND type=$2 AND status IN ($3,$4)`
	var count int
	err := r.pool.QueryRow(ctx, query, shopID, domain.TicketTypeAppointment,
		domain.TicketStatusPending, domain.TicketStatusWaiting).Scan(&count)
	return count, err
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, args...), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.ShopID,
		&ticket.ServiceID,
		&ticket.PreferredBarberID,
		&ticket.BarberID,
		&ticket.CustomerName,
		&ticket.CustomerPhone,
		&ticket.DeviceID,
		&ticket.Status,
		&ticket.Type,
		&ticket.Position,
		&ticket.EstimatedWait,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.StartedAt,
		&ticket.CompletedAt,
		&ticket.CancelledAt,
		&ticket.CheckInTime,
		&ticket.ScheduledTime,
	)
}
