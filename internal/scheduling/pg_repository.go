package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PgRepository issues every statement with an explicit tenant filter on top
// of the session's row-security policies. Neither layer is trusted alone.
type PgRepository struct{}

func NewPgRepository() *PgRepository {
	return &PgRepository{}
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.CalendarID,
		&s.PractitionerID,
		&s.StartsAt,
		&s.EndsAt,
		&s.Capacity,
		&s.Mode,
		&s.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) ListAvailabilities(ctx context.Context, tx pgx.Tx, filter AvailabilityFilter) ([]Slot, error) {
	query := `
		SELECT s.id, s.tenant_id, s.calendar_id, c.practitioner_id,
		       s.starts_at, s.ends_at, s.capacity, s.mode, s.status
		FROM slots s
		JOIN calendars c ON c.id = s.calendar_id
		WHERE s.tenant_id = $1
		  AND s.status = 'open'
		  AND s.starts_at >= $2
		  AND s.ends_at <= $3
	`
	args := []any{filter.TenantID, filter.From, filter.To}

	if filter.PractitionerID != "" {
		args = append(args, filter.PractitionerID)
		query += " AND c.practitioner_id = $" + strconv.Itoa(len(args))
	}
	if filter.Mode != "" {
		args = append(args, filter.Mode)
		query += " AND s.mode = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY s.starts_at ASC"

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list availabilities: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) LockSlot(ctx context.Context, tx pgx.Tx, tenantID string, slotID uuid.UUID) (*Slot, error) {
	// FOR UPDATE OF s blocks every concurrent booking attempt on this slot
	// until the transaction commits or aborts.
	row := tx.QueryRow(ctx, `
		SELECT s.id, s.tenant_id, s.calendar_id, c.practitioner_id,
		       s.starts_at, s.ends_at, s.capacity, s.mode, s.status
		FROM slots s
		JOIN calendars c ON c.id = s.calendar_id
		WHERE s.id = $1 AND s.tenant_id = $2
		FOR UPDATE OF s
	`, slotID, tenantID)
	return scanSlot(row)
}

func (r *PgRepository) CountBooked(ctx context.Context, tx pgx.Tx, tenantID string, slotID uuid.UUID) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE slot_id = $1 AND tenant_id = $2 AND status = 'booked'
	`, slotID, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count booked appointments: %w", err)
	}
	return count, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, tx pgx.Tx, appt *Appointment) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, tenant_id, slot_id, patient_id, status, reason, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`, appt.ID, appt.TenantID, appt.SlotID, appt.PatientID, appt.Status, appt.Reason, appt.Mode).Scan(&appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) CloseSlot(ctx context.Context, tx pgx.Tx, tenantID string, slotID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE slots SET status = 'closed'
		WHERE id = $1 AND tenant_id = $2
	`, slotID, tenantID)
	if err != nil {
		return fmt.Errorf("close slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, tx pgx.Tx, ev EventLog) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, tenant_id, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, ev.EventType, ev.TenantID, ev.AppointmentID, ev.Payload)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
